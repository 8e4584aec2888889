package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracked/internal/attr"
)

type blogTypes struct {
	env     *Env
	author  *Type
	comment *Type
	meta    *Type
	post    *Type
}

func defineBlog(t *testing.T) blogTypes {
	t.Helper()
	env := newTestEnv(t)
	b := blogTypes{env: env}
	b.author = env.MustDefine(TypeDef{Name: "Author", Attributes: []attr.Config{
		{Name: "id", Type: attr.TagString},
		{Name: "name", Type: attr.TagString},
	}})
	b.comment = env.MustDefine(TypeDef{Name: "Comment", Attributes: []attr.Config{
		{Name: "id", Type: attr.TagInteger},
		{Name: "body", Type: attr.TagString},
	}})
	b.meta = env.MustDefine(TypeDef{Name: "Meta", Attributes: []attr.Config{
		{Name: "note", Type: attr.TagString},
	}})
	b.post = env.MustDefine(TypeDef{Name: "Post", Attributes: []attr.Config{
		{Name: "id", Type: attr.TagInteger},
		{Name: "title", Type: attr.TagString},
		{Name: "author", Type: TagEntity, Of: "Author"},
		{Name: "meta", Type: TagEntity, Of: "Meta", Embedded: true},
		{Name: "comments", Type: TagCollection, Of: "Comment", Embedded: true},
		{Name: "related", Type: TagCollection, Of: "Post"},
	}})
	return b
}

func comments(t *testing.T, p *Entity) *Collection {
	t.Helper()
	c, ok := p.Stored("comments").(*Collection)
	require.True(t, ok)
	return c
}

func TestNested_DefaultCollectionIsBound(t *testing.T) {
	b := defineBlog(t)
	p := b.post.MustNew(nil)

	c := comments(t, p)
	assert.Equal(t, 0, c.Len())
	assert.Same(t, b.comment, c.Type())
	assert.Nil(t, p.Stored("author"))
}

func TestNested_MapBuildsEntityThroughIdentityMap(t *testing.T) {
	b := defineBlog(t)
	ann := b.author.MustNew(map[string]any{"id": "a1", "name": "Ann"})
	p := b.post.MustNew(nil)

	require.NoError(t, p.Set("author", map[string]any{"id": "a1"}))
	assert.Same(t, ann, p.Stored("author"))

	other := b.post.MustNew(map[string]any{"author": "a1"})
	assert.Same(t, ann, other.Stored("author"))
}

func TestNested_SliceBuildsCollection(t *testing.T) {
	b := defineBlog(t)
	p := b.post.MustNew(map[string]any{
		"comments": []any{
			map[string]any{"id": 1, "body": "a"},
			map[string]any{"id": 2, "body": "b"},
		},
	})

	c := comments(t, p)
	require.Equal(t, 2, c.Len())
	assert.Equal(t, "b", c.At(1).Value("body"))
	assert.False(t, p.IsModified())
	assert.False(t, c.IsModified(ModifiedOptions{}))
}

func TestNested_WrongKindIsTypeMismatch(t *testing.T) {
	b := defineBlog(t)
	p := b.post.MustNew(nil)
	before := p.Stored("comments")

	err := p.Set("author", b.comment.MustNew(nil))
	require.Error(t, err)
	assert.True(t, attr.IsTypeMismatch(err))

	err = p.Set("comments", "nope")
	require.Error(t, err)
	assert.True(t, attr.IsTypeMismatch(err))

	other, err := b.author.NewCollection()
	require.NoError(t, err)
	err = p.Set("comments", other)
	assert.True(t, attr.IsTypeMismatch(err))

	assert.Same(t, before, p.Stored("comments"))
	assert.Nil(t, p.Stored("author"))
	assert.False(t, p.IsModified())
}

func TestNested_EmbeddedEntityChangesBubble(t *testing.T) {
	b := defineBlog(t)
	p := b.post.MustNew(map[string]any{"meta": map[string]any{"note": "x"}})
	meta := p.Stored("meta").(*Entity)
	rec := record(p)

	require.NoError(t, meta.Set("note", "y"))

	assert.Equal(t, []string{"change:meta", "change", "changeset"}, rec.names())
	assert.Equal(t, []string{"meta"}, rec.events[2].Changeset.Keys())
	assert.True(t, p.IsModified())
	assert.Empty(t, p.ChangedAttributes())
	assert.Equal(t, map[string]any{"meta": map[string]any{"note": "y"}}, p.Changes(ChangeOptions{}))

	p.Commit()
	assert.False(t, meta.IsModified())
	assert.False(t, p.IsModified())
}

func TestNested_EmbeddedCollectionChangesBubble(t *testing.T) {
	b := defineBlog(t)
	p := b.post.MustNew(nil)
	rec := record(p)

	_, err := comments(t, p).Add(map[string]any{"body": "hi"})
	require.NoError(t, err)

	sets := rec.named(EventChangeset)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"comments"}, sets[0].Changeset.Keys())
	assert.True(t, p.IsModified())

	rec.events = nil
	require.NoError(t, comments(t, p).At(0).Set("body", "edited"))
	assert.Len(t, rec.named(EventChangeset), 1)
}

func TestNested_RelatedChangesStayIndependent(t *testing.T) {
	b := defineBlog(t)
	p := b.post.MustNew(map[string]any{"author": map[string]any{"id": "a1", "name": "Ann"}})
	author := p.Stored("author").(*Entity)
	rec := record(p)

	require.NoError(t, author.Set("name", "Bea"))

	assert.Empty(t, rec.events)
	assert.False(t, p.IsModified())
}

func TestNested_ReplacedChildIsUnwired(t *testing.T) {
	b := defineBlog(t)
	p := b.post.MustNew(map[string]any{"meta": map[string]any{"note": "old"}})
	old := p.Stored("meta").(*Entity)
	require.NoError(t, p.Set("meta", map[string]any{"note": "new"}))
	p.Commit()
	rec := record(p)

	require.NoError(t, old.Set("note", "ignored"))

	assert.Empty(t, rec.events)
	assert.False(t, p.IsModified())
}

func TestNested_CyclicEmbeddingTerminates(t *testing.T) {
	env := newTestEnv(t)
	node := env.MustDefine(TypeDef{Name: "Node", Attributes: []attr.Config{
		{Name: "label", Type: attr.TagString},
		{Name: "peer", Type: TagEntity, Of: "Node", Embedded: true},
	}})
	a := node.MustNew(map[string]any{"label": "a"})
	b := node.MustNew(map[string]any{"label": "b"})
	require.NoError(t, a.Set("peer", b))
	require.NoError(t, b.Set("peer", a))
	a.Commit()
	b.Commit()
	rec := record(a)

	require.NoError(t, b.Set("label", "b2"))

	assert.Len(t, rec.named(EventChangeset), 1)
	assert.True(t, a.IsModified())
	a.Commit()
	assert.False(t, b.IsModified())
}

func TestRollback_CascadeIsOptIn(t *testing.T) {
	b := defineBlog(t)
	p := b.post.MustNew(map[string]any{"title": "t", "meta": map[string]any{"note": "x"}})
	meta := p.Stored("meta").(*Entity)
	require.NoError(t, meta.Set("note", "y"))
	require.NoError(t, p.Set("title", "t2"))

	p.Rollback()
	assert.Equal(t, "t", p.Value("title"))
	assert.Equal(t, "y", meta.Value("note"))

	require.NoError(t, p.Set("title", "t3"))
	p.Rollback(Cascade())
	assert.Equal(t, "t", p.Value("title"))
	assert.Equal(t, "x", meta.Value("note"))
	assert.False(t, p.IsModified())
}

func TestRollback_RewiresReplacedChild(t *testing.T) {
	b := defineBlog(t)
	p := b.post.MustNew(map[string]any{"meta": map[string]any{"note": "orig"}})
	orig := p.Stored("meta").(*Entity)
	require.NoError(t, p.Set("meta", map[string]any{"note": "replacement"}))
	replacement := p.Stored("meta").(*Entity)

	p.Rollback()
	require.Same(t, orig, p.Stored("meta"))

	rec := record(p)
	require.NoError(t, replacement.Set("note", "x"))
	assert.Empty(t, rec.events)
	require.NoError(t, orig.Set("note", "y"))
	assert.Len(t, rec.named(EventChangeset), 1)
}
