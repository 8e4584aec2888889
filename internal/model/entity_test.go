package model

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracked/internal/attr"
)

func TestNew_AssignsDefaults(t *testing.T) {
	article := defineArticle(t, newTestEnv(t))

	a, err := article.New(nil)
	require.NoError(t, err)

	assert.Nil(t, a.Value("id"))
	assert.Equal(t, "", a.Value("title"))
	assert.Equal(t, int64(0), a.Value("views"))
	assert.Equal(t, true, a.Value("draft"))
	assert.Nil(t, a.Value("published"))
	assert.Equal(t, []any{}, a.Value("tags"))
	assert.True(t, a.IsNew())
	assert.False(t, a.IsModified())
}

func TestNew_DataIsCoercedAndClean(t *testing.T) {
	article := defineArticle(t, newTestEnv(t))

	a := article.MustNew(map[string]any{"title": "Hello", "views": "12", "draft": "false"})

	assert.Equal(t, "Hello", a.Value("title"))
	assert.Equal(t, int64(12), a.Value("views"))
	assert.Equal(t, false, a.Value("draft"))
	assert.False(t, a.IsModified())
	assert.Empty(t, a.ChangedAttributes())
}

func TestNew_LiteralDefaultsAreNotShared(t *testing.T) {
	article := defineArticle(t, newTestEnv(t),
		attr.Config{Name: "meta", Type: attr.TagObject, Default: map[string]any{"k": "v"}})

	a := article.MustNew(nil)
	b := article.MustNew(nil)
	a.Stored("meta").(map[string]any)["k"] = "changed"

	assert.Equal(t, "v", b.Stored("meta").(map[string]any)["k"])
}

func TestNew_InitializeRunsOnce(t *testing.T) {
	env := newTestEnv(t)
	calls := 0
	counter := env.MustDefine(TypeDef{
		Name:       "Counter",
		Attributes: []attr.Config{{Name: "id", Type: attr.TagString}, {Name: "n", Type: attr.TagInteger}},
		Initialize: func(e *Entity) {
			calls++
			require.NoError(t, e.Set("n", 1))
		},
	})

	c := counter.MustNew(map[string]any{"id": "x"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), c.Value("n"))

	// Same id resolves to the live instance; no second initialization.
	again := counter.MustNew(map[string]any{"id": "x"})
	assert.Same(t, c, again)
	assert.Equal(t, 1, calls)
}

func TestSet_TracksFirstOriginalOnly(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(map[string]any{"title": "one"})

	require.NoError(t, a.Set("title", "two"))
	require.NoError(t, a.Set("title", "three"))

	orig, changed := a.Original("title")
	assert.True(t, changed)
	assert.Equal(t, "one", orig)
	assert.Equal(t, []string{"title"}, a.ChangedAttributes())

	a.Rollback()
	assert.Equal(t, "one", a.Value("title"))
	assert.False(t, a.IsModified())
}

func TestSet_EqualValueIsNoop(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(map[string]any{"title": "same", "views": 3})
	rec := record(a)

	require.NoError(t, a.Set("title", "same"))
	require.NoError(t, a.Set("views", 3.0))

	assert.Empty(t, rec.events)
	assert.False(t, a.IsModified())
}

func TestSet_UnknownAttributeFailsWithoutMutation(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(map[string]any{"title": "kept"})
	rec := record(a)

	err := a.SetMap(map[string]any{"title": "lost", "nope": 1})

	require.Error(t, err)
	assert.True(t, attr.IsUnknownAttribute(err))
	assert.Equal(t, "kept", a.Value("title"))
	assert.False(t, a.IsModified())
	assert.Empty(t, rec.events)

	_, err = a.Get("nope")
	assert.True(t, attr.IsUnknownAttribute(err))
}

func TestSet_EventOrder(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(nil)
	rec := record(a)

	require.NoError(t, a.Set("title", "x"))

	assert.Equal(t, []string{"change:title", "change", "changeset"}, rec.names())
	ev := rec.events[0]
	assert.Same(t, a, ev.Entity)
	assert.Equal(t, "title", ev.Attr)
	assert.Equal(t, "x", ev.Value)
	assert.Equal(t, "", ev.Previous)
}

func TestSetMap_OneChangeset(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(nil)
	rec := record(a)

	require.NoError(t, a.SetMap(map[string]any{"title": "x", "views": 3}))

	sets := rec.named(EventChangeset)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"title", "views"}, sets[0].Changeset.Keys())
	assert.Equal(t, int64(3), sets[0].Changeset.Values["views"])
	assert.Equal(t, int64(0), sets[0].Changeset.Previous["views"])
	assert.Len(t, rec.named(EventChange), 2)
}

func TestSet_SetterReentryJoinsChangeset(t *testing.T) {
	env := newTestEnv(t)
	article := defineArticle(t, env,
		attr.Config{Name: "slug", Type: attr.TagString},
		attr.Config{Name: "heading", Type: attr.TagString, Set: func(o attr.Owner, v, _ any) (any, error) {
			if err := o.Set("slug", strings.ToLower(v.(string))); err != nil {
				return nil, err
			}
			return v, nil
		}},
	)
	a := article.MustNew(nil)
	rec := record(a)

	require.NoError(t, a.Set("heading", "Hello World"))

	assert.Equal(t, "hello world", a.Value("slug"))
	sets := rec.named(EventChangeset)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"heading", "slug"}, sets[0].Changeset.Keys())
}

func TestSet_HandlerReentryJoinsChangeset(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(nil)
	a.On(ChangeEvent("title"), func(Event) {
		require.NoError(t, a.Set("views", 5))
	})
	rec := record(a)

	require.NoError(t, a.Set("title", "x"))

	sets := rec.named(EventChangeset)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"title", "views"}, sets[0].Changeset.Keys())
}

func TestSet_ChangesetHandlerStartsNewBatch(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(nil)
	a.On(EventChangeset, func(Event) {
		require.NoError(t, a.Set("views", 9))
	})
	rec := record(a)

	require.NoError(t, a.Set("title", "x"))

	sets := rec.named(EventChangeset)
	require.Len(t, sets, 2)
	assert.Equal(t, []string{"title"}, sets[0].Changeset.Keys())
	assert.Equal(t, []string{"views"}, sets[1].Changeset.Keys())
}

func TestSetWith_SilentStillTracks(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(nil)
	rec := record(a)

	require.NoError(t, a.SetWith(map[string]any{"title": "quiet"}, SetOptions{Silent: true}))

	assert.Empty(t, rec.events)
	assert.True(t, a.IsModified())
	assert.Equal(t, "quiet", a.Value("title"))
}

func TestSetMap_SettersRunAfterPlainAttributes(t *testing.T) {
	article := defineArticle(t, newTestEnv(t),
		attr.Config{Name: "label", Type: attr.TagString, Set: func(o attr.Owner, v, _ any) (any, error) {
			title, err := o.Get("title")
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("%s/%v", title, v), nil
		}},
	)
	a := article.MustNew(nil)

	require.NoError(t, a.SetMap(map[string]any{"label": "x", "title": "T"}))

	assert.Equal(t, "T/x", a.Value("label"))
}

func TestGet_AppliesReadTransform(t *testing.T) {
	article := defineArticle(t, newTestEnv(t),
		attr.Config{Name: "code", Type: attr.TagString, Get: func(_ attr.Owner, stored any) any {
			return strings.ToUpper(stored.(string))
		}},
	)
	a := article.MustNew(nil)
	rec := record(a)

	require.NoError(t, a.Set("code", "abc"))

	assert.Equal(t, "ABC", a.Value("code"))
	assert.Equal(t, "abc", a.Stored("code"))
	raw, err := a.Raw("code")
	require.NoError(t, err)
	assert.Equal(t, "abc", raw)
	assert.Equal(t, "ABC", rec.named(EventChangeset)[0].Changeset.Values["code"])
}

func TestGet_ExpressionTransform(t *testing.T) {
	article := defineArticle(t, newTestEnv(t),
		attr.Config{Name: "shout", Type: attr.TagString, GetExpr: "upper(value)"},
		attr.Config{Name: "summary", Type: attr.TagString, GetExpr: `title + " (" + string(views) + ")"`},
	)
	a := article.MustNew(map[string]any{"shout": "hey", "title": "Go", "views": 4})

	assert.Equal(t, "HEY", a.Value("shout"))
	assert.Equal(t, "Go (4)", a.Value("summary"))
}

func TestGet_ExpressionFailureIsLogged(t *testing.T) {
	buf := &bytes.Buffer{}
	env := NewEnv(WithLogger(slog.New(slog.NewTextHandler(buf, nil))))
	article := defineArticle(t, env,
		attr.Config{Name: "pick", Type: attr.TagInteger, GetExpr: "[1, 2][value]"},
	)
	a := article.MustNew(map[string]any{"pick": 7})

	assert.Nil(t, a.Value("pick"))
	assert.Contains(t, buf.String(), `msg="get expression failed" type=Article`)
}

func TestRaw_CustomRawIsIndependentOfGetter(t *testing.T) {
	article := defineArticle(t, newTestEnv(t),
		attr.Config{
			Name: "price",
			Type: attr.TagNumber,
			Get:  func(_ attr.Owner, v any) any { return fmt.Sprintf("$%.2f", v) },
			Raw:  func(_ attr.Owner, v any) any { return int64(v.(float64) * 100) },
		},
	)
	a := article.MustNew(map[string]any{"price": 1.5})

	assert.Equal(t, "$1.50", a.Value("price"))
	raw, err := a.Raw("price")
	require.NoError(t, err)
	assert.Equal(t, int64(150), raw)
}

func TestRaw_DateUsesRFC3339(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(map[string]any{"published": "2024-03-01T10:00:00Z"})

	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), a.Value("published"))
	raw, err := a.Raw("published")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T10:00:00Z", raw)
}

func TestCommit_ClearsModifications(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(nil)
	require.NoError(t, a.Set("title", "x"))

	a.Commit()

	assert.False(t, a.IsModified())
	_, changed := a.Original("title")
	assert.False(t, changed)

	a.Rollback()
	assert.Equal(t, "x", a.Value("title"))
}

func TestRollback_EmitsEventAndRestoresID(t *testing.T) {
	article := defineArticle(t, newTestEnv(t))
	a := article.MustNew(map[string]any{"id": 1})
	require.NoError(t, a.Set("id", 2))

	got, ok := article.Get(2)
	require.True(t, ok)
	assert.Same(t, a, got)

	rec := record(a)
	a.Rollback()

	assert.Equal(t, []string{EventRollback}, rec.names())
	assert.Equal(t, int64(1), a.Value("id"))
	_, ok = article.Get(2)
	assert.False(t, ok)
	got, ok = article.Get(1)
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestChanges_FiltersTransientAndRaws(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(nil)
	require.NoError(t, a.SetMap(map[string]any{
		"title":     "x",
		"published": "2024-01-02",
		"scratch":   map[string]any{"tmp": true},
	}))

	assert.Equal(t, map[string]any{
		"title":     "x",
		"published": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		"scratch":   map[string]any{"tmp": true},
	}, a.Changes(ChangeOptions{}))

	assert.Equal(t, map[string]any{
		"title":     "x",
		"published": "2024-01-02T00:00:00Z",
	}, a.Changes(ChangeOptions{PersistedOnly: true, Raw: true}))
}

func TestIdentity_SameIDYieldsSameInstance(t *testing.T) {
	article := defineArticle(t, newTestEnv(t))

	a := article.MustNew(map[string]any{"id": 7, "title": "first"})
	b := article.MustNew(map[string]any{"id": "7", "title": "second"})

	assert.Same(t, a, b)
	assert.Equal(t, "second", a.Value("title"))
	orig, changed := a.Original("title")
	assert.True(t, changed)
	assert.Equal(t, "first", orig)
}

func TestIdentity_IDChangeRekeys(t *testing.T) {
	article := defineArticle(t, newTestEnv(t))
	a := article.MustNew(nil)

	_, ok := article.Get(5)
	assert.False(t, ok)

	require.NoError(t, a.Set("id", 5))

	got, ok := article.Get(5)
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Same(t, a, article.MustNew(map[string]any{"id": 5}))
}

func TestIdentity_SetRejectsIDHeldByAnotherInstance(t *testing.T) {
	article := defineArticle(t, newTestEnv(t))
	a := article.MustNew(map[string]any{"id": 1})
	b := article.MustNew(map[string]any{"id": 2})
	rec := record(b)

	err := b.Set("id", 1)
	require.Error(t, err)
	assert.True(t, attr.IsIdentityConflict(err))
	assert.ErrorIs(t, err, attr.ErrIdentityConflict)

	assert.Equal(t, int64(2), b.Value("id"))
	assert.False(t, b.IsModified())
	assert.Empty(t, rec.events)
	got, ok := article.Get(1)
	require.True(t, ok)
	assert.Same(t, a, got)
	got, ok = article.Get(2)
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Same(t, a, article.MustNew(map[string]any{"id": 1}))
}

func TestIdentity_EnvsAreIsolated(t *testing.T) {
	a := defineArticle(t, newTestEnv(t)).MustNew(map[string]any{"id": 1})
	b := defineArticle(t, newTestEnv(t)).MustNew(map[string]any{"id": 1})

	assert.NotSame(t, a, b)
}

func TestIdentity_MissingIDAttribute(t *testing.T) {
	env := newTestEnv(t)
	note := env.MustDefine(TypeDef{
		Name:        "Note",
		IDAttribute: "uuid",
		Attributes:  []attr.Config{{Name: "body", Type: attr.TagString}},
	})
	n := note.MustNew(map[string]any{"body": "hi"})

	_, err := n.ID()
	assert.True(t, attr.IsMissingIDAttribute(err))
	assert.True(t, attr.IsMissingIDAttribute(n.Save(t.Context(), SaveOptions{})))
	assert.True(t, attr.IsMissingIDAttribute(n.Destroy(t.Context())))
	assert.False(t, n.Destroyed())
}

func TestClientID_UniqueAndStable(t *testing.T) {
	article := defineArticle(t, newTestEnv(t))
	a := article.MustNew(nil)
	b := article.MustNew(nil)

	assert.NotEqual(t, a.ClientID(), b.ClientID())
	id := a.ClientID()
	require.NoError(t, a.Set("id", 10))
	assert.Equal(t, id, a.ClientID())
}
