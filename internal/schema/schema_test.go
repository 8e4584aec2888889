package schema

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracked/internal/model"
)

func newEnv() *model.Env {
	return model.NewEnv(model.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestParseYAML_Blog(t *testing.T) {
	doc, err := LoadYAML("testdata/blog.yaml")
	require.NoError(t, err)

	require.Len(t, doc.Types, 4)
	assert.Equal(t, "testdata/blog.yaml", doc.Source)

	post, ok := doc.Lookup("Post")
	require.True(t, ok)
	assert.Equal(t, "posts", post.Resource)
	assert.Equal(t, 11, post.Line)
	require.Len(t, post.Attributes, 6)
	assert.Equal(t, "Untitled", post.Attributes[1].Default)
	assert.Equal(t, 15, post.Attributes[1].Line)
	assert.Equal(t, "lower(title)", post.Attributes[2].Get)
	assert.True(t, post.Attributes[2].Transient)
	assert.True(t, post.Attributes[5].Embedded)
	assert.Equal(t, "Comment", post.Attributes[5].Of)

	article, ok := doc.Lookup("Article")
	require.True(t, ok)
	assert.Equal(t, "Post", article.Extends)
	assert.True(t, article.Attributes[0].UseNull)

	assert.Empty(t, Validate(doc, nil))
}

func TestParseYAML_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseYAML([]byte("types:\n  - name: Post\n    atributes: []\n"), "typo.yaml")

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeLoadFailed, le.Code)
	assert.Contains(t, le.Error(), "atributes")
}

func TestParseYAML_Empty(t *testing.T) {
	_, err := ParseYAML(nil, "empty.yaml")

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "empty schema", le.Message)
}

func TestParseCUE_MatchesYAML(t *testing.T) {
	fromCUE, err := LoadCUE("testdata/blog.cue")
	require.NoError(t, err)
	fromYAML, err := LoadYAML("testdata/blog.yaml")
	require.NoError(t, err)

	require.Len(t, fromCUE.Types, len(fromYAML.Types))
	for i := range fromYAML.Types {
		want, got := fromYAML.Types[i], fromCUE.Types[i]
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Extends, got.Extends)
		assert.Equal(t, want.Resource, got.Resource)
		require.Len(t, got.Attributes, len(want.Attributes), want.Name)
		for j := range want.Attributes {
			w, g := want.Attributes[j], got.Attributes[j]
			w.Line, g.Line = 0, 0
			assert.Equal(t, w, g, "%s.%s", want.Name, w.Name)
		}
	}
	assert.Empty(t, Validate(fromCUE, nil))
}

func TestParseCUE_UnknownField(t *testing.T) {
	src := `entity: Post: {
	resource: "posts"
	colour: "blue"
}
`
	_, err := ParseCUE([]byte(src), "post.cue")

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Message, `unknown field "colour"`)
}

func TestParseCUE_BuildError(t *testing.T) {
	src := `entity: Post: resource: "posts"
entity: Post: resource: "articles"
`
	_, err := ParseCUE([]byte(src), "conflict.cue")

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeBuildFailed, le.Code)
	assert.Greater(t, le.Line, 0)
}

func TestParseCUE_NoEntities(t *testing.T) {
	_, err := ParseCUE([]byte(`other: 1`), "none.cue")

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Message, "entity")
}

func TestLoadCUE_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "author.cue"), []byte(`package test

entity: Author: attributes: id: type: "string"
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "post.cue"), []byte(`package test

entity: Post: attributes: {
	id: type: "integer"
	author: {type: "entity", of: "Author"}
}
`), 0644))

	doc, err := LoadCUE(dir)
	require.NoError(t, err)
	_, ok := doc.Lookup("Author")
	assert.True(t, ok)
	_, ok = doc.Lookup("Post")
	assert.True(t, ok)
	assert.Empty(t, Validate(doc, nil))
}

func TestLoadCUE_EmptyDirectory(t *testing.T) {
	_, err := LoadCUE(t.TempDir())

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNoFiles, le.Code)
}

func TestLoad_DispatchesOnExtension(t *testing.T) {
	_, err := Load("testdata/blog.yaml")
	assert.NoError(t, err)
	_, err = Load("testdata/blog.cue")
	assert.NoError(t, err)

	_, err = Load("testdata/missing.yaml")
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)

	txt := filepath.Join(t.TempDir(), "schema.txt")
	require.NoError(t, os.WriteFile(txt, []byte("types: []"), 0644))
	_, err = Load(txt)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeLoadFailed, le.Code)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	doc, err := LoadYAML("testdata/invalid.yaml")
	require.NoError(t, err)

	errs := Validate(doc, nil)

	assert.ElementsMatch(t, []string{
		ErrCodeInvalidAttribute,   // "bad name"
		ErrCodeDuplicateType,      // second Post
		ErrCodeUnknownParent,      // extends Missing
		ErrCodeDuplicateAttr,      // id twice
		ErrCodeUnknownAttrType,    // decimal
		ErrCodeInvalidNested,      // entity without of
		ErrCodeInvalidNested,      // embedded string
		ErrCodeInvalidExpression,  // upper(
		ErrCodeMissingIDAttr,      // id_attribute key
	}, codes(errs))

	for _, e := range errs {
		if e.Code == ErrCodeInvalidAttribute {
			assert.Equal(t, "types[0].attributes[2].name", e.Field)
			assert.Equal(t, 8, e.Line)
		}
		if e.Code == ErrCodeDuplicateType {
			assert.Equal(t, "types[1].name", e.Field)
			assert.Equal(t, 13, e.Line)
		}
	}
}

func TestValidate_ExtendsCycles(t *testing.T) {
	doc, err := LoadYAML("testdata/cycle.yaml")
	require.NoError(t, err)

	errs := Validate(doc, nil)

	require.Len(t, errs, 2)
	assert.Equal(t, ErrCodeExtendsCycle, errs[0].Code)
	assert.Equal(t, "types[0].extends", errs[0].Field)
	assert.Equal(t, "extends cycle: A -> C -> B -> A", errs[0].Message)
	assert.Equal(t, "types[3].extends", errs[1].Field)
	assert.Equal(t, "extends cycle: Self -> Self", errs[1].Message)
}

func TestValidate_EmptyDocument(t *testing.T) {
	errs := Validate(&Document{}, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeInvalidDocument, errs[0].Code)
	assert.Equal(t, "types", errs[0].Field)

	errs = Validate(nil, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeInvalidDocument, errs[0].Code)
}

func TestValidate_InheritedIDAttribute(t *testing.T) {
	doc := &Document{Types: []TypeSpec{
		{Name: "Base", Attributes: []AttributeSpec{{Name: "key", Type: "string"}}},
		{Name: "Child", Extends: "Base", IDAttribute: "key"},
	}}
	assert.Empty(t, Validate(doc, nil))
}

func TestValidationErrors_Error(t *testing.T) {
	one := ValidationErrors{{Field: "types[0].name", Message: "is required", Code: ErrCodeInvalidTypeName, Line: 2}}
	assert.Equal(t, "[E101] line 2: types[0].name: is required", one.Error())

	two := append(one, ValidationError{Field: "types", Message: "x", Code: ErrCodeInvalidDocument})
	assert.Equal(t, "2 schema errors:\n  [E101] line 2: types[0].name: is required\n  [E100] types: x", two.Error())
}

func TestBuild_DefinesTypes(t *testing.T) {
	doc, err := LoadYAML("testdata/blog.yaml")
	require.NoError(t, err)
	env := newEnv()

	types, err := Build(env, doc)
	require.NoError(t, err)
	require.Len(t, types, 4)
	assert.Equal(t, "Author", types[0].Name())
	assert.Equal(t, "Article", types[3].Name())

	post, ok := env.Lookup("Post")
	require.True(t, ok)
	article, ok := env.Lookup("Article")
	require.True(t, ok)
	assert.Same(t, post, article.Parent())
	assert.Equal(t, []string{"id", "title", "slug", "tags", "author", "comments", "published"}, article.AttributeNames())
	assert.Equal(t, "posts", post.Resource())

	p, err := post.New(map[string]any{
		"id":       1,
		"author":   map[string]any{"id": "a1", "name": "Ann"},
		"comments": []any{map[string]any{"id": 5, "body": "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Untitled", p.Value("title"))
	assert.Equal(t, "untitled", p.Value("slug"))

	author, ok := p.Value("author").(*model.Entity)
	require.True(t, ok)
	assert.Equal(t, "Author", author.TypeName())
	comments, ok := p.Value("comments").(*model.Collection)
	require.True(t, ok)
	assert.Equal(t, 1, comments.Len())
}

func TestBuild_ChildBeforeParentInSource(t *testing.T) {
	doc := &Document{Types: []TypeSpec{
		{Name: "Child", Extends: "Base", Attributes: []AttributeSpec{{Name: "extra"}}},
		{Name: "Base", Attributes: []AttributeSpec{{Name: "id", Type: "string"}}},
	}}
	env := newEnv()

	types, err := Build(env, doc)
	require.NoError(t, err)
	assert.Equal(t, "Child", types[0].Name())
	assert.Equal(t, []string{"id", "extra"}, types[0].AttributeNames())
}

func TestBuild_InvalidDefinesNothing(t *testing.T) {
	doc, err := LoadYAML("testdata/cycle.yaml")
	require.NoError(t, err)
	env := newEnv()

	_, err = Build(env, doc)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.Empty(t, env.Types())
}

func TestBuild_ConflictsWithExistingType(t *testing.T) {
	env := newEnv()
	env.MustDefine(model.TypeDef{Name: "Post"})
	doc := &Document{Types: []TypeSpec{{Name: "Post"}}}

	_, err := Build(env, doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDuplicateEntityType)
}

func TestLoadEnv(t *testing.T) {
	env, err := LoadEnv("testdata/blog.cue", model.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	assert.Len(t, env.Types(), 4)
}
