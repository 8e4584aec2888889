package model

import (
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/tracked/internal/attr"
)

func newTestEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEnv(append([]EnvOption{WithLogger(logger)}, opts...)...)
}

func defineArticle(t *testing.T, env *Env, extra ...attr.Config) *Type {
	t.Helper()
	attrs := []attr.Config{
		{Name: "id", Type: attr.TagInteger},
		{Name: "title", Type: attr.TagString},
		{Name: "views", Type: attr.TagInteger},
		{Name: "draft", Type: attr.TagBoolean, Default: true},
		{Name: "published", Type: attr.TagDate},
		{Name: "tags", Type: attr.TagArray},
		{Name: "scratch", Type: attr.TagObject, Transient: true},
	}
	return env.MustDefine(TypeDef{
		Name:       "Article",
		Attributes: append(attrs, extra...),
	})
}

// recorder collects events from entities and collections.
type recorder struct {
	events []Event
}

func record(src interface {
	On(string, func(Event)) func()
}) *recorder {
	r := &recorder{}
	src.On("*", func(ev Event) { r.events = append(r.events, ev) })
	return r
}

func (r *recorder) names() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

func (r *recorder) named(name string) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
