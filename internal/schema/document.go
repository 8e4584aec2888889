package schema

import (
	"github.com/roach88/tracked/internal/attr"
	"github.com/roach88/tracked/internal/model"
)

// Document is a set of entity type definitions.
type Document struct {
	Types []TypeSpec `json:"types" yaml:"types" validate:"required,min=1,dive"`

	// Source names the file or directory the document was loaded from.
	Source string `json:"-" yaml:"-"`
}

// TypeSpec declares one entity type.
type TypeSpec struct {
	Name        string          `json:"name" yaml:"name" validate:"required,identifier"`
	Extends     string          `json:"extends,omitempty" yaml:"extends,omitempty" validate:"omitempty,identifier"`
	IDAttribute string          `json:"id_attribute,omitempty" yaml:"id_attribute,omitempty" validate:"omitempty,identifier"`
	Resource    string          `json:"resource,omitempty" yaml:"resource,omitempty" validate:"omitempty,max=128"`
	Attributes  []AttributeSpec `json:"attributes" yaml:"attributes" validate:"dive"`

	// Line is the source line of the definition, when known.
	Line int `json:"-" yaml:"-"`
}

// AttributeSpec declares one attribute. Field meanings match attr.Config.
type AttributeSpec struct {
	Name      string `json:"name" yaml:"name" validate:"required,identifier"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,identifier"`
	Default   any    `json:"default,omitempty" yaml:"default,omitempty"`
	Transient bool   `json:"transient,omitempty" yaml:"transient,omitempty"`
	UseNull   bool   `json:"use_null,omitempty" yaml:"use_null,omitempty"`
	Embedded  bool   `json:"embedded,omitempty" yaml:"embedded,omitempty"`
	Of        string `json:"of,omitempty" yaml:"of,omitempty" validate:"omitempty,identifier"`
	Get       string `json:"get,omitempty" yaml:"get,omitempty"`

	Line int `json:"-" yaml:"-"`
}

// Config converts the spec to an attribute config.
func (a AttributeSpec) Config() attr.Config {
	return attr.Config{
		Name:      a.Name,
		Type:      a.Type,
		Default:   a.Default,
		Transient: a.Transient,
		UseNull:   a.UseNull,
		Embedded:  a.Embedded,
		Of:        a.Of,
		GetExpr:   a.Get,
	}
}

// TypeDef converts the spec to a model type definition.
func (t TypeSpec) TypeDef() model.TypeDef {
	def := model.TypeDef{
		Name:        t.Name,
		Extends:     t.Extends,
		IDAttribute: t.IDAttribute,
		Resource:    t.Resource,
	}
	for _, a := range t.Attributes {
		def.Attributes = append(def.Attributes, a.Config())
	}
	return def
}

// Lookup returns the type spec named name.
func (d *Document) Lookup(name string) (TypeSpec, bool) {
	for _, t := range d.Types {
		if t.Name == name {
			return t, true
		}
	}
	return TypeSpec{}, false
}
