package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a YAML schema file.
func LoadYAML(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error(), File: path}
	}
	return ParseYAML(data, path)
}

// ParseYAML parses a YAML schema. Unknown keys are rejected, so typos like
// "atributes:" surface as errors instead of empty types.
func ParseYAML(data []byte, filename string) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "empty schema", File: filename}
		}
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("parse YAML: %v", err), File: filename}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err == nil {
		annotateLines(&doc, &root)
	}
	doc.Source = filename
	return &doc, nil
}

// annotateLines copies node positions onto the decoded specs.
func annotateLines(doc *Document, root *yaml.Node) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return
	}
	types := mappingValue(root.Content[0], "types")
	if types == nil || types.Kind != yaml.SequenceNode {
		return
	}
	for i, tn := range types.Content {
		if i >= len(doc.Types) {
			return
		}
		doc.Types[i].Line = tn.Line
		attrs := mappingValue(tn, "attributes")
		if attrs == nil || attrs.Kind != yaml.SequenceNode {
			continue
		}
		for j, an := range attrs.Content {
			if j >= len(doc.Types[i].Attributes) {
				break
			}
			doc.Types[i].Attributes[j].Line = an.Line
		}
	}
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// MarshalYAML renders doc in the YAML schema format.
func MarshalYAML(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal YAML: %w", err)
	}
	return buf.Bytes(), nil
}
