// Package config loads user panel definitions from YAML, checks them
// against an embedded CUE schema, and materializes them into the runtime
// panel schema with built-in legacy aliases merged in.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/paneldiff/paneldiff/internal/panel"
)

// Document is one parsed panel configuration file.
type Document struct {
	Panels []Definition `yaml:"panels"`
}

// Definition declares one panel. Enabled defaults to true when omitted;
// Kind defaults to single.
type Definition struct {
	ID      string            `yaml:"id"`
	Title   string            `yaml:"title,omitempty"`
	Icon    string            `yaml:"icon,omitempty"`
	Kind    string            `yaml:"kind,omitempty"`
	Enabled *bool             `yaml:"enabled,omitempty"`
	Rules   string            `yaml:"rules,omitempty"`
	Fields  []FieldDefinition `yaml:"fields"`
}

// FieldDefinition declares one field of a panel.
type FieldDefinition struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases,omitempty"`
	Enabled *bool    `yaml:"enabled,omitempty"`
}

func (d Definition) enabled() bool      { return d.Enabled == nil || *d.Enabled }
func (f FieldDefinition) enabled() bool { return f.Enabled == nil || *f.Enabled }

// title returns the display title, falling back to the panel id.
func (d Definition) title() string {
	if d.Title != "" {
		return d.Title
	}
	return d.ID
}

// Load reads and parses one YAML panel configuration file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse checks a YAML document against the embedded CUE schema and decodes
// it. filename is used for error positions only. Structural problems (bad
// types, unknown fields, enum violations) are reported here; semantic rules
// like id uniqueness are Validate's job.
func Parse(filename string, data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%s: config is empty", filename)
	}
	if err := validateCUE(filename, data); err != nil {
		return nil, err
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	return &doc, nil
}

// Build materializes the document into a runtime schema: panels and fields
// in configured order, built-in legacy aliases for stock panels merged into
// each field's alias list, and every panel renumbered so enabled fields get
// storage positions 1..N. The document is validated first and not mutated.
func (d *Document) Build() (*panel.Schema, error) {
	if errs := Validate(d); len(errs) > 0 {
		return nil, fmt.Errorf("invalid panel configuration: %w", errs[0])
	}

	s := panel.NewSchema()
	for _, def := range d.Panels {
		p := panel.Panel{
			ID:      def.ID,
			Name:    def.title(),
			Icon:    def.Icon,
			Kind:    panel.Kind(def.Kind),
			Enabled: def.enabled(),
			Rules:   def.Rules,
		}
		if _, err := s.AddPanel(p); err != nil {
			return nil, fmt.Errorf("panel %s: %w", def.ID, err)
		}

		builtin := builtinAliases[def.ID]
		for _, fd := range def.Fields {
			f := panel.Field{
				Name:    fd.Name,
				Aliases: mergeAliases(fd.Aliases, builtin[fd.Name]),
				Enabled: fd.enabled(),
			}
			if _, err := s.AddField(def.ID, f); err != nil {
				return nil, fmt.Errorf("panel %s field %s: %w", def.ID, fd.Name, err)
			}
		}

		if _, err := s.Renumber(def.ID); err != nil {
			return nil, fmt.Errorf("renumber panel %s: %w", def.ID, err)
		}
	}
	return s, nil
}
