package protocol

import (
	"bytes"
	"embed"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// clientSchemas maps each client message type to its schema file.
var clientSchemas = map[string]string{
	TypeHello:       "hello.schema.json",
	TypeSelect:      "select.schema.json",
	TypePreview:     "preview.schema.json",
	TypeCommit:      "commit.schema.json",
	TypeDiscard:     "discard.schema.json",
	TypeCancelItem:  "cancel_item.schema.json",
	TypeSetQuantity: "set_quantity.schema.json",
}

// Validator checks raw client messages against the embedded schemas.
type Validator struct {
	byType map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	types := make([]string, 0, len(clientSchemas))
	for typ := range clientSchemas {
		types = append(types, typ)
	}
	sort.Strings(types)

	v := &Validator{byType: make(map[string]*jsonschema.Schema, len(types))}
	for _, typ := range types {
		name := clientSchemas[typ]
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		url := "mem://schemas/" + name
		if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.byType[typ] = s
	}
	return v, nil
}

// Types lists the message types the validator knows, sorted.
func (v *Validator) Types() []string {
	out := make([]string, 0, len(v.byType))
	for typ := range v.byType {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Validate decodes raw and checks it against the schema for its type field.
// The decoded base is returned even when validation fails.
func (v *Validator) Validate(raw []byte) (BaseMessage, error) {
	base, err := DecodeBase(raw)
	if err != nil {
		return base, err
	}
	s, ok := v.byType[base.Type]
	if !ok {
		return base, fmt.Errorf("unknown message type %q", base.Type)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return base, err
	}
	if err := s.Validate(doc); err != nil {
		return base, err
	}
	return base, nil
}
