// Package schema implements the recursive input validator and sanitizer that
// guards every tool argument before it reaches an executor. Validation is
// driven by declarative per-field schemas supplied by tool definitions.
package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

func jsonReader(s string) io.Reader { return strings.NewReader(s) }

// Type discriminates schema variants. Dispatch over Type is exhaustive;
// ParseSchema rejects anything outside this set.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Format selects the string sanitization mode. The empty format runs the
// generic injection pattern suite.
type Format string

const (
	FormatNone    Format = ""
	FormatPath    Format = "path"
	FormatPattern Format = "pattern"
	FormatHTML    Format = "html"
)

// Schema is the immutable per-field descriptor. Tool definitions supply these;
// they are fixed at registration time and never mutated by validation.
type Schema struct {
	Type     Type
	Required bool
	Default  any

	// String
	MinLength int
	MaxLength int // 0 = validator default
	Enum      []string
	Pattern   *regexp.Regexp
	Format    Format

	// Number / integer
	Minimum *float64
	Maximum *float64

	// Array
	MinItems int
	MaxItems int // 0 = validator default
	Items    *Schema

	// Object
	Properties           map[string]*Schema
	RequiredKeys         []string
	AdditionalProperties bool
}

// metaSchema constrains tool-supplied schema documents before they are trusted
// to drive validation. A document that declares an unknown type or format is
// rejected here, not silently passed through.
const metaSchema = `{
	"$id": "toolgate:field-schema",
	"type": "object",
	"properties": {
		"type": {"enum": ["string", "integer", "number", "boolean", "array", "object"]},
		"required": {"type": "boolean"},
		"default": {},
		"minLength": {"type": "integer", "minimum": 0},
		"maxLength": {"type": "integer", "minimum": 0},
		"enum": {"type": "array", "items": {"type": "string"}},
		"pattern": {"type": "string"},
		"format": {"enum": ["path", "pattern", "html"]},
		"minimum": {"type": "number"},
		"maximum": {"type": "number"},
		"minItems": {"type": "integer", "minimum": 0},
		"maxItems": {"type": "integer", "minimum": 0},
		"items": {"$ref": "#"},
		"properties": {
			"type": "object",
			"additionalProperties": {"$ref": "#"}
		},
		"requiredKeys": {"type": "array", "items": {"type": "string"}},
		"additionalProperties": {"type": "boolean"}
	},
	"required": ["type"],
	"additionalProperties": false
}`

var compiledMeta = mustCompileMeta()

func mustCompileMeta() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(jsonReader(metaSchema))
	if err != nil {
		panic(fmt.Sprintf("meta-schema unmarshal: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("meta.json", doc); err != nil {
		panic(fmt.Sprintf("meta-schema resource: %v", err))
	}
	sch, err := c.Compile("meta.json")
	if err != nil {
		panic(fmt.Sprintf("meta-schema compile: %v", err))
	}
	return sch
}

// schemaDoc is the wire form of a Schema.
type schemaDoc struct {
	Type                 string                `json:"type"`
	Required             bool                  `json:"required"`
	Default              any                   `json:"default"`
	MinLength            int                   `json:"minLength"`
	MaxLength            int                   `json:"maxLength"`
	Enum                 []string              `json:"enum"`
	Pattern              string                `json:"pattern"`
	Format               string                `json:"format"`
	Minimum              *float64              `json:"minimum"`
	Maximum              *float64              `json:"maximum"`
	MinItems             int                   `json:"minItems"`
	MaxItems             int                   `json:"maxItems"`
	Items                *schemaDoc            `json:"items"`
	Properties           map[string]*schemaDoc `json:"properties"`
	RequiredKeys         []string              `json:"requiredKeys"`
	AdditionalProperties *bool                 `json:"additionalProperties"`
}

// ParseSchema decodes and compiles a JSON schema document. The document is
// first checked against the meta-schema, so validation code downstream can
// assume every Type and Format value is one of the known constants.
func ParseSchema(raw []byte) (*Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(jsonReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("ParseSchema: %w", err)
	}
	if err := compiledMeta.Validate(doc); err != nil {
		return nil, fmt.Errorf("ParseSchema: %w", err)
	}

	var sd schemaDoc
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, fmt.Errorf("ParseSchema: %w", err)
	}
	return buildSchema(&sd)
}

func buildSchema(sd *schemaDoc) (*Schema, error) {
	s := &Schema{
		Type:                 Type(sd.Type),
		Required:             sd.Required,
		Default:              sd.Default,
		MinLength:            sd.MinLength,
		MaxLength:            sd.MaxLength,
		Enum:                 sd.Enum,
		Format:               Format(sd.Format),
		Minimum:              sd.Minimum,
		Maximum:              sd.Maximum,
		MinItems:             sd.MinItems,
		MaxItems:             sd.MaxItems,
		RequiredKeys:         sd.RequiredKeys,
		AdditionalProperties: true,
	}
	if sd.AdditionalProperties != nil {
		s.AdditionalProperties = *sd.AdditionalProperties
	}

	if sd.Pattern != "" {
		re, err := regexp.Compile(sd.Pattern)
		if err != nil {
			return nil, fmt.Errorf("buildSchema: pattern: %w", err)
		}
		s.Pattern = re
	}

	if sd.Items != nil {
		items, err := buildSchema(sd.Items)
		if err != nil {
			return nil, err
		}
		s.Items = items
	}

	if len(sd.Properties) > 0 {
		s.Properties = make(map[string]*Schema, len(sd.Properties))
		for name, prop := range sd.Properties {
			ps, err := buildSchema(prop)
			if err != nil {
				return nil, err
			}
			s.Properties[name] = ps
		}
	}

	return s, nil
}
