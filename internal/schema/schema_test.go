package schema

import "testing"

func TestParseSchema(t *testing.T) {
	raw := []byte(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "required": true, "maxLength": 100},
			"priority": {"type": "string", "enum": ["low", "medium", "high"]},
			"path": {"type": "string", "format": "path"},
			"count": {"type": "integer", "minimum": 0, "maximum": 50},
			"tags": {"type": "array", "items": {"type": "string"}, "maxItems": 10}
		},
		"requiredKeys": ["name"],
		"additionalProperties": false
	}`)

	s, err := ParseSchema(raw)
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	if s.Type != TypeObject {
		t.Fatalf("Type = %q", s.Type)
	}
	if s.AdditionalProperties {
		t.Fatal("AdditionalProperties should be false")
	}
	name := s.Properties["name"]
	if name == nil || !name.Required || name.MaxLength != 100 {
		t.Fatalf("name property = %+v", name)
	}
	if s.Properties["path"].Format != FormatPath {
		t.Fatalf("path format = %q", s.Properties["path"].Format)
	}
	if got := s.Properties["count"]; *got.Minimum != 0 || *got.Maximum != 50 {
		t.Fatalf("count bounds = %v..%v", got.Minimum, got.Maximum)
	}
	if s.Properties["tags"].Items.Type != TypeString {
		t.Fatalf("tags items = %+v", s.Properties["tags"].Items)
	}
}

func TestParseSchemaDefaultsAdditionalProperties(t *testing.T) {
	s, err := ParseSchema([]byte(`{"type": "object"}`))
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	if !s.AdditionalProperties {
		t.Fatal("AdditionalProperties should default to true")
	}
}

func TestParseSchemaRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing type", `{"maxLength": 10}`},
		{"unknown type", `{"type": "blob"}`},
		{"unknown format", `{"type": "string", "format": "sql"}`},
		{"unknown keyword", `{"type": "string", "bogus": true}`},
		{"negative maxLength", `{"type": "string", "maxLength": -1}`},
		{"bad nested property", `{"type": "object", "properties": {"x": {"type": "nope"}}}`},
		{"bad regex", `{"type": "string", "pattern": "["}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSchema([]byte(tc.raw)); err == nil {
				t.Fatalf("%s accepted", tc.raw)
			}
		})
	}
}
