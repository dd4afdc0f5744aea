package schema

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func floatPtr(f float64) *float64 { return &f }

func TestValidateString(t *testing.T) {
	v := NewValidator(Limits{})

	tests := []struct {
		name    string
		schema  *Schema
		value   any
		want    any
		wantErr bool
	}{
		{"plain string", &Schema{Type: TypeString}, "hello", "hello", false},
		{"wrong type", &Schema{Type: TypeString}, 42, nil, true},
		{"too long", &Schema{Type: TypeString, MaxLength: 5}, "toolong", nil, true},
		{"too short", &Schema{Type: TypeString, MinLength: 3}, "ab", nil, true},
		{"control chars stripped", &Schema{Type: TypeString}, "ab\x00cd\x07ef", "abcdef", false},
		{"newlines kept", &Schema{Type: TypeString}, "line1\nline2", "line1\nline2", false},
		{"enum member", &Schema{Type: TypeString, Enum: []string{"high", "low"}}, "high", "high", false},
		{"enum rejects outsider", &Schema{Type: TypeString, Enum: []string{"high", "low"}}, "medium", nil, true},
		{"html encoded", &Schema{Type: TypeString, Format: FormatHTML}, `<b>hi</b>`, "&lt;b&gt;hi&lt;&#x2F;b&gt;", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := v.Validate(tc.value, tc.schema, "field")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateStringInjection(t *testing.T) {
	v := NewValidator(Limits{})
	s := &Schema{Type: TypeString}

	attacks := []struct {
		name  string
		value string
	}{
		{"sql union", "x' UNION SELECT password FROM users"},
		{"sql boolean", `' OR '1'='1`},
		{"stacked drop", "name; DROP TABLE projects"},
		{"nosql operator", `{"$where": "1==1"}`},
		{"script tag", "<script>alert(1)</script>"},
		{"javascript uri", "javascript:alert(1)"},
		{"event handler", `x" onerror=alert(1)`},
		{"command chain", "a && rm -rf /"},
		{"command substitution", "a$(whoami)b"},
		{"backticks", "a`id`b"},
	}

	for _, tc := range attacks {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate(tc.value, s, "field")
			if err == nil {
				t.Fatalf("%q should be rejected", tc.value)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type %T", err)
			}
			if !verr.Suspicious {
				t.Fatalf("injection should be flagged suspicious: %v", verr)
			}
			if verr.StatusCode != 400 {
				t.Fatalf("StatusCode = %d, want 400", verr.StatusCode)
			}
		})
	}

	// Enum members are trusted and skip the injection suite.
	trusted := &Schema{Type: TypeString, Enum: []string{"SELECT * FROM projects WHERE x"}}
	if _, err := v.Validate("SELECT * FROM projects WHERE x", trusted, "field"); err != nil {
		t.Fatalf("enum member rejected: %v", err)
	}
}

func TestValidateStringSchemaPattern(t *testing.T) {
	v := NewValidator(Limits{})
	s, err := ParseSchema([]byte(`{"type": "string", "pattern": "^[a-z]+$"}`))
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}

	if _, err := v.Validate("abc", s, "field"); err != nil {
		t.Fatalf("matching value rejected: %v", err)
	}
	if _, err := v.Validate("ABC", s, "field"); err == nil {
		t.Fatal("non-matching value accepted")
	}
}

func TestValidateNumber(t *testing.T) {
	v := NewValidator(Limits{})

	tests := []struct {
		name    string
		schema  *Schema
		value   any
		want    any
		wantErr bool
	}{
		{"float passes", &Schema{Type: TypeNumber}, 3.5, 3.5, false},
		{"integer passes", &Schema{Type: TypeInteger}, float64(7), 7, false},
		{"integer rejects fraction", &Schema{Type: TypeInteger}, 7.5, nil, true},
		{"wrong type", &Schema{Type: TypeNumber}, "7", nil, true},
		{"clamped to global max", &Schema{Type: TypeNumber}, 99999.0, 10000.0, false},
		{"clamped to global min", &Schema{Type: TypeNumber}, -99999.0, -10000.0, false},
		{"clamped to schema max", &Schema{Type: TypeInteger, Maximum: floatPtr(100)}, float64(500), 100, false},
		{"clamped to schema min", &Schema{Type: TypeInteger, Minimum: floatPtr(1)}, float64(-5), 1, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := v.Validate(tc.value, tc.schema, "field")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v (%T), want %v (%T)", got, got, tc.want, tc.want)
			}
		})
	}
}

func TestValidateArray(t *testing.T) {
	v := NewValidator(Limits{})
	s := &Schema{Type: TypeArray, Items: &Schema{Type: TypeString}, MaxItems: 3}

	got, err := v.Validate([]any{"a", "b"}, s, "field")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arr := got.([]any)
	if len(arr) != 2 || arr[0] != "a" {
		t.Fatalf("got %v", arr)
	}

	if _, err := v.Validate([]any{"a", "b", "c", "d"}, s, "field"); err == nil {
		t.Fatal("over-length array accepted")
	}
	if _, err := v.Validate([]any{"a", 2}, s, "field"); err == nil {
		t.Fatal("item of wrong type accepted")
	}
	if _, err := v.Validate("not-an-array", s, "field"); err == nil {
		t.Fatal("non-array accepted")
	}
}

func TestValidateObject(t *testing.T) {
	v := NewValidator(Limits{})
	s := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"name":  {Type: TypeString, Required: true},
			"count": {Type: TypeInteger, Default: 1},
		},
		AdditionalProperties: false,
	}

	got, err := v.Validate(map[string]any{"name": "x", "extra": "dropped"}, s, "input")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj := got.(map[string]any)
	if obj["name"] != "x" {
		t.Fatalf("name = %v", obj["name"])
	}
	if _, present := obj["extra"]; present {
		t.Fatal("undeclared key should be dropped")
	}
	if obj["count"] != 1 {
		t.Fatalf("default not applied: count = %v", obj["count"])
	}

	// Missing required property.
	if _, err := v.Validate(map[string]any{"count": float64(2)}, s, "input"); err == nil {
		t.Fatal("missing required property accepted")
	}
}

func TestValidateObjectRequiredKeys(t *testing.T) {
	v := NewValidator(Limits{})
	s := &Schema{Type: TypeObject, RequiredKeys: []string{"id"}, AdditionalProperties: true}

	if _, err := v.Validate(map[string]any{"id": "x"}, s, "input"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := v.Validate(map[string]any{"other": "x"}, s, "input"); err == nil {
		t.Fatal("missing required key accepted")
	}
}

func TestForbiddenKeys(t *testing.T) {
	v := NewValidator(Limits{})
	s := &Schema{Type: TypeObject, AdditionalProperties: true}

	for _, key := range []string{"__proto__", "constructor", "prototype"} {
		_, err := v.Validate(map[string]any{key: "x"}, s, "input")
		if err == nil {
			t.Fatalf("forbidden key %q accepted", key)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || !verr.Suspicious {
			t.Fatalf("forbidden key %q should be suspicious: %v", key, err)
		}
	}

	// Also rejected when nested under a schema-less subtree.
	nested := map[string]any{"meta": map[string]any{"__proto__": map[string]any{}}}
	if _, err := v.Validate(nested, s, "input"); err == nil {
		t.Fatal("nested forbidden key accepted")
	}
}

func TestMaxDepth(t *testing.T) {
	v := NewValidator(Limits{MaxDepth: 3})
	s := &Schema{Type: TypeObject, AdditionalProperties: true}

	// Build nesting one level past the limit.
	value := map[string]any{}
	cur := value
	for i := 0; i < 5; i++ {
		next := map[string]any{}
		cur["child"] = next
		cur = next
	}

	_, err := v.Validate(value, s, "input")
	if err == nil {
		t.Fatal("over-deep input accepted")
	}
	if !strings.Contains(err.Error(), "nesting depth") {
		t.Fatalf("error = %v", err)
	}
}

func TestRequiredAndDefault(t *testing.T) {
	v := NewValidator(Limits{})

	if _, err := v.Validate(nil, &Schema{Type: TypeString, Required: true}, "f"); err == nil {
		t.Fatal("nil required value accepted")
	}

	got, err := v.Validate(nil, &Schema{Type: TypeString, Default: "fallback"}, "f")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fallback" {
		t.Fatalf("got %v, want default", got)
	}

	got, err = v.Validate(nil, &Schema{Type: TypeString}, "f")
	if err != nil || got != nil {
		t.Fatalf("optional nil: got %v, err %v", got, err)
	}
}

func TestSanitizeAny(t *testing.T) {
	v := NewValidator(Limits{MaxStringLen: 5, MaxArrayLen: 2})

	got, err := v.SanitizeAny(map[string]any{
		"s":   "toolongstring",
		"arr": []any{1.0, 2.0, 3.0},
		"n":   99999.0,
		"b":   true,
	}, "input")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obj := got.(map[string]any)
	if obj["s"] != "toolo" {
		t.Fatalf("string not truncated: %v", obj["s"])
	}
	if arr := obj["arr"].([]any); len(arr) != 2 {
		t.Fatalf("array not truncated: %v", arr)
	}
	if obj["n"] != 10000.0 {
		t.Fatalf("number not clamped: %v", obj["n"])
	}
	if obj["b"] != true {
		t.Fatalf("bool changed: %v", obj["b"])
	}
}

func TestSanitizeAnyTruncatesOnRuneBoundary(t *testing.T) {
	// A 9-byte limit lands inside the 2-byte ö at bytes 8-9; the cut must
	// back off to the rune boundary.
	v := NewValidator(Limits{MaxStringLen: 9})

	got, err := v.SanitizeAny("héllo wörld", "input")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := got.(string)
	if len(s) > 9 {
		t.Fatalf("len = %d", len(s))
	}
	if !utf8.ValidString(s) {
		t.Fatalf("truncation produced invalid UTF-8: %q", s)
	}
	if s != "héllo w" {
		t.Fatalf("got %q", s)
	}
}

func TestSanitizeAnyDepth(t *testing.T) {
	v := NewValidator(Limits{MaxDepth: 2})

	deep := map[string]any{"a": map[string]any{"b": map[string]any{"c": "x"}}}
	if _, err := v.SanitizeAny(deep, "input"); err == nil {
		t.Fatal("over-deep schema-less input accepted")
	}
}

func TestValidationErrorFieldPath(t *testing.T) {
	v := NewValidator(Limits{})
	s := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"items": {Type: TypeArray, Items: &Schema{Type: TypeInteger}},
		},
	}

	_, err := v.Validate(map[string]any{"items": []any{float64(1), "bad"}}, s, "input")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "input.items[1]") {
		t.Fatalf("error %q should name the offending element", err)
	}
}
