package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]any) StateLookup {
	return func(k string) (any, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestInjectState(t *testing.T) {
	state := map[string]any{
		"research_findings": "Go is fast",
		"user:name":         "Ada",
		"count":             3,
		"tags":              []any{"a", "b"},
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "no placeholders", "no placeholders"},
		{"single", "Findings: {research_findings}", "Findings: Go is fast"},
		{"prefixed", "Hi {user:name}", "Hi Ada"},
		{"number", "{count} items", "3 items"},
		{"json", "tags={tags}", `tags=["a","b"]`},
		{"optional missing", "x{missing?}y", "xy"},
		{"double braces", "{{count}}", "3"},
		{"not an identifier", `use {"a": 1} as input`, `use {"a": 1} as input`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InjectState(tt.in, mapLookup(state), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInjectState_MissingRequired(t *testing.T) {
	_, err := InjectState("Draft: {draft_post}", mapLookup(nil), nil)
	require.Error(t, err)

	var missing *MissingKeyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "draft_post", missing.Key)
}

func TestInjectState_Artifacts(t *testing.T) {
	load := func(name string) (string, error) {
		if name == "notes" {
			return "artifact body", nil
		}
		return "", errors.New("not found")
	}

	got, err := InjectState("{artifact.notes} / {artifact.other?}", mapLookup(nil), load)
	require.NoError(t, err)
	assert.Equal(t, "artifact body / ", got)

	_, err = InjectState("{artifact.other}", mapLookup(nil), load)
	require.Error(t, err)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"principal": map[string]any{"type": "number"},
			"years":     map[string]any{"type": "integer"},
			"frequency": map[string]any{"type": "string", "enum": []string{"monthly", "yearly"}},
		},
		"required": []string{"principal"},
	}

	require.NoError(t, ValidateParameters(map[string]any{"principal": 1000.0, "years": 5.0}, schema))

	err := ValidateParameters(map[string]any{"years": 5.0}, schema)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "principal")

	err = ValidateParameters(map[string]any{"principal": "lots"}, schema)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "principal", verr.Field)

	err = ValidateParameters(map[string]any{"principal": 1.0, "frequency": "daily"}, schema)
	require.Error(t, err)
}

func TestCreateSchema(t *testing.T) {
	type args struct {
		Principal float64  `json:"principal" description:"Initial amount"`
		Note      string   `json:"note,omitempty"`
		Years     *int     `json:"years"`
		Tags      []string `json:"tags"`
		hidden    bool
	}

	schema := CreateSchema(args{})
	props := schema["properties"].(map[string]any)

	assert.Len(t, props, 4)
	assert.Equal(t, "number", props["principal"].(map[string]any)["type"])
	assert.Equal(t, "Initial amount", props["principal"].(map[string]any)["description"])
	assert.Equal(t, "integer", props["years"].(map[string]any)["type"])
	assert.Equal(t, []string{"principal", "tags"}, schema["required"])
}
