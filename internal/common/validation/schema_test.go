package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messageSchema = JSONSchema{
	Type: "object",
	Properties: map[string]Property{
		"text":        {Type: "string", MinLength: Int(1), MaxLength: Int(20)},
		"temperature": {Type: "number", Minimum: Float(0), Maximum: Float(2)},
	},
	Required:             []string{"text"},
	AdditionalProperties: Bool(false),
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]interface{}
		wantValid bool
		wantField string
	}{
		{"valid", map[string]interface{}{"text": "hello", "temperature": 0.7}, true, ""},
		{"missing text", map[string]interface{}{"temperature": 0.7}, false, "(root)"},
		{"temperature too high", map[string]interface{}{"text": "hi", "temperature": 3.0}, false, "temperature"},
		{"extra field", map[string]interface{}{"text": "hi", "mode": "x"}, false, "(root)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateInput(tt.input, messageSchema)
			assert.Equal(t, tt.wantValid, result.Valid)
			if tt.wantField != "" {
				assert.True(t, result.HasErrors(tt.wantField), result.GetErrorMessages())
			}
		})
	}
}

func TestValidate_RawJSON(t *testing.T) {
	schema := json.RawMessage(`{"type":"array","items":{"type":"object","required":["source"]}}`)

	result, err := Validate(schema, json.RawMessage(`[{"source":"CDC"},{"title":"no source"}]`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.GetErrorMessages())
}
