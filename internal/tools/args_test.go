// ABOUTME: Tests for tool argument decoding and validation
// ABOUTME: Covers defaults, required fields, enums, ranges, and malformed input

package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	City  string `json:"city" validate:"required"`
	Units string `json:"units" validate:"oneof=metric imperial kelvin"`
	Days  int    `json:"days" validate:"min=1,max=5"`
}

func defaultSample() sampleArgs {
	return sampleArgs{Units: "metric", Days: 3}
}

func TestDecodeArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    sampleArgs
		wantErr string
	}{
		{
			name: "defaults applied",
			args: `{"city":"Oslo"}`,
			want: sampleArgs{City: "Oslo", Units: "metric", Days: 3},
		},
		{
			name: "explicit values",
			args: `{"city":"Oslo","units":"imperial","days":5}`,
			want: sampleArgs{City: "Oslo", Units: "imperial", Days: 5},
		},
		{name: "missing required", args: `{}`, wantErr: "missing required argument 'city'"},
		{name: "null args", args: `null`, wantErr: "missing required argument 'city'"},
		{name: "empty required", args: `{"city":""}`, wantErr: "missing required argument 'city'"},
		{name: "bad enum", args: `{"city":"Oslo","units":"furlongs"}`, wantErr: "must be one of: metric, imperial, kelvin"},
		{name: "below range", args: `{"city":"Oslo","days":0}`, wantErr: "argument 'days' must be at least 1"},
		{name: "above range", args: `{"city":"Oslo","days":6}`, wantErr: "argument 'days' must be at most 5"},
		{name: "wrong type", args: `{"city":42}`, wantErr: "argument 'city' must be of type string"},
		{name: "not an object", args: `["Oslo"]`, wantErr: "arguments must be a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaultSample()
			err := DecodeArgs(json.RawMessage(tt.args), &got)
			if tt.wantErr != "" {
				require.Error(t, err)
				te := AsToolError(err)
				assert.Equal(t, KindInvalidParams, te.Kind)
				assert.Contains(t, te.Message, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
