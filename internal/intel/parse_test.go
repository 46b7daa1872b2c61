package intel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/structon/pkg/core"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want any
	}{
		{
			name: "bare object",
			text: `{"a": 1, "b": "two"}`,
			want: map[string]any{"a": float64(1), "b": "two"},
		},
		{
			name: "bare array",
			text: `[1, 2, 3]`,
			want: []any{float64(1), float64(2), float64(3)},
		},
		{
			name: "fenced with language tag",
			text: "Here is the result:\n```json\n{\"ok\": true}\n```\nDone.",
			want: map[string]any{"ok": true},
		},
		{
			name: "fenced without language tag",
			text: "```\n{\"ok\": false}\n```",
			want: map[string]any{"ok": false},
		},
		{
			name: "object embedded in prose",
			text: `Sure! The unit you asked for is {"id": "u1"} and nothing else.`,
			want: map[string]any{"id": "u1"},
		},
		{
			name: "braces inside strings ignored",
			text: `{"text": "a } b { c", "n": 2}`,
			want: map[string]any{"text": "a } b { c", "n": float64(2)},
		},
		{
			name: "nested structures",
			text: `prefix {"outer": {"inner": [1, {"deep": true}]}} suffix`,
			want: map[string]any{"outer": map[string]any{"inner": []any{float64(1), map[string]any{"deep": true}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "no JSON at all", text: "I could not produce a document."},
		{name: "empty input", text: ""},
		{name: "unterminated object", text: `{"a": 1`},
		{name: "malformed fenced block", text: "```json\n{not json}\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON(tt.text)
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestParseJSON_PrefersFencedBlock(t *testing.T) {
	// A stray brace before the fence must not win over the real block.
	text := "Context: {unbalanced\n```json\n{\"picked\": \"fence\"}\n```"
	got, err := ParseJSON(text)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"picked": "fence"}, got)
}
