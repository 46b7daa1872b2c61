package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveMode(t *testing.T) {
	var buf bytes.Buffer

	// A buffer is not a terminal, so auto degrades to markdown.
	r := NewRenderer(&buf, &buf, ModeAuto)
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())

	for _, mode := range []Mode{ModeText, ModeMarkdown, ModeJSON} {
		r := NewRenderer(&buf, &buf, mode)
		assert.Equal(t, mode, r.EffectiveMode())
	}

	r = NewRenderer(&buf, &buf, "")
	assert.Equal(t, ModeAuto, r.Mode())
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, &buf, ModeJSON)

	require.NoError(t, r.JSON(map[string]any{"identifier": "structon_watcher", "tension": 0.7}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "structon_watcher", decoded["identifier"])
	assert.Contains(t, buf.String(), "\n  \"identifier\"")
}

func TestStatusLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, &buf, ModeText)

	r.StatusLine("structon.yaml", "success", "")
	r.StatusLine("units/watch_feed.json", "failed", "parse error")

	out := buf.String()
	assert.Contains(t, out, "structon.yaml")
	assert.Contains(t, out, "units/watch_feed.json")
	assert.Contains(t, out, "parse error")
}

func TestWarningGoesToErrWriter(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRenderer(&out, &errOut, ModeText)

	r.Warning("no units directory")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "no units directory")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "# Units", FormatHeader(1, "Units"))
	assert.Equal(t, "### Runs", FormatHeader(3, "Runs"))
	assert.Equal(t, "# clamped", FormatHeader(0, "clamped"))
	assert.Equal(t, "###### clamped", FormatHeader(9, "clamped"))

	assert.Equal(t, "- **Kind**: atomic", FormatKeyValue("Kind", "atomic"))

	block := FormatCodeBlock("json", "{\n  \"identifier\": \"x\"\n}\n")
	assert.Equal(t, "```json\n{\n  \"identifier\": \"x\"\n}\n```", block)
}
