package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makoto/internal/api"
)

func TestParseModes(t *testing.T) {
	modes, err := ParseModes([]string{"agent", "webcrawl", "agent"})
	require.NoError(t, err)
	assert.Equal(t, []api.Mode{api.ModeAgent, api.ModeWebCrawl}, modes)

	_, err = ParseModes([]string{"web"})
	assert.ErrorContains(t, err, `unknown mode "web"`)
}

func TestAgo(t *testing.T) {
	ts := time.Now().Add(-3 * time.Hour).UTC().Format(time.RFC3339)
	assert.Equal(t, "3 hours ago", Ago(ts))
	assert.Equal(t, "yesterday-ish", Ago("yesterday-ish"))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
