package ctxlogger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLogger_FallsBackToDummy(t *testing.T) {
	l := ExtractLogger(context.Background())
	assert.Equal(t, NewDummyLogger(), l)
}

func TestExtractLogger_PanicsOnForeignValue(t *testing.T) {
	ctx := context.WithValue(context.Background(), loggerKey, "not a logger")
	assert.Panics(t, func() { ExtractLogger(ctx) })
}

func TestComponent_TagsZerologEntries(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(Config{Level: "debug", Output: &buf}))

	Component(ctx, "resolver").Printf("latest %s", "abc123")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "resolver", entry["component"])
	assert.Equal(t, "hlsfeed", entry["service"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "latest abc123", entry["message"])
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "error", Output: &buf})

	l.Debugf("hidden")
	l.Printf("hidden too")
	assert.Zero(t, buf.Len())

	l.Errorf("shown")
	assert.Contains(t, buf.String(), "shown")
}
