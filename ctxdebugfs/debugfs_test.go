package ctxdebugfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTee_WithoutDebugFS(t *testing.T) {
	r := io.NopCloser(strings.NewReader("#EXTM3U"))
	assert.Equal(t, r, Tee(context.Background(), r, "x.m3u8"))
}

func TestTee_CapturesBody(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	fs, err := NewDirFS(dir)
	require.NoError(t, err)
	ctx := WithDebugFS(context.Background(), fs)

	r := Tee(ctx, io.NopCloser(strings.NewReader("#EXTM3U\n")), "../escape.m3u8")
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "#EXTM3U\n", string(b))

	captured, err := os.ReadFile(filepath.Join(dir, "escape.m3u8"))
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(captured))
}
