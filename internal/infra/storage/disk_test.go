package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore_PutOpen(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := s.Put(ctx, "product_pdf/seller-1/plan.pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	f, err := s.Open(ctx, "product_pdf/seller-1/plan.pdf")
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(b))

	// no temp files left next to the blob
	entries, err := os.ReadDir(filepath.Join(s.root, "product_pdf", "seller-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDiskStore_OpenMissing(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Open(context.Background(), "nope.pdf")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDiskStore_RejectsEscapingKeys(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "../etc/passwd", "a/../../b", "/abs/path"} {
		_, err := s.Put(ctx, key, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
		_, err = s.Open(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestDiskStore_PutHonoursCancelledContext(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Put(ctx, "review_image/u/photo.png", strings.NewReader("data"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Open(context.Background(), "review_image/u/photo.png")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
