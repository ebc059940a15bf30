package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreSaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	err = s.Save(ctx, "report.xlsx", func(w io.Writer) error {
		_, err := io.WriteString(w, "contents")
		return err
	})
	require.NoError(t, err)

	r, err := s.Open(ctx, "report.xlsx")
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "contents", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLocalStoreFailedWriteLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	boom := errors.New("render failed")

	err = s.Save(context.Background(), "report.xlsx", func(w io.Writer) error {
		_, _ = io.WriteString(w, "half a workbook")
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.Open(context.Background(), "report.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsPaths(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../x.xlsx", "a/b.xlsx", ".hidden"} {
		_, err := s.Open(context.Background(), name)
		assert.Error(t, err, name)
		assert.NotErrorIs(t, err, ErrNotFound, name)
	}
}
