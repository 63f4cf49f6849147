package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"summer25", "SUMMER25", true},
		{"  spring-10 \r", "SPRING-10", true},
		{"ABC", "", false},
		{strings.Repeat("A", 33), "", false},
		{"HAS SPACE", "", false},
		{"EMOJI😀X", "", false},
		{"OK_CODE", "OK_CODE", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeCode(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScreen(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz", "ALPHA001", "SHARED01", "bad", "beta0002"),
		writeGz(t, dir, "b.gz", "shared01", "GAMMA003", "SHARED02"),
		writeGz(t, dir, "c.gz", "SHARED02", "DELTA004", "delta004"),
	}

	var got []string
	stats, err := Screen(context.Background(), zap.NewNop(), Config{Files: files, ExpectedCodes: 1000}, func(code string) error {
		got = append(got, code)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ALPHA001", "BETA0002", "GAMMA003", "DELTA004", "DELTA004"}, got)
	assert.Equal(t, Stats{Scanned: 10, Invalid: 1, Shared: 2, Accepted: 5}, stats)
}

func TestScreenEmitError(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeGz(t, dir, "a.gz", "ALPHA001", "BETA0002")}

	calls := 0
	_, err := Screen(context.Background(), zap.NewNop(), Config{Files: files, ExpectedCodes: 100}, func(string) error {
		calls++
		return errors.New("db down")
	})
	require.ErrorContains(t, err, "db down")
	assert.Equal(t, 1, calls)
}

func TestScreenErrors(t *testing.T) {
	ctx := context.Background()
	emit := func(string) error { return nil }

	_, err := Screen(ctx, zap.NewNop(), Config{}, emit)
	assert.ErrorContains(t, err, "no input files")

	_, err = Screen(ctx, zap.NewNop(), Config{Files: []string{filepath.Join(t.TempDir(), "missing.gz")}}, emit)
	assert.ErrorContains(t, err, "check file")

	plain := filepath.Join(t.TempDir(), "plain.gz")
	require.NoError(t, os.WriteFile(plain, []byte("not gzip"), 0o600))
	_, err = Screen(ctx, zap.NewNop(), Config{Files: []string{plain}, ExpectedCodes: 10}, emit)
	assert.ErrorContains(t, err, "gzip reader")
}

func TestScreenCanceled(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeGz(t, dir, "a.gz", "ALPHA001")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Screen(ctx, zap.NewNop(), Config{Files: files, ExpectedCodes: 10}, func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
