package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
	"github.com/tendant/scoped-upload/pkg/scopedupload/gatewaytest"
)

const secret = "cli-test-secret"

func imageDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cat.png"), []byte("cat"), 0o600))
	return dir
}

func TestRunUploadsDirectory(t *testing.T) {
	server, gw := gatewaytest.NewServer(secret, scopedupload.AlgorithmHS256)
	defer server.Close()
	t.Setenv("SCOPED_UPLOAD_ENDPOINT", server.URL)
	t.Setenv("SCOPED_UPLOAD_SIGNING_SECRET", secret)

	require.NoError(t, run([]string{"-dir", imageDir(t)}))
	assert.Equal(t, 1, gw.Len())
}

// Failures come back as errors so deferred cleanup in run executes.
func TestRunReturnsErrors(t *testing.T) {
	server, gw := gatewaytest.NewServer(secret, scopedupload.AlgorithmHS256)
	defer server.Close()

	t.Run("missing endpoint", func(t *testing.T) {
		t.Setenv("SCOPED_UPLOAD_ENDPOINT", "")
		t.Setenv("SCOPED_UPLOAD_SIGNING_SECRET", secret)
		err := run([]string{"-dir", imageDir(t)})
		assert.ErrorIs(t, err, scopedupload.ErrConfigMissing)
	})

	t.Run("no source", func(t *testing.T) {
		t.Setenv("SCOPED_UPLOAD_ENDPOINT", server.URL)
		t.Setenv("SCOPED_UPLOAD_SIGNING_SECRET", secret)
		err := run(nil)
		assert.ErrorContains(t, err, "-dir, -manifest or -s3-bucket")
	})

	t.Run("bad ledger dsn", func(t *testing.T) {
		t.Setenv("SCOPED_UPLOAD_ENDPOINT", server.URL)
		t.Setenv("SCOPED_UPLOAD_SIGNING_SECRET", secret)
		err := run([]string{"-dir", imageDir(t), "-ledger-dsn", "host=localhost port=notaport"})
		assert.ErrorContains(t, err, "failed to create connection pool")
	})

	t.Run("rejected batch", func(t *testing.T) {
		t.Setenv("SCOPED_UPLOAD_ENDPOINT", server.URL)
		t.Setenv("SCOPED_UPLOAD_SIGNING_SECRET", "wrong-secret")
		err := run([]string{"-dir", imageDir(t)})
		assert.True(t, errors.Is(err, errReported))
	})

	t.Run("unknown flag", func(t *testing.T) {
		err := run([]string{"-nope"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, flag.ErrHelp))
	})

	assert.Equal(t, 0, gw.Len())
}
