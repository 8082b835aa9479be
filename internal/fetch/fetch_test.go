package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/aura-dl/aura-core/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestDiscoverLengthFromHead(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(1000))
	defer srv.Close()

	f, err := New(Options{})
	require.NoError(t, err)

	n, err := f.DiscoverLength(context.Background(), srv.URL(), "ua")
	require.NoError(t, err)
	require.Equal(t, int64(1000), n)
}

func TestDiscoverLengthExpiredLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f, err := New(Options{})
	require.NoError(t, err)

	_, err = f.DiscoverLength(context.Background(), srv.URL, "ua")
	require.Error(t, err)
	require.True(t, IsExpiredLink(err))
}

func TestFetchRangeWritesExactBytes(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(10_000), testutil.WithRandomData(true))
	defer srv.Close()

	f, err := New(Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	dest := filepath.Join(dir, "part0")
	var progress int64
	err = f.FetchRange(context.Background(), srv.URL(), "ua", 100, 299, dest, &progress, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, 200, len(got))
	require.Equal(t, int64(200), progress)
}

func TestFetchRangeHonorsCancel(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(10_000_000))
	defer srv.Close()

	f, err := New(Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	dest := filepath.Join(dir, "part0")
	var progress int64
	var cancel atomic.Bool
	cancel.Store(true)

	err = f.FetchRange(context.Background(), srv.URL(), "ua", 0, 9_999_999, dest, &progress, &cancel)
	require.Error(t, err)
	require.True(t, IsPausedByUser(err))
}

func TestFetchRangeRejectsExpiredLink(t *testing.T) {
	srv := testutil.NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	f, err := New(Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	var progress int64
	err = f.FetchRange(context.Background(), srv.URL, "ua", 0, 9, filepath.Join(dir, "p"), &progress, nil)
	require.Error(t, err)
	require.True(t, IsExpiredLink(err))
}
