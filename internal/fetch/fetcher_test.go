package fetch

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pov-scribe/backend/internal/fault"
	"github.com/pov-scribe/backend/internal/workspace"
)

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "test")
	require.NoError(t, err)
	t.Cleanup(ws.Dispose)
	return ws
}

func TestBlocked(t *testing.T) {
	blocked := []string{
		"https://www.netflix.com/watch/12345",
		"https://DisneyPlus.com/show",
		"https://disneynow.com/ep",
		"https://www.primevideo.com/detail/x",
		"https://cdn.example.com/stream/master.m3u8",
		"https://cdn.example.com/stream/manifest.MPD?x=1",
	}
	for _, u := range blocked {
		assert.True(t, Blocked(u), "url %s", u)
	}

	allowed := []string{
		"https://example.com/video.mp4",
		"https://archive.org/download/film/film.mkv",
		"", // empty is not blocked, just unsupported later
	}
	for _, u := range allowed {
		assert.False(t, Blocked(u), "url %s", u)
	}
}

func TestFetchUploadWritesBytes(t *testing.T) {
	ws := newWorkspace(t)
	payload := []byte("fake media payload")

	f := New("")
	local, err := f.Fetch(context.Background(), MediaSource{Upload: payload, Filename: "clip.MKV"}, ws)
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), local.Size)
	assert.Equal(t, "mkv", local.Container)

	written, err := os.ReadFile(local.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, written)
}

func TestFetchUploadWinsOverURL(t *testing.T) {
	ws := newWorkspace(t)

	f := New("")
	local, err := f.Fetch(context.Background(), MediaSource{
		Upload:   []byte("bytes"),
		Filename: "a.mp4",
		URL:      "https://example.com/other.mp4",
	}, ws)
	require.NoError(t, err)
	assert.Equal(t, "mp4", local.Container)
}

func TestFetchEmptySource(t *testing.T) {
	ws := newWorkspace(t)

	f := New("")
	_, err := f.Fetch(context.Background(), MediaSource{}, ws)
	assert.True(t, fault.IsKind(err, fault.InputInvalid))
	assert.True(t, MediaSource{}.Empty())
}

func TestFetchBlockedURLNoNetwork(t *testing.T) {
	ws := newWorkspace(t)

	// Downloader path is bogus on purpose: a blocked URL must be refused
	// before anything is executed.
	f := New("/nonexistent/yt-dlp")
	_, err := f.Fetch(context.Background(), MediaSource{URL: "https://netflix.com/watch/1"}, ws)
	assert.True(t, fault.IsKind(err, fault.FetchBlocked))
}

func TestFetchURLWithoutDownloader(t *testing.T) {
	ws := newWorkspace(t)

	f := New("")
	_, err := f.Fetch(context.Background(), MediaSource{URL: "https://example.com/v.mp4"}, ws)
	assert.True(t, fault.IsKind(err, fault.FetchUnsupported))
}
