package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pov-scribe/backend/internal/fault"
	"github.com/pov-scribe/backend/internal/workspace"
)

// MediaSource is the pipeline input: either an uploaded payload or a URL.
// The upload wins when both are set, since explicit bytes are the stronger
// signal of intent.
type MediaSource struct {
	Upload   []byte
	Filename string
	URL      string
	MIMEHint string
}

// Empty reports whether the source carries neither an upload nor a URL.
func (s MediaSource) Empty() bool {
	return len(s.Upload) == 0 && strings.TrimSpace(s.URL) == ""
}

// LocalMedia is a fetched media file inside the run workspace. Read-only
// after creation.
type LocalMedia struct {
	Path      string
	Size      int64
	Container string
}

// blockedSubstrings mark DRM or manifest-based sources the fetcher refuses
// without touching the network.
var blockedSubstrings = []string{
	"disneynow.com",
	"disneyplus.com",
	"netflix.com",
	"primevideo.com",
	".m3u8",
	".mpd",
}

// Blocked reports whether rawURL matches the DRM/manifest blocklist.
// Matching is case-insensitive and substring-based.
func Blocked(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, s := range blockedSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Fetcher resolves a MediaSource into a local file in the workspace.
type Fetcher struct {
	downloader string // path to the yt-dlp binary, empty when not installed
}

// New creates a fetcher. downloader may be empty; URL input then fails with
// FetchUnsupported instead of shelling out.
func New(downloader string) *Fetcher {
	return &Fetcher{downloader: downloader}
}

// Fetch materializes the source as a file under the workspace root.
func (f *Fetcher) Fetch(ctx context.Context, src MediaSource, ws *workspace.Workspace) (*LocalMedia, error) {
	switch {
	case len(src.Upload) > 0:
		return f.fetchUpload(src, ws)
	case strings.TrimSpace(src.URL) != "":
		return f.fetchURL(ctx, strings.TrimSpace(src.URL), ws)
	default:
		return nil, fault.New(fault.InputInvalid, "no upload or URL provided")
	}
}

func (f *Fetcher) fetchUpload(src MediaSource, ws *workspace.Workspace) (*LocalMedia, error) {
	ext := strings.ToLower(filepath.Ext(src.Filename))
	if ext == "" {
		ext = ".bin"
	}
	dst, err := ws.Allocate("input" + ext)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(dst, src.Upload, 0644); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return nil, err
	}
	if info.Size() != int64(len(src.Upload)) {
		return nil, fault.New(fault.FetchCorrupt, "wrote %d bytes, expected %d", info.Size(), len(src.Upload))
	}
	return &LocalMedia{
		Path:      dst,
		Size:      info.Size(),
		Container: strings.TrimPrefix(ext, "."),
	}, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string, ws *workspace.Workspace) (*LocalMedia, error) {
	if Blocked(rawURL) {
		return nil, fault.New(fault.FetchBlocked, "URL matches the DRM/manifest blocklist")
	}
	if f.downloader == "" {
		return nil, fault.New(fault.FetchUnsupported, "no downloader installed for URL input")
	}

	dst, err := ws.Allocate("input.mp4")
	if err != nil {
		return nil, err
	}

	// No playlist expansion, best available video+audio, merged to mp4 at a
	// path we control.
	cmd := exec.CommandContext(ctx, f.downloader,
		"--no-playlist",
		"--no-warnings",
		"-f", "bestvideo*+bestaudio/best",
		"--merge-output-format", "mp4",
		"-o", dst,
		rawURL,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fe := fault.Wrap(fault.FetchUnsupported, err, "downloader failed for URL")
		fe.Stderr = stderr.String()
		return nil, fe
	}

	info, err := os.Stat(dst)
	if err != nil {
		fe := fault.New(fault.FetchUnsupported, "downloader produced no output file")
		fe.Stderr = stderr.String()
		return nil, fe
	}

	log.Printf("[fetch] downloaded %s (%d bytes)", filepath.Base(dst), info.Size())
	return &LocalMedia{Path: dst, Size: info.Size(), Container: "mp4"}, nil
}
