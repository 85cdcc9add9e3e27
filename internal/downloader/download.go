package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// downloadStream performs the chunked streamed copy of one media track to
// the temp directory. Media servers require the video page as Referer.
func downloadStream(ctx context.Context, session *Session, args DownloadArgs, suffix string, opts Options, printer *Printer) (string, error) {
	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = "temp"
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", wrapCategory(CategoryFilesystem, fmt.Errorf("creating temp directory: %w", err))
	}
	path := filepath.Join(tempDir, sanitize(args.Title)+suffix)
	referer := videoPageBase + args.BVID

	size := contentLength(ctx, session, args.URL, referer)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Referer", referer)

	resp, err := session.client.Do(req)
	if err != nil {
		return "", wrapCategory(CategoryNetwork, fmt.Errorf("downloading stream: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", wrapCategory(CategoryNetwork, &HTTPStatusError{URL: args.URL, StatusCode: resp.StatusCode})
	}
	if size <= 0 {
		size = resp.ContentLength
	}

	f, err := os.Create(path)
	if err != nil {
		return "", wrapCategory(CategoryFilesystem, err)
	}

	progress := newProgressWriter(size, printer, truncateText(args.Title, 40))
	_, err = copyWithContext(ctx, io.MultiWriter(f, progress), resp.Body)
	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		return "", wrapCategory(CategoryNetwork, fmt.Errorf("downloading stream: %w", err))
	}
	if closeErr != nil {
		os.Remove(path)
		return "", wrapCategory(CategoryFilesystem, closeErr)
	}
	progress.Finish()

	return path, nil
}

// contentLength asks the server for the stream size up front so progress
// can show a percentage. Best effort only.
func contentLength(ctx context.Context, session *Session, rawURL, referer string) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0
	}
	req.Header.Set("Referer", referer)
	resp, err := session.client.Do(req)
	if err != nil {
		return 0
	}
	resp.Body.Close()
	if v := resp.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
