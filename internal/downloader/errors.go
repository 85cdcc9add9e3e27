package downloader

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category classifies failures so main can map them to exit codes.
type Category int

const (
	CategoryNone Category = iota
	CategoryInvalidURL
	CategoryLogin
	CategoryNetwork
	CategoryResolution
	CategoryFilesystem
)

// CategorizedError attaches a Category to an underlying error.
type CategorizedError struct {
	Category Category
	Err      error
}

func (e CategorizedError) Error() string {
	return e.Err.Error()
}

func (e CategorizedError) Unwrap() error {
	return e.Err
}

func wrapCategory(category Category, err error) error {
	if err == nil {
		return nil
	}
	return CategorizedError{Category: category, Err: err}
}

// ExitCode returns the process exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce CategorizedError
	if errors.As(err, &ce) {
		switch ce.Category {
		case CategoryInvalidURL:
			return 2
		case CategoryLogin:
			return 3
		case CategoryNetwork:
			return 4
		case CategoryResolution:
			return 5
		case CategoryFilesystem:
			return 6
		}
	}
	return 1
}

type reportedError struct {
	err error
}

func (e reportedError) Error() string {
	return e.err.Error()
}

func (e reportedError) Unwrap() error {
	return e.err
}

func markReported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err: err}
}

// IsReported returns true if the error has already been printed to stderr.
func IsReported(err error) bool {
	var re reportedError
	return errors.As(err, &re)
}

// CredentialFileError means the credential file exists but cannot be used.
// A missing file is not an error; see loadCredentials.
type CredentialFileError struct {
	Path string
	Err  error
}

func (e *CredentialFileError) Error() string {
	return fmt.Sprintf("credential file %s: %v", e.Path, e.Err)
}

func (e *CredentialFileError) Unwrap() error {
	return e.Err
}

// ProtocolError is an unexpected application-level status from a login endpoint.
type ProtocolError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
}

// LoginTimeoutError means no confirmed scan arrived within the QR window.
type LoginTimeoutError struct {
	Window time.Duration
}

func (e *LoginTimeoutError) Error() string {
	return fmt.Sprintf("login not confirmed within %s", e.Window)
}

// Metadata responses missing the numeric identifiers needed for privileged calls.
var (
	ErrMissingAid = errors.New("metadata response missing aid")
	ErrMissingCid = errors.New("metadata response missing cid")
)

// ErrManifestNotFound means the video page did not embed a playinfo manifest.
// The marker is an undocumented page convention and is the first thing to
// check when resolution breaks after an upstream markup change.
var ErrManifestNotFound = errors.New("playinfo manifest not found in page")

// HTTPStatusError is a non-retryable HTTP error status from a completed
// exchange. It propagates out of SafeGet without trying further tiers.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// tierFailure records why one fetch tier gave up.
type tierFailure struct {
	Tier string
	Err  error
}

// FetchError aggregates the failures of every fetch tier.
type FetchError struct {
	URL      string
	Failures []tierFailure
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all fetch tiers failed for %s:", e.URL)
	for i, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %d) %s: %v", i+1, f.Tier, f.Err)
	}
	return b.String()
}
