package downloader

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
)

// fetchTier is one rung of the degradation ladder: a label for diagnostics
// and the client to attempt the request with.
type fetchTier struct {
	label  string
	client *http.Client
}

// fetchTiers builds the ordered strategy list for SafeGet:
//  1. the shared client (jar, retry policy, certificate verification on)
//  2. same jar and headers, certificate verification off
//  3. a fresh client with no retry policy, inherited headers only,
//     certificate verification off
func (s *Session) fetchTiers() []fetchTier {
	degradedHeaders := &headerTransport{
		base:      insecureTransport,
		userAgent: defaultUserAgent,
		referer:   loginReferer,
	}
	return []fetchTier{
		{label: "standard client", client: s.client},
		{label: "insecure transport", client: &http.Client{
			Jar:       s.jar,
			Transport: newRetryTransport(degradedHeaders, defaultRetryConfig),
		}},
		{label: "fresh client, no retry", client: &http.Client{
			Transport: degradedHeaders,
		}},
	}
}

// SafeGet fetches a URL through progressively less strict transport tiers.
// TLS faults, exhausted retries, and generic network errors all degrade to
// the next tier; an HTTP error status from a completed exchange propagates
// immediately. If every tier fails the aggregate error carries all three
// tier-labeled failures.
//
// Meant for the handful of pages and APIs that have shown real-world TLS
// instability, not for media streaming.
func (s *Session) SafeGet(ctx context.Context, rawURL string) (*http.Response, error) {
	return safeGet(ctx, rawURL, s.fetchTiers())
}

func safeGet(ctx context.Context, rawURL string, tiers []fetchTier) (*http.Response, error) {
	var failures []tierFailure

	for _, tier := range tiers {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := tier.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures = append(failures, tierFailure{Tier: tier.label, Err: classifyFetchErr(err)})
			continue
		}

		switch {
		case resp.StatusCode < 400:
			return resp, nil
		case isRetryableStatus(resp.StatusCode):
			// The retry layer already exhausted its attempts on this status.
			resp.Body.Close()
			failures = append(failures, tierFailure{
				Tier: tier.label,
				Err:  fmt.Errorf("retries exhausted: status %d", resp.StatusCode),
			})
		default:
			// A completed exchange with an error status is not a transport
			// fault; do not fall through to a weaker tier.
			resp.Body.Close()
			return nil, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
		}
	}

	return nil, &FetchError{URL: rawURL, Failures: failures}
}

// classifyFetchErr tags transport errors so the aggregate failure message
// says which layer broke.
func classifyFetchErr(err error) error {
	if isTLSError(err) {
		return fmt.Errorf("tls error: %w", err)
	}
	return fmt.Errorf("network error: %w", err)
}

func isTLSError(err error) bool {
	var (
		certErr     *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &certErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
