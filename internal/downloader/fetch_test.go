package downloader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
)

func stubTier(label string, fn roundTripFunc) fetchTier {
	return fetchTier{label: label, client: &http.Client{Transport: fn}}
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestSafeGet_FirstTierWins(t *testing.T) {
	var second int32
	tiers := []fetchTier{
		stubTier("standard client", func(req *http.Request) (*http.Response, error) {
			return okResponse("tier1"), nil
		}),
		stubTier("insecure transport", func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&second, 1)
			return okResponse("tier2"), nil
		}),
	}

	resp, err := safeGet(context.Background(), "https://example.com", tiers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "tier1" {
		t.Fatalf("expected tier1 body, got %q", body)
	}
	if atomic.LoadInt32(&second) != 0 {
		t.Fatal("second tier should not have been attempted")
	}
}

func TestSafeGet_FallsThroughToLastTier(t *testing.T) {
	tlsErr := errors.New("tls: handshake failure")
	tiers := []fetchTier{
		stubTier("standard client", func(req *http.Request) (*http.Response, error) {
			return nil, tlsErr
		}),
		stubTier("insecure transport", func(req *http.Request) (*http.Response, error) {
			return nil, tlsErr
		}),
		stubTier("fresh client, no retry", func(req *http.Request) (*http.Response, error) {
			return okResponse("tier3"), nil
		}),
	}

	resp, err := safeGet(context.Background(), "https://example.com", tiers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "tier3" {
		t.Fatalf("expected tier3 body, got %q", body)
	}
}

func TestSafeGet_AggregateErrorListsAllTiers(t *testing.T) {
	tiers := []fetchTier{
		stubTier("standard client", func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("certificate expired")
		}),
		stubTier("insecure transport", func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}),
		stubTier("fresh client, no retry", func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("no route to host")
		}),
	}

	_, err := safeGet(context.Background(), "https://example.com", tiers)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if len(fe.Failures) != 3 {
		t.Fatalf("expected 3 failures, got %d", len(fe.Failures))
	}
	msg := err.Error()
	for _, want := range []string{
		"standard client", "certificate expired",
		"insecure transport", "connection refused",
		"fresh client, no retry", "no route to host",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("aggregate error missing %q:\n%s", want, msg)
		}
	}
}

func TestSafeGet_HTTPErrorStatusPropagates(t *testing.T) {
	var later int32
	tiers := []fetchTier{
		stubTier("standard client", func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: 404, Body: http.NoBody}, nil
		}),
		stubTier("insecure transport", func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&later, 1)
			return okResponse("tier2"), nil
		}),
	}

	_, err := safeGet(context.Background(), "https://example.com", tiers)
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", statusErr.StatusCode)
	}
	if atomic.LoadInt32(&later) != 0 {
		t.Fatal("error status must not fall through to the next tier")
	}
}

func TestSafeGet_RetryExhaustionFallsThrough(t *testing.T) {
	tiers := []fetchTier{
		stubTier("standard client", func(req *http.Request) (*http.Response, error) {
			// The retry layer hands back the final 5xx once its attempts
			// are spent.
			return &http.Response{StatusCode: 503, Body: http.NoBody}, nil
		}),
		stubTier("insecure transport", func(req *http.Request) (*http.Response, error) {
			return okResponse("tier2"), nil
		}),
	}

	resp, err := safeGet(context.Background(), "https://example.com", tiers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "tier2" {
		t.Fatalf("expected tier2 body, got %q", body)
	}
}

func TestSafeGet_ContextCancelPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tiers := []fetchTier{
		stubTier("standard client", func(req *http.Request) (*http.Response, error) {
			return nil, req.Context().Err()
		}),
	}

	_, err := safeGet(ctx, "https://example.com", tiers)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSessionFetchTiers(t *testing.T) {
	session := NewSession()
	tiers := session.fetchTiers()
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tiers))
	}
	if tiers[0].client != session.client {
		t.Fatal("tier 1 must be the shared client")
	}
	if tiers[1].client.Jar != session.jar {
		t.Fatal("tier 2 must share the session jar")
	}
	if tiers[2].client.Jar != nil {
		t.Fatal("tier 3 must not carry the jar")
	}
}
