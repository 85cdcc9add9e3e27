package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// qrServer scripts the generate/poll/confirm endpoints.
type qrServer struct {
	mu        sync.Mutex
	ts        *httptest.Server
	genCount  int
	pollCodes []int // consumed in order; the last value repeats
	pollIdx   int
	currentKey  string
	confirmed   bool
	generateErr int // non-zero envelope code for generate, 0 = ok
}

func newQRServer(t *testing.T, pollCodes []int) *qrServer {
	t.Helper()
	s := &qrServer{pollCodes: pollCodes}
	mux := http.NewServeMux()
	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/poll", s.handlePoll)
	mux.HandleFunc("/confirm", s.handleConfirm)
	s.ts = httptest.NewServer(mux)
	t.Cleanup(s.ts.Close)
	return s
}

func (s *qrServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generateErr != 0 {
		fmt.Fprintf(w, `{"code":%d,"message":"rejected"}`, s.generateErr)
		return
	}
	s.genCount++
	s.currentKey = fmt.Sprintf("key-%d", s.genCount)
	fmt.Fprintf(w, `{"code":0,"data":{"qrcode_key":%q,"url":"https://passport.example/qr/%d"}}`, s.currentKey, s.genCount)
}

func (s *qrServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if got := r.URL.Query().Get("qrcode_key"); got != s.currentKey {
		// A stale key must never be reused after expiry.
		fmt.Fprintf(w, `{"code":0,"data":{"code":-9999,"url":""}}`)
		return
	}
	code := s.pollCodes[len(s.pollCodes)-1]
	if s.pollIdx < len(s.pollCodes) {
		code = s.pollCodes[s.pollIdx]
		s.pollIdx++
	}
	confirmURL := ""
	if code == 0 {
		confirmURL = s.ts.URL + "/confirm"
	}
	fmt.Fprintf(w, `{"code":0,"data":{"code":%d,"url":%q}}`, code, confirmURL)
}

func (s *qrServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.confirmed = true
	s.mu.Unlock()
	expires := time.Now().Add(180 * 24 * time.Hour)
	// Same-named cookie on a foreign domain must be ignored.
	http.SetCookie(w, &http.Cookie{Name: "SESSDATA", Value: "evil", Domain: "evil.example"})
	http.SetCookie(w, &http.Cookie{Name: "SESSDATA", Value: "sess-value", Domain: "bilibili.com", Expires: expires})
	http.SetCookie(w, &http.Cookie{Name: "bili_jct", Value: "jct-value", Domain: "bilibili.com", Expires: expires})
	http.SetCookie(w, &http.Cookie{Name: "DedeUserID", Value: "183894189", Domain: "bilibili.com"})
	w.WriteHeader(http.StatusOK)
}

func newTestLoginClient(s *qrServer, window time.Duration) *loginClient {
	session := NewSession()
	return &loginClient{
		session:     session,
		printer:     newPrinter(Options{Quiet: true}),
		generateURL: s.ts.URL + "/generate",
		pollURL:     s.ts.URL + "/poll",
		interval:    time.Millisecond,
		window:      window,
		renderQR:    func(string) {},
	}
}

func TestLogin_ScanThenConfirm(t *testing.T) {
	s := newQRServer(t, []int{pollNotScanned, pollNotScanned, pollScannedPending, pollConfirmed})
	c := newTestLoginClient(s, time.Second)

	set, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if set.Session.Value != "sess-value" {
		t.Fatalf("unexpected session value %q", set.Session.Value)
	}
	if set.CSRF.Value != "jct-value" || set.UserID.Value != "183894189" {
		t.Fatalf("unexpected credential values: %+v", set)
	}
	if set.Session.Expires == nil {
		t.Fatal("session cookie should carry its expiry")
	}
	if set.UserID.Expires != nil {
		t.Fatal("session-scoped cookie should have no expiry")
	}
	if s.genCount != 1 {
		t.Fatalf("expected 1 QR generation, got %d", s.genCount)
	}
	if !s.confirmed {
		t.Fatal("confirmation URL was never followed")
	}
}

func TestLogin_ExpiredQRGetsFreshKey(t *testing.T) {
	s := newQRServer(t, []int{pollNotScanned, pollExpired, pollConfirmed})
	c := newTestLoginClient(s, time.Second)

	set, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if set.Session.Value != "sess-value" {
		t.Fatalf("unexpected session value %q", set.Session.Value)
	}
	if s.genCount != 2 {
		t.Fatalf("expired QR should trigger exactly one regeneration, got %d generations", s.genCount)
	}
}

func TestLogin_TimeoutRetriesOnceThenFails(t *testing.T) {
	s := newQRServer(t, []int{pollNotScanned})
	c := newTestLoginClient(s, 5*time.Millisecond)

	_, err := c.Login(context.Background())
	var timeoutErr *LoginTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected LoginTimeoutError, got %v", err)
	}
	if s.genCount != 2 {
		t.Fatalf("timeout should restart exactly once, got %d generations", s.genCount)
	}
}

func TestLogin_GenerateProtocolError(t *testing.T) {
	s := newQRServer(t, []int{pollConfirmed})
	s.generateErr = -412
	c := newTestLoginClient(s, time.Second)

	_, err := c.Login(context.Background())
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if protoErr.Code != -412 {
		t.Fatalf("expected code -412, got %d", protoErr.Code)
	}
}

func TestLogin_UnknownPollStatusIsFatal(t *testing.T) {
	s := newQRServer(t, []int{12345})
	c := newTestLoginClient(s, time.Second)

	_, err := c.Login(context.Background())
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if s.genCount != 1 {
		t.Fatalf("fatal poll status must not restart, got %d generations", s.genCount)
	}
}

func TestLogin_ContextCancellation(t *testing.T) {
	s := newQRServer(t, []int{pollNotScanned})
	c := newTestLoginClient(s, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Login(ctx)
	if err == nil {
		t.Fatal("expected error after context cancellation")
	}
}
