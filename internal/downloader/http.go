package downloader

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

const loginReferer = "https://passport.bilibili.com/login"

var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout:   10 * time.Second,
	ResponseHeaderTimeout: 15 * time.Second,
	IdleConnTimeout:       90 * time.Second,
}

// insecureTransport mirrors sharedTransport but skips certificate
// verification. Used only by the degraded fetch tiers.
var insecureTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout:   10 * time.Second,
	ResponseHeaderTimeout: 15 * time.Second,
	IdleConnTimeout:       90 * time.Second,
	TLSClientConfig:       &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
}

func CloseIdleConnections() {
	sharedTransport.CloseIdleConnections()
	insecureTransport.CloseIdleConnections()
}

// headerTransport injects the default headers every outbound request carries.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	referer   string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Referer") == "" && t.referer != "" {
		req.Header.Set("Referer", t.referer)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, text/plain, */*")
	}
	return t.base.RoundTrip(req)
}

// Session is the single shared HTTP client state: one cookie jar, fixed
// default headers, and the bounded 5xx retry policy. Login writes the
// credential cookies into the jar; resolution re-injects them before each
// pass. Passed explicitly to everything that needs authenticated access.
type Session struct {
	client *http.Client
	jar    http.CookieJar
}

func NewSession() *Session {
	jar, _ := cookiejar.New(nil)
	var transport http.RoundTripper = &headerTransport{
		base:      sharedTransport,
		userAgent: defaultUserAgent,
		referer:   loginReferer,
	}
	transport = newRetryTransport(transport, defaultRetryConfig)
	return &Session{
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
		},
		jar: jar,
	}
}

// Client exposes the underlying shared client for plain requests.
func (s *Session) Client() *http.Client {
	return s.client
}

var bilibiliOrigin = &url.URL{Scheme: "https", Host: "www.bilibili.com"}

// SetCredentials writes the three credential cookies into the jar, scoped
// to the platform domain.
func (s *Session) SetCredentials(set CredentialSet) {
	s.jar.SetCookies(bilibiliOrigin, set.cookies())
}

// cookieValue returns the value of a named cookie currently stored for the
// platform domain, or "" if absent.
func (s *Session) cookieValue(name string) string {
	for _, c := range s.jar.Cookies(bilibiliOrigin) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
