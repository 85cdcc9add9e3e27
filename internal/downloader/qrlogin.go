package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
)

const (
	qrGenerateURL = "https://passport.bilibili.com/x/passport-login/web/qrcode/generate"
	qrPollURL     = "https://passport.bilibili.com/x/passport-login/web/qrcode/poll"

	defaultPollInterval = 2 * time.Second
	defaultLoginWindow  = 180 * time.Second
)

// Poll status codes returned by the QR poll endpoint.
const (
	pollConfirmed      = 0
	pollExpired        = 86038
	pollScannedPending = 86090
	pollNotScanned     = 86101
)

// QRSession is one short-lived login attempt. The server expires it
// independently of the local clock; a new one supersedes it, never a reuse
// of the stale key.
type QRSession struct {
	Key       string
	URL       string
	CreatedAt time.Time
}

// errQRExpired signals the driver to request a fresh QRSession.
var errQRExpired = errors.New("qr code expired")

// apiEnvelope is the platform's common response wrapper.
type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// loginClient drives the QR login protocol against a Session.
type loginClient struct {
	session *Session
	printer *Printer

	generateURL string
	pollURL     string
	interval    time.Duration
	window      time.Duration
	renderQR    func(url string)
}

func newLoginClient(session *Session, printer *Printer, opts Options) *loginClient {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	window := opts.LoginWindow
	if window <= 0 {
		window = defaultLoginWindow
	}
	return &loginClient{
		session:     session,
		printer:     printer,
		generateURL: qrGenerateURL,
		pollURL:     qrPollURL,
		interval:    interval,
		window:      window,
		renderQR:    renderQRTerminal,
	}
}

func renderQRTerminal(qrURL string) {
	qrterminal.GenerateWithConfig(qrURL, qrterminal.Config{
		Level:      qrterminal.L,
		Writer:     os.Stderr,
		HalfBlocks: true,
		QuietZone:  1,
	})
}

// generate requests a fresh QRSession. REQUESTING state: a non-zero
// envelope code is fatal.
func (c *loginClient) generate(ctx context.Context) (*QRSession, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.generateURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.session.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting login QR: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding QR response: %w", err)
	}
	if envelope.Code != 0 {
		return nil, &ProtocolError{Endpoint: "qrcode/generate", Code: envelope.Code, Message: envelope.Message}
	}

	var data struct {
		Key string `json:"qrcode_key"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding QR data: %w", err)
	}
	return &QRSession{Key: data.Key, URL: data.URL, CreatedAt: time.Now()}, nil
}

// waitForConfirm polls until the QR is confirmed, expired, or the window
// runs out. On confirmation it follows the provided URL to finalize the
// session cookies and returns the cookies set by that exchange.
func (c *loginClient) waitForConfirm(ctx context.Context, qr *QRSession) ([]*http.Cookie, error) {
	start := time.Now()

	for {
		status, confirmURL, err := c.poll(ctx, qr.Key)
		if err != nil {
			return nil, err
		}

		elapsed := time.Since(start).Round(time.Second)
		switch status {
		case pollNotScanned:
			c.printer.Status(fmt.Sprintf("[%4s] waiting for scan", elapsed))
		case pollScannedPending:
			c.printer.Status(fmt.Sprintf("[%4s] scanned, confirm on your device", elapsed))
		case pollExpired:
			c.printer.StatusEnd()
			return nil, errQRExpired
		case pollConfirmed:
			c.printer.StatusEnd()
			cookies, err := c.confirm(ctx, confirmURL)
			if err != nil {
				return nil, err
			}
			c.printer.Log(LogInfo, fmt.Sprintf("login confirmed after %s", elapsed))
			return cookies, nil
		default:
			c.printer.StatusEnd()
			return nil, &ProtocolError{Endpoint: "qrcode/poll", Code: status}
		}

		if time.Since(start) >= c.window {
			c.printer.StatusEnd()
			return nil, &LoginTimeoutError{Window: c.window}
		}
		if err := sleepWithContext(ctx, c.interval); err != nil {
			return nil, err
		}
	}
}

// poll performs one blocking round-trip against the poll endpoint.
func (c *loginClient) poll(ctx context.Context, key string) (int, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pollURL := c.pollURL + "?" + url.Values{"qrcode_key": {key}}.Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pollURL, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := c.session.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("polling login status: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return 0, "", fmt.Errorf("decoding poll response: %w", err)
	}
	if envelope.Code != 0 {
		return 0, "", &ProtocolError{Endpoint: "qrcode/poll", Code: envelope.Code, Message: envelope.Message}
	}

	var data struct {
		Code int    `json:"code"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return 0, "", fmt.Errorf("decoding poll data: %w", err)
	}
	return data.Code, data.URL, nil
}

// confirm follows the confirmation URL so the server finalizes the session
// cookies, and captures the cookies it sets.
func (c *loginClient) confirm(ctx context.Context, confirmURL string) ([]*http.Cookie, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, confirmURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.session.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("finalizing login: %w", err)
	}
	defer resp.Body.Close()
	return resp.Cookies(), nil
}

// Login runs the whole flow: request a QR, render it, poll. An expired QR
// restarts with a fresh key and a fresh window; a timeout restarts once
// more before giving up. Anything else aborts.
func (c *loginClient) Login(ctx context.Context) (CredentialSet, error) {
	timeoutRetried := false

	for {
		qr, err := c.generate(ctx)
		if err != nil {
			return CredentialSet{}, wrapCategory(CategoryLogin, err)
		}
		c.printer.Log(LogInfo, "scan the QR code with the bilibili app:")
		c.renderQR(qr.URL)

		cookies, err := c.waitForConfirm(ctx, qr)
		if errors.Is(err, errQRExpired) {
			c.printer.Log(LogWarn, "QR code expired, requesting a new one")
			continue
		}
		var timeoutErr *LoginTimeoutError
		if errors.As(err, &timeoutErr) {
			if !timeoutRetried {
				timeoutRetried = true
				c.printer.Log(LogWarn, "login timed out, requesting a new QR code")
				continue
			}
			return CredentialSet{}, wrapCategory(CategoryLogin, err)
		}
		if err != nil {
			return CredentialSet{}, wrapCategory(CategoryLogin, err)
		}

		return c.extractCredentials(cookies), nil
	}
}

// extractCredentials builds a CredentialSet from the confirmation
// response's cookies, keeping only those scoped to the platform's primary
// domain. Cookies the response did not carry fall back to the jar's current
// value as session-scoped.
func (c *loginClient) extractCredentials(cookies []*http.Cookie) CredentialSet {
	var set CredentialSet
	for _, cookie := range cookies {
		if !onPrimaryDomain(cookie.Domain) {
			continue
		}
		cred := Credential{Value: cookie.Value}
		if !cookie.Expires.IsZero() {
			e := cookie.Expires.UTC()
			cred.Expires = &e
		}
		switch cookie.Name {
		case cookieSession:
			set.Session = cred
		case cookieCSRF:
			set.CSRF = cred
		case cookieUserID:
			set.UserID = cred
		}
	}

	for name, dst := range map[string]*Credential{
		cookieSession: &set.Session,
		cookieCSRF:    &set.CSRF,
		cookieUserID:  &set.UserID,
	} {
		if dst.Value == "" {
			dst.Value = c.session.cookieValue(name)
		}
	}
	return set
}

func onPrimaryDomain(domain string) bool {
	domain = strings.TrimPrefix(domain, ".")
	return domain == "" || domain == "bilibili.com" || strings.HasSuffix(domain, ".bilibili.com")
}
