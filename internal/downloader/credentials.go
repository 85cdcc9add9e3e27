package downloader

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// The three cookies that make up a login session.
const (
	cookieSession = "SESSDATA"
	cookieCSRF    = "bili_jct"
	cookieUserID  = "DedeUserID"
)

const expiryLayout = "2006-01-02 15:04:05 MST"

// Credential is one session cookie value with its expiry. A nil expiry
// means a session-scoped cookie with no fixed lifetime.
type Credential struct {
	Value   string
	Expires *time.Time
}

func (c Credential) expired(now time.Time) bool {
	return c.Expires != nil && !c.Expires.After(now)
}

// CredentialSet holds the three credential cookies. It is created by the
// QR login flow, replaced wholesale on re-login, and never mutated in place.
type CredentialSet struct {
	Session Credential
	CSRF    Credential
	UserID  Credential
}

// Usable reports whether every credential with a known expiry is still in
// the future. Session-scoped cookies (nil expiry) never block usability.
func (s CredentialSet) Usable(now time.Time) bool {
	return !s.Session.expired(now) && !s.CSRF.expired(now) && !s.UserID.expired(now)
}

// cookies converts the set to jar-ready cookies scoped to the platform domain.
func (s CredentialSet) cookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, 3)
	for _, c := range []struct {
		name  string
		value string
	}{
		{cookieSession, s.Session.Value},
		{cookieCSRF, s.CSRF.Value},
		{cookieUserID, s.UserID.Value},
	} {
		cookie := &http.Cookie{Name: c.name, Value: c.value, Domain: ".bilibili.com", Path: "/"}
		out = append(out, cookie)
	}
	return out
}

type credentialJSON struct {
	Value   *string `json:"value"`
	Expires *string `json:"expires"`
}

func (c Credential) toJSON() credentialJSON {
	var j credentialJSON
	if c.Value != "" {
		v := c.Value
		j.Value = &v
	}
	if c.Expires != nil {
		e := c.Expires.UTC().Format(expiryLayout)
		j.Expires = &e
	}
	return j
}

func credentialFromJSON(j credentialJSON) (Credential, error) {
	var c Credential
	if j.Value != nil {
		c.Value = *j.Value
	}
	if j.Expires != nil {
		t, err := time.Parse(expiryLayout, *j.Expires)
		if err != nil {
			return Credential{}, fmt.Errorf("parsing expiry %q: %w", *j.Expires, err)
		}
		t = t.UTC()
		c.Expires = &t
	}
	return c, nil
}

// loadCredentials reads a persisted credential set. A missing file is not
// an error (ok=false); a present but unreadable or corrupt file is fatal.
func loadCredentials(path string) (CredentialSet, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return CredentialSet{}, false, nil
	}
	if err != nil {
		return CredentialSet{}, false, &CredentialFileError{Path: path, Err: err}
	}

	var raw map[string]credentialJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return CredentialSet{}, false, &CredentialFileError{Path: path, Err: err}
	}

	var set CredentialSet
	for name, dst := range map[string]*Credential{
		cookieSession: &set.Session,
		cookieCSRF:    &set.CSRF,
		cookieUserID:  &set.UserID,
	} {
		c, err := credentialFromJSON(raw[name])
		if err != nil {
			return CredentialSet{}, false, &CredentialFileError{Path: path, Err: err}
		}
		*dst = c
	}
	return set, true, nil
}

// saveCredentials rewrites the credential file wholesale.
func saveCredentials(path string, set CredentialSet) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating credential directory: %w", err)
		}
	}
	raw := map[string]credentialJSON{
		cookieSession: set.Session.toJSON(),
		cookieCSRF:    set.CSRF.toJSON(),
		cookieUserID:  set.UserID.toJSON(),
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	return nil
}
