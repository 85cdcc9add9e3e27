package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

const (
	viewAPIURL    = "https://api.bilibili.com/x/web-interface/view"
	playURLAPIURL = "https://api.bilibili.com/x/player/playurl"
	videoPageBase = "https://www.bilibili.com/video/"
)

// playinfoRe matches the JSON manifest the page embeds between the
// assignment marker and the closing script tag.
var playinfoRe = regexp.MustCompile(`(?s)window\.__playinfo__\s*=\s*(\{.+?\})\s*</script>`)

// ResolvedMedia is the outcome of resolving one video: direct stream URLs
// for the platform-chosen default representations plus the advertised
// quality ladder. Rebuilt on every run, never persisted.
type ResolvedMedia struct {
	BVID               string `json:"bvid"`
	Aid                int64  `json:"aid"`
	Cid                int64  `json:"cid"`
	Title              string `json:"title"`
	Owner              string `json:"owner,omitempty"`
	VideoStreamURL     string `json:"video_url"`
	AudioStreamURL     string `json:"audio_url"`
	AvailableQualities []int  `json:"accept_quality"`
}

// DownloadArgs bundles what the download collaborator needs for one stream.
type DownloadArgs struct {
	BVID  string
	Title string
	URL   string
}

func (m *ResolvedMedia) VideoDownloadArgs() DownloadArgs {
	return DownloadArgs{BVID: m.BVID, Title: m.Title, URL: m.VideoStreamURL}
}

func (m *ResolvedMedia) AudioDownloadArgs() DownloadArgs {
	return DownloadArgs{BVID: m.BVID, Title: m.Title, URL: m.AudioStreamURL}
}

// Resolver turns a BV identifier into direct media endpoints using the
// shared session.
type Resolver struct {
	session *Session

	viewURL    string
	playurlURL string
	pageBase   string
}

func newResolver(session *Session) *Resolver {
	return &Resolver{
		session:    session,
		viewURL:    viewAPIURL,
		playurlURL: playURLAPIURL,
		pageBase:   videoPageBase,
	}
}

// viewData is the subset of the public metadata endpoint we consume.
// Pointer fields distinguish "absent" from zero.
type viewData struct {
	Aid   *int64 `json:"aid"`
	Cid   *int64 `json:"cid"`
	Title string `json:"title"`
	Owner struct {
		Name string `json:"name"`
	} `json:"owner"`
}

// fetchView reads the public metadata endpoint through resilient fetch.
func (r *Resolver) fetchView(ctx context.Context, bvid string) (*viewData, error) {
	resp, err := r.session.SafeGet(ctx, r.viewRequestURL(bvid))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeView(resp.Body)
}

// plainView reads the same endpoint with a single direct request. The
// identifier lookup predates the resilient path and stays on it so the two
// lookups keep independent failure behavior.
func (r *Resolver) plainView(ctx context.Context, bvid string) (*viewData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.viewRequestURL(bvid), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.session.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{URL: r.viewURL, StatusCode: resp.StatusCode}
	}
	return decodeView(resp.Body)
}

func (r *Resolver) viewRequestURL(bvid string) string {
	return r.viewURL + "?" + url.Values{"bvid": {bvid}}.Encode()
}

func decodeView(body io.Reader) (*viewData, error) {
	var envelope apiEnvelope
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding view response: %w", err)
	}
	var data viewData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding view data: %w", err)
	}
	return &data, nil
}

// AidCid looks up the numeric video and content identifiers from the
// public metadata endpoint. Kept independent from the manifest-derived
// values so the two lookups fail separately.
func (r *Resolver) AidCid(ctx context.Context, bvid string) (int64, int64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := r.plainView(reqCtx, bvid)
	if err != nil {
		return 0, 0, wrapCategory(CategoryResolution, fmt.Errorf("fetching video metadata: %w", err))
	}
	if data.Aid == nil {
		return 0, 0, wrapCategory(CategoryResolution, fmt.Errorf("%s: %w", bvid, ErrMissingAid))
	}
	if data.Cid == nil {
		return 0, 0, wrapCategory(CategoryResolution, fmt.Errorf("%s: %w", bvid, ErrMissingCid))
	}
	return *data.Aid, *data.Cid, nil
}

// playinfo mirrors the embedded manifest's dash section.
type playinfo struct {
	Data struct {
		AcceptQuality []int `json:"accept_quality"`
		Dash          struct {
			Video []dashRepresentation `json:"video"`
			Audio []dashRepresentation `json:"audio"`
		} `json:"dash"`
	} `json:"data"`
}

type dashRepresentation struct {
	ID      int    `json:"id"`
	BaseURL string `json:"baseUrl"`
}

// Resolve produces a ResolvedMedia for one BV identifier. Each step is a
// fatal failure point: identifier lookup, authenticated page fetch,
// manifest extraction, stream URL extraction, title fetch.
func (r *Resolver) Resolve(ctx context.Context, bvid string, creds CredentialSet) (*ResolvedMedia, error) {
	aid, cid, err := r.AidCid(ctx, bvid)
	if err != nil {
		return nil, err
	}

	r.session.SetCredentials(creds)

	pageCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	page, err := r.fetchPage(pageCtx, bvid)
	cancel()
	if err != nil {
		return nil, wrapCategory(CategoryResolution, fmt.Errorf("fetching video page: %w", err))
	}

	match := playinfoRe.FindSubmatch(page)
	if match == nil {
		return nil, wrapCategory(CategoryResolution, fmt.Errorf("%s: %w", bvid, ErrManifestNotFound))
	}
	var manifest playinfo
	if err := json.Unmarshal(match[1], &manifest); err != nil {
		return nil, wrapCategory(CategoryResolution, fmt.Errorf("parsing playinfo manifest: %w", err))
	}

	dash := manifest.Data.Dash
	if len(dash.Video) == 0 || len(dash.Audio) == 0 {
		return nil, wrapCategory(CategoryResolution, fmt.Errorf("manifest has no dash representations for %s", bvid))
	}

	titleCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	view, err := r.fetchView(titleCtx, bvid)
	cancel()
	if err != nil {
		return nil, wrapCategory(CategoryResolution, fmt.Errorf("fetching video info: %w", err))
	}

	return &ResolvedMedia{
		BVID:  bvid,
		Aid:   aid,
		Cid:   cid,
		Title: view.Title,
		Owner: view.Owner.Name,
		// Index 0 is the platform-chosen default representation, not
		// necessarily the highest quality.
		VideoStreamURL:     dash.Video[0].BaseURL,
		AudioStreamURL:     dash.Audio[0].BaseURL,
		AvailableQualities: manifest.Data.AcceptQuality,
	}, nil
}

func (r *Resolver) fetchPage(ctx context.Context, bvid string) ([]byte, error) {
	resp, err := r.session.SafeGet(ctx, r.pageBase+bvid)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// EnumerateQualities queries the playback-URL endpoint with explicit
// format negotiation parameters and returns the quality ladder the current
// login can access. Separate from Resolve, which always takes the default
// representation; this exists for inspection only.
func (r *Resolver) EnumerateQualities(ctx context.Context, bvid string, creds CredentialSet) ([]int, error) {
	aid, cid, err := r.AidCid(ctx, bvid)
	if err != nil {
		return nil, err
	}

	r.session.SetCredentials(creds)

	params := url.Values{
		"avid":         {fmt.Sprint(aid)},
		"bvid":         {bvid},
		"cid":          {fmt.Sprint(cid)},
		"otype":        {"json"},
		"type":         {"mp4"},
		"fnver":        {"0"},
		"fnval":        {"0"},
		"fourk":        {"1"},
		"platform":     {"html5"},
		"high_quality": {"1"},
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, r.playurlURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", r.pageBase+bvid+"?p=1")

	resp, err := r.session.client.Do(req)
	if err != nil {
		return nil, wrapCategory(CategoryNetwork, fmt.Errorf("fetching playurl: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, wrapCategory(CategoryNetwork, &HTTPStatusError{URL: r.playurlURL, StatusCode: resp.StatusCode})
	}

	var payload struct {
		Data struct {
			AcceptQuality []int `json:"accept_quality"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, wrapCategory(CategoryResolution, fmt.Errorf("decoding playurl response: %w", err))
	}
	return payload.Data.AcceptQuality, nil
}
