package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
)

const (
	defaultPageSize = 100
	maxJSONBody     = 16 << 20
	maxAssetBody    = 64 << 20
	assetMetricKind = "asset"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	SpaceID     string
	AccessToken string
	Environment string
	Host        string
	// BaseURL overrides https://<Host>.
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration

	RequestsPerSecond float64
	Burst             int
	Retry             retry.Policy
	Recorder          metrics.Recorder
	PageSize          int
}

// Client reads entries from the Contentful Content Delivery API.
type Client struct {
	baseURL   string
	spaceID   string
	env       string
	token     string
	http      *http.Client
	limiter   *RateLimiter
	policy    retry.Policy
	recorder  metrics.Recorder
	pageSize  int
	userAgent string
}

// NewClient validates opts and builds a client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.SpaceID == "" {
		return nil, errors.New("content client: space id is required")
	}
	if opts.AccessToken == "" {
		return nil, errors.New("content client: access token is required")
	}
	if opts.Environment == "" {
		opts.Environment = "master"
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		host := opts.Host
		if host == "" {
			host = "cdn.contentful.com"
		}
		base = "https://" + host
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("content client: retry policy: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = defaultPageSize
	}
	return &Client{
		baseURL:   base,
		spaceID:   opts.SpaceID,
		env:       opts.Environment,
		token:     opts.AccessToken,
		http:      hc,
		limiter:   NewRateLimiter(opts.RequestsPerSecond, opts.Burst),
		policy:    opts.Retry,
		recorder:  metrics.OrNoop(opts.Recorder),
		pageSize:  pageSize,
		userAgent: "sitebuilder",
	}, nil
}

// NewClientFromConfig builds a client from a validated configuration.
func NewClientFromConfig(cfg *config.Config, rec metrics.Recorder) (*Client, error) {
	d := cfg.ParsedDurations()
	return NewClient(ClientOptions{
		SpaceID:           cfg.Content.SpaceID,
		AccessToken:       cfg.Content.AccessToken,
		Environment:       cfg.Content.Environment,
		Host:              cfg.Content.Host,
		Timeout:           d.ContentTimeout,
		RequestsPerSecond: cfg.Content.RateLimit.RequestsPerSecond,
		Burst:             cfg.Content.RateLimit.Burst,
		Retry:             retry.FromConfig(cfg),
		Recorder:          rec,
	})
}

type sysLink struct {
	ID          string `json:"id"`
	Revision    int    `json:"revision"`
	UpdatedAt   string `json:"updatedAt"`
	ContentType *struct {
		Sys struct {
			ID string `json:"id"`
		} `json:"sys"`
	} `json:"contentType,omitempty"`
}

type entriesResponse struct {
	Total int `json:"total"`
	Skip  int `json:"skip"`
	Items []struct {
		Sys    sysLink        `json:"sys"`
		Fields map[string]any `json:"fields"`
	} `json:"items"`
	Includes struct {
		Asset []assetItem `json:"Asset"`
	} `json:"includes"`
}

type assetItem struct {
	Sys    sysLink `json:"sys"`
	Fields struct {
		Title string `json:"title"`
		File  *struct {
			URL         string `json:"url"`
			ContentType string `json:"contentType"`
			Details     struct {
				Image *struct {
					Width  int `json:"width"`
					Height int `json:"height"`
				} `json:"image"`
			} `json:"details"`
		} `json:"file"`
	} `json:"fields"`
}

func (a assetItem) reference() (ImageReference, bool) {
	if a.Sys.ID == "" || a.Fields.File == nil || a.Fields.File.URL == "" {
		return ImageReference{}, false
	}
	ref := ImageReference{
		AssetID:     a.Sys.ID,
		URL:         a.Fields.File.URL,
		ContentHash: contentHash(a.Sys.Revision, a.Sys.UpdatedAt),
		ContentType: a.Fields.File.ContentType,
		Title:       a.Fields.Title,
	}
	if img := a.Fields.File.Details.Image; img != nil {
		ref.Width, ref.Height = img.Width, img.Height
	}
	return ref, true
}

// contentHash derives the change token for an asset from its CMS revision metadata.
func contentHash(revision int, updatedAt string) string {
	if updatedAt == "" {
		return "r" + strconv.Itoa(revision)
	}
	return "r" + strconv.Itoa(revision) + "@" + updatedAt
}

// FetchEntries returns all entries of kind matching filter, following pagination.
func (c *Client) FetchEntries(ctx context.Context, kind Kind, filter Filter) ([]Entry, error) {
	endpoint := fmt.Sprintf("%s/spaces/%s/environments/%s/entries",
		c.baseURL, url.PathEscape(c.spaceID), url.PathEscape(c.env))

	entries := []Entry{}
	for skip := 0; ; {
		q := url.Values{}
		q.Set("content_type", string(kind))
		q.Set("include", "1")
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("skip", strconv.Itoa(skip))
		if filter.Slug != "" {
			q.Set("fields.slug", strings.TrimSpace(filter.Slug))
		}

		body, err := c.get(ctx, string(kind), endpoint+"?"+q.Encode(), true, maxJSONBody)
		if err != nil {
			return nil, err
		}
		var resp entriesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, sourceUnavailable(kind, 1, fmt.Errorf("decode response: %w", err))
		}

		assets := make(map[string]ImageReference, len(resp.Includes.Asset))
		for _, a := range resp.Includes.Asset {
			if ref, ok := a.reference(); ok {
				assets[ref.AssetID] = ref
			}
		}
		lookup := func(id string) (ImageReference, bool) {
			ref, ok := assets[id]
			return ref, ok
		}

		for _, item := range resp.Items {
			if ct := item.Sys.ContentType; ct != nil && ct.Sys.ID != "" && ct.Sys.ID != string(kind) {
				return nil, schemaMismatch(kind, item.Sys.ID, "sys.contentType", "is "+ct.Sys.ID)
			}
			e, err := decodeEntry(kind, item.Sys.ID, item.Fields, lookup)
			if err != nil {
				return nil, err
			}
			if !filter.matches(slugOf(e)) {
				continue
			}
			entries = append(entries, e)
		}

		skip += len(resp.Items)
		if len(resp.Items) == 0 || skip >= resp.Total {
			break
		}
	}

	slog.Debug("Fetched entries", logfields.Kind(string(kind)), logfields.Count(len(entries)))
	return entries, nil
}

// FetchAsset downloads the bytes behind ref. Asset URLs are public, so no
// credentials are sent.
func (c *Client) FetchAsset(ctx context.Context, ref ImageReference) ([]byte, error) {
	u := ref.URL
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return c.get(ctx, assetMetricKind, u, false, maxAssetBody)
}

// get performs a GET with rate limiting and bounded retry. Transport errors,
// 429 and 5xx are retried; any other non-2xx fails immediately.
func (c *Client) get(ctx context.Context, label, rawURL string, auth bool, limit int64) ([]byte, error) {
	kind := Kind(label)
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.recorder.IncSourceRetry(label)
			if err := c.policy.Sleep(ctx, attempt-1); err != nil {
				return nil, sourceUnavailable(kind, attempt-1, err)
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, sourceUnavailable(kind, attempt-1, err)
		}

		body, status, err := c.once(ctx, rawURL, auth, limit)
		if err == nil {
			c.recorder.IncSourceRequest(label, true)
			return body, nil
		}
		c.recorder.IncSourceRequest(label, false)
		lastErr = err

		if ctx.Err() != nil {
			return nil, sourceUnavailable(kind, attempt, ctx.Err())
		}
		if status != 0 && !retryableStatus(status) {
			return nil, sourceRejected(kind, status, err)
		}
		slog.Warn("Content request failed",
			logfields.Kind(label),
			logfields.Attempt(attempt),
			logfields.Status(status),
			logfields.Error(err))
	}
	return nil, sourceUnavailable(kind, c.policy.MaxAttempts, lastErr)
}

func (c *Client) once(ctx context.Context, rawURL string, auth bool, limit int64) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.RecordRateLimit(retryAfter(resp.Header, time.Now()))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.StatusCode, fmt.Errorf("GET %s: %s", redact(rawURL), resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, resp.StatusCode, fmt.Errorf("GET %s: response exceeds %d bytes", redact(rawURL), limit)
	}
	return body, resp.StatusCode, nil
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// redact strips the query string so tokens passed as parameters never reach logs.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func slugOf(e Entry) string {
	switch {
	case e.Service != nil:
		return e.Service.Slug
	case e.Page != nil:
		return e.Page.Slug
	default:
		return ""
	}
}
