package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	foundationerrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.NewPolicy(config.RetryBackoffExponential, time.Millisecond, 5*time.Millisecond, 3)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(ClientOptions{
		SpaceID:     "space1",
		AccessToken: "token1",
		BaseURL:     srv.URL,
		HTTPClient:  srv.Client(),
		Retry:       fastPolicy(),
	})
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func teamResponse() map[string]any {
	return map[string]any{
		"total": 2,
		"items": []any{
			map[string]any{
				"sys": map[string]any{"id": "tm1", "contentType": map[string]any{"sys": map[string]any{"id": "teamMember"}}},
				"fields": map[string]any{
					"name": "Ada", "position": "CTO", "order": 2,
					"photo": map[string]any{"sys": map[string]any{"type": "Link", "linkType": "Asset", "id": "a1"}},
				},
			},
			map[string]any{
				"sys":    map[string]any{"id": "tm2"},
				"fields": map[string]any{"name": "Grace", "position": "CEO", "bio": "Founder."},
			},
		},
		"includes": map[string]any{
			"Asset": []any{
				map[string]any{
					"sys": map[string]any{"id": "a1", "revision": 3, "updatedAt": "2024-05-01T10:00:00Z"},
					"fields": map[string]any{
						"title": "Ada portrait",
						"file": map[string]any{
							"url": "//images.example/a1.jpg", "contentType": "image/jpeg",
							"details": map[string]any{"image": map[string]any{"width": 800, "height": 600}},
						},
					},
				},
			},
		},
	}
}

func TestClient_FetchEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/spaces/space1/environments/master/entries", r.URL.Path)
		assert.Equal(t, "Bearer token1", r.Header.Get("Authorization"))
		assert.Equal(t, "teamMember", r.URL.Query().Get("content_type"))
		assert.Equal(t, "1", r.URL.Query().Get("include"))
		writeJSON(t, w, teamResponse())
	}))
	defer srv.Close()

	entries, err := newTestClient(t, srv).FetchEntries(context.Background(), KindTeamMember, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	ada := entries[0]
	assert.Equal(t, "tm1", ada.ID)
	assert.Equal(t, 2, ada.Order)
	require.NotNil(t, ada.TeamMember)
	require.NotNil(t, ada.TeamMember.Photo)
	assert.Equal(t, ImageReference{
		AssetID:     "a1",
		URL:         "//images.example/a1.jpg",
		ContentHash: "r3@2024-05-01T10:00:00Z",
		ContentType: "image/jpeg",
		Width:       800,
		Height:      600,
		Title:       "Ada portrait",
	}, *ada.TeamMember.Photo)

	grace := entries[1]
	assert.Nil(t, grace.TeamMember.Photo)
	assert.Equal(t, "Founder.", grace.TeamMember.Bio)
	assert.Empty(t, grace.TeamMember.LinkedInURL)
}

func TestClient_SlugFilterIsExact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := []any{}
		if r.URL.Query().Get("fields.slug") == "About-Us" {
			items = append(items, map[string]any{
				"sys":    map[string]any{"id": "p1"},
				"fields": map[string]any{"title": "About", "slug": "About-Us"},
			})
		}
		writeJSON(t, w, map[string]any{"total": len(items), "items": items})
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	entries, err := client.FetchEntries(context.Background(), KindPage, Filter{Slug: " About-Us "})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "About-Us", entries[0].Page.Slug)

	entries, err = client.FetchEntries(context.Background(), KindPage, Filter{Slug: "about-us"})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestClient_Pagination(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		id := "s1"
		if r.URL.Query().Get("skip") == "1" {
			id = "s2"
		}
		writeJSON(t, w, map[string]any{
			"total": 2,
			"items": []any{map[string]any{
				"sys":    map[string]any{"id": id},
				"fields": map[string]any{"title": "T" + id, "slug": id, "order": int(n)},
			}},
		})
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{SpaceID: "s", AccessToken: "t", BaseURL: srv.URL, Retry: fastPolicy(), PageSize: 1})
	require.NoError(t, err)
	entries, err := c.FetchEntries(context.Background(), KindService, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].ID)
	assert.Equal(t, "s2", entries[1].ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, teamResponse())
	}))
	defer srv.Close()

	entries, err := newTestClient(t, srv).FetchEntries(context.Background(), KindTeamMember, Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ExhaustedRetriesIsSourceUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchEntries(context.Background(), KindService, Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.Equal(t, int32(3), calls.Load())

	ce, ok := foundationerrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, foundationerrors.CategoryNetwork, ce.Category())
	assert.True(t, ce.CanRetry())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchEntries(context.Background(), KindService, Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryAuth))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RateLimitedHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	var first atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			first.Store(time.Now().UnixNano())
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.GreaterOrEqual(t, time.Since(time.Unix(0, first.Load())), 900*time.Millisecond)
		writeJSON(t, w, map[string]any{"total": 0, "items": []any{}})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchEntries(context.Background(), KindService, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_MissingRequiredFieldIsSchemaMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"total": 1,
			"items": []any{map[string]any{
				"sys":    map[string]any{"id": "svc9"},
				"fields": map[string]any{"slug": "cloud-services"},
			}},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchEntries(context.Background(), KindService, Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
	assert.False(t, errors.Is(err, ErrSourceUnavailable))

	var sm *SchemaMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Equal(t, KindService, sm.Kind)
	assert.Equal(t, "svc9", sm.EntryID)
	assert.Equal(t, "title", sm.Field)
}

func TestClient_FetchAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	data, err := newTestClient(t, srv).FetchAsset(context.Background(), ImageReference{AssetID: "a1", URL: srv.URL + "/a1.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

func TestClient_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t, srv).FetchEntries(ctx, KindService, Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(ClientOptions{AccessToken: "t"})
	assert.Error(t, err)
	_, err = NewClient(ClientOptions{SpaceID: "s"})
	assert.Error(t, err)
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := http.Header{}
	assert.Equal(t, time.Duration(0), retryAfter(h, now))
	h.Set("X-Contentful-RateLimit-Reset", "2")
	assert.Equal(t, 2*time.Second, retryAfter(h, now))
	h.Set("Retry-After", "5")
	assert.Equal(t, 5*time.Second, retryAfter(h, now))
	h.Set("Retry-After", now.Add(3*time.Second).Format(http.TimeFormat))
	assert.Equal(t, 3*time.Second, retryAfter(h, now))
}
