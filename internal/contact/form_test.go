package contact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

type fakeSubmitter struct {
	err     error
	calls   atomic.Int32
	block   chan struct{}
	started chan struct{}
	got     Submission
	mu      sync.Mutex
}

func (f *fakeSubmitter) Submit(_ context.Context, s Submission) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.got = s
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.err
}

func valid() Submission {
	return Submission{Name: "Ada", Email: "ada@example.com", Subject: "Hello", Message: "Let's talk."}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, valid().Validate())

	s := Submission{Email: "not-an-email", Subject: strings.Repeat("x", 301)}
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{
		"name":    "is required",
		"email":   "is not a valid email address",
		"subject": "must be at most 300 characters",
		"message": "is required",
	}, verr.Fields)

	named := valid()
	named.Email = "Ada <ada@example.com>"
	assert.Error(t, named.Validate(), "display names are not accepted")
}

func TestForm_Transitions(t *testing.T) {
	sub := &fakeSubmitter{}
	f := NewForm(sub)
	assert.Equal(t, Idle, f.State())

	in := valid()
	in.Name = "  Ada  "
	require.NoError(t, f.Submit(context.Background(), in))
	assert.Equal(t, Succeeded, f.State())
	assert.Equal(t, SuccessMessage, f.Message())
	assert.Equal(t, "Ada", sub.got.Name)

	sub.err = errors.New("endpoint down")
	require.Error(t, f.Submit(context.Background(), valid()))
	assert.Equal(t, Failed, f.State())
	assert.Equal(t, FailureMessage, f.Message())
	assert.EqualError(t, f.Err(), "endpoint down")

	f.Reset()
	assert.Equal(t, Idle, f.State())
	assert.Empty(t, f.Message())
}

func TestForm_InvalidDoesNotSubmit(t *testing.T) {
	sub := &fakeSubmitter{}
	f := NewForm(sub)
	err := f.Submit(context.Background(), Submission{})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, Idle, f.State())
	assert.Zero(t, sub.calls.Load())
}

func TestForm_BusyWhileSubmitting(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{}), started: make(chan struct{})}
	f := NewForm(sub)

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background(), valid()) }()
	<-sub.started

	assert.Equal(t, Submitting, f.State())
	assert.ErrorIs(t, f.Submit(context.Background(), valid()), ErrBusy)
	f.Reset()
	assert.Equal(t, Submitting, f.State(), "reset ignored while in flight")

	close(sub.block)
	require.NoError(t, <-done)
	assert.Equal(t, Succeeded, f.State())
}

func TestHTTPSubmitter(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	s := NewHTTPSubmitter(srv.URL, srv.Client())
	require.NoError(t, s.Submit(context.Background(), valid()))

	status.Store(http.StatusInternalServerError)
	err := s.Submit(context.Background(), valid())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNetwork))
}

func TestHandler(t *testing.T) {
	sub := &fakeSubmitter{}
	h := Handler(sub)

	form := url.Values{"name": {"Ada"}, "email": {"ada@example.com"}, "subject": {"Hi"}, "message": {"Hello"}}
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"succeeded"`)

	req = httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(`{"name":"Ada"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"is required"`)

	sub.err = errors.New("down")
	req = httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), FailureMessage)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contact", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
