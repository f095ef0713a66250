package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// HTTPSubmitter posts submissions as JSON to an endpoint.
type HTTPSubmitter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSubmitter creates a submitter for endpoint. A nil client uses a
// client with a 10s timeout.
func NewHTTPSubmitter(endpoint string, client *http.Client) *HTTPSubmitter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSubmitter{endpoint: endpoint, client: client}
}

// Submit implements Submitter.
func (h *HTTPSubmitter) Submit(ctx context.Context, s Submission) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return ferrors.ConfigError("invalid contact endpoint").WithCause(err).Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return ferrors.NetworkError("contact endpoint unreachable").WithCause(err).Build()
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ferrors.NetworkError("contact endpoint rejected submission").
			WithContext("status", resp.StatusCode).
			Build()
	}
	return nil
}

// Response is the JSON body returned by Handler.
type Response struct {
	State   string            `json:"state"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Handler relays form posts (JSON or urlencoded) to submitter. Each request
// drives its own Form.
func Handler(submitter Submitter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sub, err := decodeSubmission(w, r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Response{State: Failed.String(), Message: "malformed request"})
			return
		}

		form := NewForm(submitter)
		err = form.Submit(r.Context(), sub)
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusUnprocessableEntity, Response{State: form.State().String(), Errors: verr.Fields})
		case err != nil:
			slog.Warn("Contact submission failed", logfields.Error(err))
			writeJSON(w, http.StatusBadGateway, Response{State: form.State().String(), Message: form.Message()})
		default:
			writeJSON(w, http.StatusOK, Response{State: form.State().String(), Message: form.Message()})
		}
	})
}

func decodeSubmission(w http.ResponseWriter, r *http.Request) (Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var s Submission
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(r.Body).Decode(&s)
		return s, err
	}
	if err := r.ParseForm(); err != nil {
		return s, err
	}
	return Submission{
		Name:    r.PostForm.Get("name"),
		Email:   r.PostForm.Get("email"),
		Subject: r.PostForm.Get("subject"),
		Message: r.PostForm.Get("message"),
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
