package contact

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"unicode/utf8"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Field describes one input of the form.
type Field struct {
	Name      string
	Label     string
	Type      string // text, email or textarea
	Required  bool
	MaxLength int
}

// Fields are the inputs of the contact form, in display order.
var Fields = []Field{
	{Name: "name", Label: "Name", Type: "text", Required: true, MaxLength: 200},
	{Name: "email", Label: "Email", Type: "email", Required: true, MaxLength: 320},
	{Name: "subject", Label: "Subject", Type: "text", Required: true, MaxLength: 300},
	{Name: "message", Label: "Message", Type: "textarea", Required: true, MaxLength: 5000},
}

// User facing outcome messages.
const (
	SuccessMessage = "Thank you for your message. We'll get back to you soon!"
	FailureMessage = "Something went wrong. Please try again later."
)

// Submission is the data entered by a visitor.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (s Submission) value(field string) string {
	switch field {
	case "name":
		return s.Name
	case "email":
		return s.Email
	case "subject":
		return s.Subject
	case "message":
		return s.Message
	default:
		return ""
	}
}

// Trimmed returns the submission with surrounding whitespace removed.
func (s Submission) Trimmed() Submission {
	return Submission{
		Name:    strings.TrimSpace(s.Name),
		Email:   strings.TrimSpace(s.Email),
		Subject: strings.TrimSpace(s.Subject),
		Message: strings.TrimSpace(s.Message),
	}
}

// ErrInvalid marks a submission rejected by validation.
var ErrInvalid = errors.New("invalid contact submission")

// ValidationError lists the problems per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range Fields {
		if reason, ok := e.Fields[f.Name]; ok {
			parts = append(parts, f.Name+": "+reason)
		}
	}
	return "invalid contact submission: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Validate checks every field and reports all problems at once.
func (s Submission) Validate() error {
	problems := map[string]string{}
	for _, f := range Fields {
		v := strings.TrimSpace(s.value(f.Name))
		switch {
		case v == "" && f.Required:
			problems[f.Name] = "is required"
		case utf8.RuneCountInString(v) > f.MaxLength:
			problems[f.Name] = fmt.Sprintf("must be at most %d characters", f.MaxLength)
		case f.Type == "email" && v != "":
			if addr, err := mail.ParseAddress(v); err != nil || addr.Address != v {
				problems[f.Name] = "is not a valid email address"
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return ferrors.ValidationError("contact form rejected").
		WithCause(&ValidationError{Fields: problems}).
		Build()
}

// Submitter delivers a validated submission.
type Submitter interface {
	Submit(ctx context.Context, s Submission) error
}

// State is the phase of a form.
type State int

const (
	Idle State = iota
	Submitting
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrBusy is returned when a submission is attempted while another is in flight.
var ErrBusy = errors.New("contact form is already submitting")

// Form tracks one visitor's form through Idle -> Submitting -> Succeeded|Failed.
// A finished form may be submitted again. It is safe for concurrent use.
type Form struct {
	submitter Submitter

	mu      sync.Mutex
	state   State
	message string
	err     error
}

// NewForm creates an idle form delivering through submitter.
func NewForm(submitter Submitter) *Form {
	return &Form{submitter: submitter}
}

// Submit validates s and delivers it. Validation failures leave the form in
// its current state; delivery failures move it to Failed.
func (f *Form) Submit(ctx context.Context, s Submission) error {
	s = s.Trimmed()
	if err := s.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	if f.state == Submitting {
		f.mu.Unlock()
		return ErrBusy
	}
	f.state, f.message, f.err = Submitting, "", nil
	f.mu.Unlock()

	err := f.submitter.Submit(ctx, s)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state, f.message, f.err = Failed, FailureMessage, err
		return err
	}
	f.state, f.message = Succeeded, SuccessMessage
	return nil
}

// State returns the current phase.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Message returns the visitor facing message of the last submission.
func (f *Form) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// Err returns the delivery error of the last failed submission.
func (f *Form) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Reset returns a finished form to Idle.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Submitting {
		f.state, f.message, f.err = Idle, "", nil
	}
}
