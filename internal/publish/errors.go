package publish

import (
	"errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// classify translates go-git failures into classified errors.
func classify(err error, op string) error {
	if _, ok := ferrors.AsClassified(err); ok {
		return err
	}
	b := ferrors.PublishError("git "+op+" failed").WithCause(err).WithContext("op", op)

	l := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed),
		strings.Contains(l, "authentication failed"):
		b = ferrors.AuthError("git "+op+" rejected credentials").WithCause(err).WithContext("op", op)
	case strings.Contains(l, "non-fast-forward"):
		b = b.WithContext("diverged", true).WithRetry(ferrors.RetryNever)
	case strings.Contains(l, "connection reset"), strings.Contains(l, "timeout"), strings.Contains(l, "remote hung up"):
		b = ferrors.NetworkError("git "+op+" network failure").WithCause(err).WithContext("op", op)
	}
	return b.Build()
}
