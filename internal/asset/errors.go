package asset

import (
	"errors"
	"fmt"

	foundationerrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// ErrDerivation matches every failure to produce a required image variant.
var ErrDerivation = errors.New("asset derivation failed")

// DerivationError names the asset and pipeline stage that failed.
type DerivationError struct {
	AssetID string
	Stage   string
	Err     error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("derive asset %s: %s: %v", e.AssetID, e.Stage, e.Err)
}

func (e *DerivationError) Unwrap() []error { return []error{ErrDerivation, e.Err} }

func derivationError(assetID, stage string, err error) error {
	return foundationerrors.AssetError("image derivation failed").
		WithCause(&DerivationError{AssetID: assetID, Stage: stage, Err: err}).
		WithContext("asset", assetID).
		WithContext("stage", stage).
		Build()
}
