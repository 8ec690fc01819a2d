package services

import (
	"errors"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

// storeErr passes domain errors through and marks everything else as a
// storage outage.
func storeErr(op string, err error) error {
	var (
		notFound  *domain.NotFoundError
		duplicate *domain.DuplicateCodeError
		invalid   *domain.ValidationError
	)
	if errors.As(err, &notFound) || errors.As(err, &duplicate) || errors.As(err, &invalid) {
		return err
	}
	return &domain.StoreUnavailableError{Op: op, Err: err}
}
