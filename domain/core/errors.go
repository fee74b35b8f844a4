package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound        = errors.New("resource not found")
	ErrFieldNotFound   = fmt.Errorf("%w: field", ErrNotFound)
	ErrSampleNotFound  = fmt.Errorf("%w: sample", ErrNotFound)
	ErrMetadataMissing = errors.New("metadata missing")
	ErrResultsNotFound = fmt.Errorf("%w: results", ErrNotFound)

	// Input errors
	ErrInputMismatch  = errors.New("detection and phenotype inputs do not correspond")
	ErrMissingColumn  = errors.New("missing column")
	ErrDuplicateKey   = errors.New("duplicate lookup key")
	ErrMalformedTable = errors.New("malformed table")
	ErrLengthMismatch = errors.New("point set and intensity vector lengths differ")

	// Computation errors
	ErrEmptyPhenotype       = errors.New("empty phenotype selection")
	ErrEmptyPool            = errors.New("empty pool")
	ErrInvalidRadius        = errors.New("invalid radius")
	ErrDuplicateComputation = errors.New("duplicate computation")
)

// NewMissingColumnError reports a column absent from a table
func NewMissingColumnError(table, column string) error {
	return fmt.Errorf("%w: %q in %s", ErrMissingColumn, column, table)
}

// NewEmptyPhenotypeError reports a predicate that selected no cells in a field
func NewEmptyPhenotypeError(field FieldID, role, column, value string) error {
	return fmt.Errorf("%w: %s %s=%s is empty for %s", ErrEmptyPhenotype, role, column, value, field)
}

// NewDuplicateComputationError reports radii already stored for a parameter set
func NewDuplicateComputationError(params string, radii []float64) error {
	return fmt.Errorf("%w: %s already has results for radii %v", ErrDuplicateComputation, params, radii)
}

// NewInputMismatchError reports a pairing failure between the two input listings
func NewInputMismatchError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInputMismatch, reason)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInputError(err error) bool {
	return errors.Is(err, ErrInputMismatch) ||
		errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrMalformedTable) ||
		errors.Is(err, ErrLengthMismatch)
}

func IsDuplicateComputation(err error) bool {
	return errors.Is(err, ErrDuplicateComputation)
}
