package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRange     = errors.New("invalid range")
	ErrUnknownMember    = errors.New("unknown member")
	ErrUnknownIteration = errors.New("unknown iteration")
	ErrUnknownScenario  = errors.New("unknown scenario")
	ErrPolicyViolation  = errors.New("policy violation")
	// ErrReadOnlyNamespace guards the cross-project view against mutation.
	ErrReadOnlyNamespace = errors.New("namespace is read-only")
)

// RowError reports a single failed line during CSV import. Row is 1-based.
type RowError struct {
	Row int    `json:"row"`
	Err error  `json:"-"`
	Msg string `json:"message"`
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

func NewRowError(row int, err error) *RowError {
	return &RowError{Row: row, Err: err, Msg: err.Error()}
}
