package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and gateway adapters return
// these (optionally wrapped) so services can translate them into coded errors.
//
//   - ErrNotFound: row does not exist in the store
//   - ErrConflict: a transaction id is already held by another row
//   - ErrAlreadyUsed: an email is already registered
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrAlreadyUsed = errors.New("already used")
)
