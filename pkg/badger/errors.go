package badger

import "errors"

var (
	ErrPathRequired   = errors.New("badger path is required for a persistent database")
	ErrInvalidGCRatio = errors.New("badger gc discard ratio must be between 0 and 1")
	ErrClaimConflict  = errors.New("badger claim kept conflicting with concurrent transactions")
)
