package metadata

import (
	"errors"
	"fmt"
)

// ErrNoStores is returned when a databases directory holds no known store.
var ErrNoStores = errors.New("no offline*.db or *.entitystore found")

// SkippableRecordError is yielded for a row that could not be turned into a
// Record. The rest of the store is still read.
type SkippableRecordError struct {
	Source string // store file
	Row    string // row identifier, usually the video id or entity key
	Reason string
	Err    error
}

func (e *SkippableRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skipping row %s in %s: %s: %v", e.Row, e.Source, e.Reason, e.Err)
	}

	return fmt.Sprintf("skipping row %s in %s: %s", e.Row, e.Source, e.Reason)
}

func (e *SkippableRecordError) Unwrap() error {
	return e.Err
}

// IsSkippable reports whether err only affects a single record.
func IsSkippable(err error) bool {
	var skipErr *SkippableRecordError

	return errors.As(err, &skipErr)
}
