package metadata

import (
	"errors"
	"fmt"
)

// KeyFormatV1 is the cache key layout written by the app's media cache:
// video id, itag and the stream's last-modified stamp joined by dots. It is an
// external contract; change it only together with the cache writer.
const KeyFormatV1 = "%s.%d.%d"

// KeyComposer derives the cache lookup key of a record.
type KeyComposer interface {
	Compose(r Record) ([]byte, error)
}

// KeyComposerFunc adapts a function to KeyComposer.
type KeyComposerFunc func(r Record) ([]byte, error)

func (f KeyComposerFunc) Compose(r Record) ([]byte, error) {
	return f(r)
}

// ExoKeyV1 composes keys with KeyFormatV1.
type ExoKeyV1 struct{}

func (ExoKeyV1) Compose(r Record) ([]byte, error) {
	if r.ID == "" {
		return nil, errors.New("missing video id")
	}

	return fmt.Appendf(nil, KeyFormatV1, r.ID, r.Itag, r.LastModified), nil
}
