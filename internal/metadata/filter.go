package metadata

import (
	"regexp"
	"time"
)

// Filter restricts which records are produced. The zero Filter allows all.
// Predicates are independent and combined with AND.
type Filter struct {
	Since time.Time      // keep records saved at or after Since
	Match *regexp.Regexp // keep records whose DisplayName matches
}

// Allows reports whether r passes every predicate.
func (f Filter) Allows(r Record) bool {
	return f.allowsTime(r) && f.allowsName(r)
}

func (f Filter) allowsTime(r Record) bool {
	return f.Since.IsZero() || !r.SavedAt.Before(f.Since)
}

func (f Filter) allowsName(r Record) bool {
	return f.Match == nil || f.Match.MatchString(r.DisplayName())
}

// sinceMillis is the lower bound pushed down into store queries.
func (f Filter) sinceMillis() int64 {
	if f.Since.IsZero() {
		return 0
	}

	return f.Since.UnixMilli()
}
