package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/ytm_dumper/internal/exocache"
	"github.com/italolelis/ytm_dumper/internal/metadata"
)

// Outcome is what happened to one candidate.
type Outcome string

const (
	OutcomeWritten    Outcome = "written"
	OutcomeListed     Outcome = "listed"
	OutcomeExisting   Outcome = "existing"
	OutcomeNotFound   Outcome = "not_found"
	OutcomeIncomplete Outcome = "incomplete"
	OutcomeFailed     Outcome = "failed"
	OutcomeCanceled   Outcome = "canceled"
)

// Result is the outcome of one candidate.
type Result struct {
	Record  metadata.Record
	Outcome Outcome
	Path    string // output path, set for written and existing
	Bytes   int64
	Err     error
	Tagged  bool
	TagErr  error
}

// Summary counts the outcomes of a run.
type Summary struct {
	Candidates  int
	Written     int
	Existing    int
	Listed      int
	NotFound    int
	Incomplete  int
	Failed      int
	Canceled    int
	Skipped     int // records the stores could not produce
	TagFailures int
	Bytes       int64

	Results []Result
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)

	switch r.Outcome {
	case OutcomeWritten:
		s.Written++
		s.Bytes += r.Bytes
	case OutcomeListed:
		s.Listed++
	case OutcomeExisting:
		s.Existing++
	case OutcomeNotFound:
		s.NotFound++
	case OutcomeIncomplete:
		s.Incomplete++
	case OutcomeCanceled:
		s.Canceled++
	default:
		s.Failed++
	}

	if r.TagErr != nil {
		s.TagFailures++
	}
}

// String is a one line report of the run.
func (s Summary) String() string {
	out := fmt.Sprintf("%d candidates: %d written (%s), %d existing, %d listed, %d not found, %d incomplete, %d failed, %d skipped records",
		s.Candidates, s.Written, humanize.Bytes(uint64(s.Bytes)), s.Existing, s.Listed, s.NotFound, s.Incomplete, s.Failed, s.Skipped)

	if s.Canceled > 0 {
		out += fmt.Sprintf(", %d canceled", s.Canceled)
	}

	if s.TagFailures > 0 {
		out += fmt.Sprintf(", %d not tagged", s.TagFailures)
	}

	return out
}

// classify maps an item error to its outcome.
func classify(err error) Outcome {
	var (
		notFound   *exocache.NotFoundError
		incomplete *exocache.IncompleteDownloadError
	)

	switch {
	case err == nil:
		return OutcomeWritten
	case errors.As(err, &notFound):
		return OutcomeNotFound
	case errors.As(err, &incomplete):
		return OutcomeIncomplete
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}
