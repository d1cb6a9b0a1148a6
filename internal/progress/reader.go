// Package progress reports how far a stream copy has come.
package progress

import "io"

// Reader wraps an io.Reader and reports progress via a callback. Done may
// start above zero when one logical stream is read through several readers.
type Reader struct {
	Reader     io.Reader
	Done       int64
	Total      int64
	OnProgress func(done int64, total int64)

	sinceReport    int64
	reportInterval int64
}

// NewReader reports every interval bytes and whenever a quarter of total is
// crossed. total may be zero when unknown.
func NewReader(r io.Reader, done, total, interval int64, cb func(done int64, total int64)) *Reader {
	return &Reader{
		Reader:         r,
		Done:           done,
		Total:          total,
		OnProgress:     cb,
		reportInterval: interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		before := pr.Done
		pr.Done += int64(n)
		pr.sinceReport += int64(n)

		if pr.OnProgress != nil && (pr.sinceReport >= pr.reportInterval || pr.crossedQuarter(before)) {
			pr.OnProgress(pr.Done, pr.Total)
			pr.sinceReport = 0
		}
	}

	return n, err
}

func (pr *Reader) crossedQuarter(before int64) bool {
	if pr.Total <= 0 {
		return false
	}

	return before*4/pr.Total != pr.Done*4/pr.Total
}
