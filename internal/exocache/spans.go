package exocache

import (
	"cmp"
	"context"
	"io/fs"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/italolelis/ytm_dumper/internal/logctx"
)

// spanFilePattern matches <id>.<position>.<timestamp>.v3.exo.
var spanFilePattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)\.v3\.exo$`)

// Segment is one span file holding Length bytes of a stream starting at Offset.
type Segment struct {
	Offset  int64
	Length  int64
	Path    string
	Touched int64 // last touch timestamp from the file name
}

// End is the offset just past the segment.
func (s Segment) End() int64 {
	return s.Offset + s.Length
}

// Spans indexes span files by cache id.
type Spans struct {
	byID map[int32][]Segment
}

// Segments returns the spans of a cache id ordered by offset.
func (s *Spans) Segments(id int32) []Segment {
	return slices.Clone(s.byID[id])
}

// Len is the number of span files kept.
func (s *Spans) Len() int {
	n := 0
	for _, segs := range s.byID {
		n += len(segs)
	}

	return n
}

// ParseSpanName parses a span file name. ok is false for any other file.
func ParseSpanName(name string) (id int32, offset, touched int64, ok bool) {
	m := spanFilePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, 0, false
	}

	rawID, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return 0, 0, 0, false
	}

	offset, err = strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, 0, false
	}

	touched, err = strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return 0, 0, 0, false
	}

	return int32(rawID), offset, touched, true
}

// ScanSpans walks dir and collects every span file. When two files share a
// cache id and offset the most recently touched one is kept.
func ScanSpans(ctx context.Context, dir string) (*Spans, error) {
	logger := logctx.LoggerFromContext(ctx)

	type spanKey struct {
		id     int32
		offset int64
	}

	latest := make(map[spanKey]Segment)
	replaced := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		id, offset, touched, ok := ParseSpanName(d.Name())
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		seg := Segment{Offset: offset, Length: info.Size(), Path: path, Touched: touched}
		k := spanKey{id: id, offset: offset}

		if prev, ok := latest[k]; ok {
			replaced++

			if prev.Touched >= touched {
				return nil
			}
		}

		latest[k] = seg

		return nil
	})
	if err != nil {
		return nil, &IOError{Op: "scan spans in", Path: dir, Err: err}
	}

	spans := &Spans{byID: make(map[int32][]Segment)}
	for k, seg := range latest {
		spans.byID[k.id] = append(spans.byID[k.id], seg)
	}

	for id := range spans.byID {
		slices.SortFunc(spans.byID[id], func(a, b Segment) int {
			return cmp.Compare(a.Offset, b.Offset)
		})
	}

	logger.Info("scanned span files", "dir", dir, "spans", len(latest), "streams", len(spans.byID), "superseded", replaced)

	return spans, nil
}
