package exocache

// CheckLayout verifies that segs, ordered by offset, cover a stream
// contiguously from offset 0. contentLength is the expected stream length or
// -1 when unknown. It returns the number of bytes covered.
func CheckLayout(key string, segs []Segment, contentLength int64) (int64, error) {
	if len(segs) == 0 {
		return 0, noSpansError(key)
	}

	var end int64

	for _, seg := range segs {
		switch {
		case seg.Offset > end:
			return 0, &IncompleteDownloadError{Key: key, Expected: end, Got: seg.Offset, Reason: "gap between spans"}
		case seg.Offset < end:
			return 0, &SegmentConsistencyError{Key: key, Offset: seg.Offset, End: end}
		}

		end = seg.End()
	}

	if contentLength >= 0 && end < contentLength {
		return 0, &IncompleteDownloadError{Key: key, Expected: contentLength, Got: end, Reason: "stream shorter than its content length"}
	}

	return end, nil
}
