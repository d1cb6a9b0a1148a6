package extract

import (
	"cmp"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"mime"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/italolelis/ytm_dumper/internal/metadata"
	"golang.org/x/text/unicode/norm"
)

// MaxNameBytes caps the length of an output file name.
const MaxNameBytes = 240

var mimeExtensions = map[string]string{
	"audio/mp4":  ".m4a",
	"audio/webm": ".weba",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// Extension maps a stream MIME type to a file extension. Unknown types use
// their subtype, and an unparsable type gets no extension.
func Extension(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}

	if ext, ok := mimeExtensions[mediaType]; ok {
		return ext
	}

	_, sub, ok := strings.Cut(mediaType, "/")
	if !ok || sub == "" {
		return ""
	}

	return "." + Sanitize(sub)
}

// Sanitize makes name safe to use as a file name on common filesystems.
func Sanitize(name string) string {
	name = norm.NFC.String(name)

	name = strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\*?:"<>|`, r):
			return '_'
		case unicode.IsControl(r), r == utf8.RuneError:
			return '_'
		default:
			return r
		}
	}, name)

	return strings.Trim(name, ". ")
}

// fitName shortens base so that base+ext fits in MaxNameBytes. Shortened
// names end with a hash of the full name so they stay distinct.
func fitName(base, ext string) string {
	if len(base)+len(ext) <= MaxNameBytes {
		return base
	}

	sum := sha1.Sum([]byte(base))
	suffix := "-" + hex.EncodeToString(sum[:])[:8]

	limit := MaxNameBytes - len(ext) - len(suffix)
	if limit < 0 {
		limit = 0
	}

	cut := base[:limit]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}

	return strings.TrimRight(cut, ". ") + suffix
}

type item struct {
	rec  metadata.Record
	name string // output file name relative to the destination
}

// plan orders records and assigns each a unique file name. The result only
// depends on the records, never on scheduling.
func plan(records []metadata.Record) []item {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b metadata.Record) int {
		return cmp.Or(
			a.SavedAt.Compare(b.SavedAt),
			cmp.Compare(a.ID, b.ID),
			cmp.Compare(string(a.LookupKey), string(b.LookupKey)),
		)
	})

	taken := make(map[string]struct{}, len(sorted))
	items := make([]item, 0, len(sorted))

	for _, rec := range sorted {
		ext := Extension(rec.MimeType)

		base := Sanitize(rec.DisplayName())
		if base == "" {
			base = "video_" + Sanitize(rec.ID)
		}

		base = fitName(base, ext)

		name := base + ext
		for n := 2; ; n++ {
			if _, dup := taken[strings.ToLower(name)]; !dup {
				break
			}

			name = fmt.Sprintf("%s (%d)%s", base, n, ext)
		}

		taken[strings.ToLower(name)] = struct{}{}
		items = append(items, item{rec: rec, name: name})
	}

	return items
}
