// Package metadata reads downloaded items from the app's SQLite stores and
// derives the lookup key that addresses each item in the media cache.
package metadata

import (
	"time"
)

// Record is one downloaded item. Records are built by the Reader and never
// modified afterwards.
type Record struct {
	ID           string // video id
	Itag         uint64 // format selector
	LastModified uint64 // format stream last-modified stamp
	MimeType     string
	Title        string
	Artist       string
	Album        string
	CoverURL     string
	SavedAt      time.Time
	Source       string // store file the record was read from

	// LookupKey addresses the item in the cache index.
	LookupKey []byte
}

// DisplayName is "Artist - Title". The title falls back to the video id.
func (r Record) DisplayName() string {
	title := r.Title
	if title == "" {
		title = "video_" + r.ID
	}

	if r.Artist == "" {
		return title
	}

	return r.Artist + " - " + title
}

// fillFrom copies display fields from other where r has none.
func (r *Record) fillFrom(other display) {
	if r.Title == "" {
		r.Title = other.title
	}

	if r.Artist == "" {
		r.Artist = other.artist
	}

	if r.Album == "" {
		r.Album = other.album
	}

	if r.CoverURL == "" {
		r.CoverURL = other.coverURL
	}
}

type display struct {
	title    string
	artist   string
	album    string
	coverURL string
}

func (r Record) display() display {
	return display{title: r.Title, artist: r.Artist, album: r.Album, coverURL: r.CoverURL}
}
