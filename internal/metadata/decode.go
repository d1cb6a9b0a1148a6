package metadata

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/italolelis/ytm_dumper/internal/protowalk"
	"github.com/italolelis/ytm_dumper/internal/storage"
)

// Field numbers of the reverse engineered messages.
const (
	// format stream (offline streams table, entity cache element 2.5)
	fieldItag         = 1
	fieldMimeType     = 5
	fieldLastModified = 11

	// offline video data
	fieldOfflineThumbnails = 2
	fieldOfflineDetails    = 14
	fieldOfflineMetadata   = 112520939
	fieldOfflineTitle      = 1
	fieldOfflineShortTitle = 2
	fieldOfflineArtist     = 3

	// entity video details
	fieldEntityPayload    = 2
	fieldEntityDetails    = 11
	fieldEntityTitle      = 15
	fieldEntityArtist     = 33
	fieldEntityThumbnails = 25
	fieldEntityStream     = 5

	// entity music track, album at 2.3.356057097.3.22
	fieldEntityTrack      = 3
	fieldEntityTrackExt   = 356057097
	fieldEntityTrackInfo  = 3
	fieldEntityTrackAlbum = 22

	// entity key
	fieldEntityKeyID = 2

	// thumbnail
	fieldThumbnail       = 1
	fieldThumbnailURL    = 1
	fieldThumbnailHeight = 2
)

type formatStream struct {
	itag         uint64
	lastModified uint64
	mimeType     string
}

func decodeFormatStream(msg protowalk.Message) (formatStream, error) {
	itag, ok := msg.Uint(fieldItag)
	if !ok {
		return formatStream{}, errors.New("format stream has no itag")
	}

	lastModified, ok := msg.Uint(fieldLastModified)
	if !ok {
		return formatStream{}, errors.New("format stream has no last-modified stamp")
	}

	return formatStream{
		itag:         itag,
		lastModified: lastModified,
		mimeType:     msg.String(fieldMimeType),
	}, nil
}

// largestThumbnail picks the URL of the tallest thumbnail in msg.
func largestThumbnail(msg protowalk.Message) string {
	var (
		best   string
		height uint64
	)

	for _, thumb := range msg.Messages(fieldThumbnail) {
		u := thumb.String(fieldThumbnailURL)
		if u == "" {
			continue
		}

		h, _ := thumb.Uint(fieldThumbnailHeight)
		if best == "" || h > height {
			best, height = u, h
		}
	}

	return best
}

func millisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}

// decodeOfflineRow turns a row of the offline store into a record without a
// lookup key.
func decodeOfflineRow(source string, row storage.OfflineVideoRow) (Record, error) {
	skip := func(reason string, err error) error {
		return &SkippableRecordError{Source: source, Row: row.VideoID, Reason: reason, Err: err}
	}

	if row.VideoID == "" {
		return Record{}, skip("empty video id", nil)
	}

	video, err := protowalk.Decode(row.VideoData)
	if err != nil {
		return Record{}, skip("undecodable offline video data", err)
	}

	streamMsg, err := protowalk.Decode(row.FormatStream)
	if err != nil {
		return Record{}, skip("undecodable format stream", err)
	}

	stream, err := decodeFormatStream(streamMsg)
	if err != nil {
		return Record{}, skip("incomplete format stream", err)
	}

	rec := Record{
		ID:           row.VideoID,
		Itag:         stream.itag,
		LastModified: stream.lastModified,
		MimeType:     stream.mimeType,
		SavedAt:      millisToTime(row.SavedAt),
		Source:       source,
	}

	if meta, ok := video.Sub(fieldOfflineDetails, fieldOfflineMetadata); ok {
		rec.Title = meta.String(fieldOfflineTitle)
		if rec.Title == "" {
			rec.Title = meta.String(fieldOfflineShortTitle)
		}

		rec.Artist = meta.String(fieldOfflineArtist)
	}

	if thumbs, ok := video.Sub(fieldOfflineThumbnails); ok {
		rec.CoverURL = largestThumbnail(thumbs)
	}

	return rec, nil
}

// decodeEntityKey extracts the video id from an entity key. Keys are stored
// URL-escaped and base64 encoded.
func decodeEntityKey(raw string) (string, error) {
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("failed to unescape key: %w", err)
	}

	var decoded []byte

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err = enc.DecodeString(unescaped); err == nil {
			break
		}
	}

	if err != nil {
		return "", fmt.Errorf("failed to decode key: %w", err)
	}

	msg, err := protowalk.Decode(decoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode key message: %w", err)
	}

	id := msg.String(fieldEntityKeyID)
	if id == "" {
		return "", errors.New("key message has no video id")
	}

	return id, nil
}

// entityParts collects the rows of one video in the entity store.
type entityParts struct {
	id        string
	details   bool
	title     string
	artist    string
	album     string
	coverURL  string
	savedAt   int64
	stream    formatStream
	hasStream bool
}

func (p *entityParts) addDetails(msg protowalk.Message, lastModified int64) error {
	details, ok := msg.Sub(fieldEntityPayload, fieldEntityDetails)
	if !ok {
		return errors.New("video details entity has no details message")
	}

	p.details = true
	p.title = details.String(fieldEntityTitle)
	p.artist = details.String(fieldEntityArtist)
	p.savedAt = lastModified

	if thumbs, ok := details.Sub(fieldEntityThumbnails); ok {
		p.coverURL = largestThumbnail(thumbs)
	}

	return nil
}

// addTrack picks the album name. Tracks without one are not an error.
func (p *entityParts) addTrack(msg protowalk.Message) {
	if album := msg.String(fieldEntityPayload, fieldEntityTrack, fieldEntityTrackExt, fieldEntityTrackInfo, fieldEntityTrackAlbum); album != "" {
		p.album = album
	}
}

func (p *entityParts) display() display {
	return display{title: p.title, artist: p.artist, album: p.album, coverURL: p.coverURL}
}

func (p *entityParts) addCacheElement(msg protowalk.Message) error {
	streamMsg, ok := msg.Sub(fieldEntityPayload, fieldEntityStream)
	if !ok {
		return errors.New("cache element entity has no format stream")
	}

	stream, err := decodeFormatStream(streamMsg)
	if err != nil {
		return err
	}

	p.stream = stream
	p.hasStream = true

	return nil
}

func (p *entityParts) record(source string) Record {
	return Record{
		ID:           p.id,
		Itag:         p.stream.itag,
		LastModified: p.stream.lastModified,
		MimeType:     p.stream.mimeType,
		Title:        p.title,
		Artist:       p.artist,
		Album:        p.album,
		CoverURL:     p.coverURL,
		SavedAt:      millisToTime(p.savedAt),
		Source:       source,
	}
}
