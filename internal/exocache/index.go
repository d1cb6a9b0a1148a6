// Package exocache reads the media cache the app keeps for downloaded items:
// the encrypted content index, the span files next to it, and the AES-CTR
// encrypted media inside those spans.
package exocache

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/italolelis/ytm_dumper/internal/logctx"
)

const (
	// IndexFileName is the name of the content index inside a streams directory.
	IndexFileName = "cached_content_index.exi"

	indexVersion       = 2
	flagEncrypted      = 1
	indexHeaderSize    = 8
	indexIVSize        = aes.BlockSize
	metadataContentLen = "exo_len"
	metadataRedirect   = "exo_redir"
)

// Entry is one cached stream.
type Entry struct {
	Key      []byte
	ID       int32 // cache id, prefix of every span file name
	Metadata map[string][]byte
	Segments []Segment // set by Cache.Resolve
}

// ContentLength returns the exo_len metadata value, or -1 when unknown.
func (e Entry) ContentLength() int64 {
	v, ok := e.Metadata[metadataContentLen]
	if !ok || len(v) != 8 {
		return -1
	}

	return int64(binary.BigEndian.Uint64(v))
}

// Redirect returns the exo_redir metadata value.
func (e Entry) Redirect() string {
	return string(e.Metadata[metadataRedirect])
}

// Index maps cache keys to entries. It is immutable once built.
type Index struct {
	entries    map[string]Entry
	collisions int
}

// Lookup finds the entry for key.
func (ix *Index) Lookup(key []byte) (Entry, bool) {
	e, ok := ix.entries[string(key)]

	return e, ok
}

// Len is the number of distinct keys.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Collisions counts entries dropped because their key was already present.
func (ix *Index) Collisions() int {
	return ix.collisions
}

// LoadIndex reads and parses the index file at path.
func LoadIndex(ctx context.Context, path string, key []byte) (*Index, error) {
	logger := logctx.LoggerFromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read index", Path: path, Err: err}
	}

	ix, err := ParseIndex(data, key)
	if err != nil {
		var corrupt *CorruptIndexError
		if errors.As(err, &corrupt) {
			corrupt.Path = path
		}

		return nil, err
	}

	logger.Info("loaded cache index", "path", path, "entries", ix.Len(), "collisions", ix.Collisions())

	return ix, nil
}

// FindIndex locates the index under a stream directory. dir may be the
// streams directory itself or the offline directory containing
// <account>/streams directories.
func FindIndex(dir string) (string, error) {
	direct := filepath.Join(dir, IndexFileName)
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*", "streams", IndexFileName))
	if err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "", &IOError{Op: "find index in", Path: dir, Err: os.ErrNotExist}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("found %d cache indexes under %s, pass one explicitly", len(matches), dir)
	}
}

// ParseIndex decodes an index image. key may be nil for an unencrypted index.
func ParseIndex(data, key []byte) (*Index, error) {
	if len(data) < indexHeaderSize {
		return nil, &CorruptIndexError{Offset: -1, Reason: fmt.Sprintf("header too short (%d bytes)", len(data))}
	}

	version := binary.BigEndian.Uint32(data[0:4])
	if version != indexVersion {
		return nil, &CorruptIndexError{Offset: 0, Reason: fmt.Sprintf("unsupported version %d", version)}
	}

	flags := binary.BigEndian.Uint32(data[4:8])
	body := data[indexHeaderSize:]

	if flags&flagEncrypted != 0 {
		var err error

		body, err = decryptIndex(body, key)
		if err != nil {
			return nil, err
		}
	}

	return decodeIndex(body)
}

func decryptIndex(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CorruptIndexError{Offset: -1, Reason: "unusable key", Err: err}
	}

	if len(data) < indexIVSize {
		return nil, &CorruptIndexError{Offset: -1, Reason: "missing initialization vector"}
	}

	iv, ciphertext := data[:indexIVSize], data[indexIVSize:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &CorruptIndexError{Offset: -1, Reason: fmt.Sprintf("ciphertext length %d is not a multiple of the block size", len(ciphertext))}
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	return unpad(plain)
}

// unpad strips PKCS#7 padding. A wrong key almost always ends here.
func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, &CorruptIndexError{Offset: -1, Reason: "bad padding, wrong key?"}
	}

	if !bytes.Equal(b[len(b)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, &CorruptIndexError{Offset: -1, Reason: "bad padding, wrong key?"}
	}

	return b[:len(b)-n], nil
}

// indexReader reads big-endian fields and reports overruns with the offset.
type indexReader struct {
	data []byte
	off  int
}

func (r *indexReader) need(n int, what string) error {
	if n < 0 || len(r.data)-r.off < n {
		return &CorruptIndexError{Offset: int64(r.off), Reason: fmt.Sprintf("%s overruns data", what)}
	}

	return nil
}

func (r *indexReader) u16(what string) (int, error) {
	if err := r.need(2, what); err != nil {
		return 0, err
	}

	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2

	return int(v), nil
}

func (r *indexReader) u32(what string) (uint32, error) {
	if err := r.need(4, what); err != nil {
		return 0, err
	}

	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4

	return v, nil
}

func (r *indexReader) bytes(n int, what string) ([]byte, error) {
	if err := r.need(n, what); err != nil {
		return nil, err
	}

	v := bytes.Clone(r.data[r.off : r.off+n])
	r.off += n

	return v, nil
}

func decodeIndex(data []byte) (*Index, error) {
	r := &indexReader{data: data}

	count, err := r.u32("entry count")
	if err != nil {
		return nil, err
	}

	ix := &Index{entries: make(map[string]Entry)}

	for range count {
		e, err := decodeEntry(r)
		if err != nil {
			return nil, err
		}

		if _, dup := ix.entries[string(e.Key)]; dup {
			ix.collisions++

			continue
		}

		ix.entries[string(e.Key)] = e
	}

	// What remains is the optional hash of the entries. It is not verified.
	if rest := len(data) - r.off; rest != 0 && rest != 4 {
		return nil, &CorruptIndexError{Offset: int64(r.off), Reason: fmt.Sprintf("%d unexpected trailing bytes", rest)}
	}

	return ix, nil
}

func decodeEntry(r *indexReader) (Entry, error) {
	id, err := r.u32("entry id")
	if err != nil {
		return Entry{}, err
	}

	keyLen, err := r.u16("key length")
	if err != nil {
		return Entry{}, err
	}

	key, err := r.bytes(keyLen, "key")
	if err != nil {
		return Entry{}, err
	}

	metaCount, err := r.u32("metadata count")
	if err != nil {
		return Entry{}, err
	}

	e := Entry{Key: key, ID: int32(id), Metadata: make(map[string][]byte)}

	for range metaCount {
		nameLen, err := r.u16("metadata name length")
		if err != nil {
			return Entry{}, err
		}

		name, err := r.bytes(nameLen, "metadata name")
		if err != nil {
			return Entry{}, err
		}

		valueLen, err := r.u32("metadata value length")
		if err != nil {
			return Entry{}, err
		}

		value, err := r.bytes(int(valueLen), "metadata value")
		if err != nil {
			return Entry{}, err
		}

		e.Metadata[string(name)] = value
	}

	return e, nil
}
