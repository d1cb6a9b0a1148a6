// Package exocachetest writes synthetic cache indexes and span files.
package exocachetest

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/italolelis/ytm_dumper/internal/exocache"
)

// Meta is one metadata item of an index entry.
type Meta struct {
	Name  string
	Value []byte
}

// ContentLength is the exo_len metadata item.
func ContentLength(n int64) Meta {
	return Meta{Name: "exo_len", Value: binary.BigEndian.AppendUint64(nil, uint64(n))}
}

type entry struct {
	id   int32
	key  string
	meta []Meta
}

// IndexBuilder encodes a version 2 cache index.
type IndexBuilder struct {
	entries []entry
	// IV used for encryption; a fixed value when nil.
	IV []byte
	// OmitHash leaves out the trailing hash.
	OmitHash bool
}

// Add appends an entry. Entries are written in insertion order.
func (b *IndexBuilder) Add(id int32, key string, meta ...Meta) *IndexBuilder {
	b.entries = append(b.entries, entry{id: id, key: key, meta: meta})

	return b
}

// Plaintext encodes the entry list without header or encryption.
func (b *IndexBuilder) Plaintext() []byte {
	var buf []byte

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b.entries)))

	for _, e := range b.entries {
		buf = binary.BigEndian.AppendUint32(buf, uint32(e.id))
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(e.key)))
		buf = append(buf, e.key...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.meta)))

		for _, m := range e.meta {
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Name)))
			buf = append(buf, m.Name...)
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Value)))
			buf = append(buf, m.Value...)
		}
	}

	if !b.OmitHash {
		buf = binary.BigEndian.AppendUint32(buf, 0xdeadbeef)
	}

	return buf
}

// Build returns the index file image. A nil key produces an unencrypted index.
func (b *IndexBuilder) Build(key []byte) ([]byte, error) {
	header := binary.BigEndian.AppendUint32(nil, 2)

	if key == nil {
		header = binary.BigEndian.AppendUint32(header, 0)

		return append(header, b.Plaintext()...), nil
	}

	header = binary.BigEndian.AppendUint32(header, 1)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := b.IV
	if iv == nil {
		iv = bytes.Repeat([]byte{0x42}, aes.BlockSize)
	}

	plain := pad(b.Plaintext())
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)

	header = append(header, iv...)

	return append(header, out...), nil
}

// WriteFile writes the index into dir and returns its path.
func (b *IndexBuilder) WriteFile(t *testing.T, dir string, key []byte) string {
	t.Helper()

	data, err := b.Build(key)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	path := filepath.Join(dir, exocache.IndexFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}

	return path
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize

	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

// WriteSpans encrypts plaintext the way the cache writer does and stores it
// as span files of cache id id. cuts are the offsets where a new span starts.
func WriteSpans(t *testing.T, dir string, id int32, lookupKey string, key, plaintext []byte, cuts ...int) []string {
	t.Helper()

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}

	bounds := append([]int{0}, cuts...)
	bounds = append(bounds, len(plaintext))

	var paths []string

	for i := 0; i+1 < len(bounds); i++ {
		start, end := bounds[i], bounds[i+1]
		seg := exocache.Segment{Offset: int64(start), Length: int64(end - start)}

		r, err := exocache.KeyedIV{}.Plaintext(block, []byte(lookupKey), seg, bytes.NewReader(plaintext[start:end]))
		if err != nil {
			t.Fatalf("encrypt span: %v", err)
		}

		var ct bytes.Buffer
		if _, err := ct.ReadFrom(r); err != nil {
			t.Fatalf("encrypt span: %v", err)
		}

		paths = append(paths, WriteRawSpan(t, dir, id, int64(start), 1, ct.Bytes()))
	}

	return paths
}

// WriteRawSpan stores data as the span of id at offset, touched at touched.
func WriteRawSpan(t *testing.T, dir string, id int32, offset, touched int64, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, fmt.Sprintf("%d.%d.%d.v3.exo", id, offset, touched))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write span: %v", err)
	}

	return path
}
