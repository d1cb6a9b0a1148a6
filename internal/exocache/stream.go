package exocache

import (
	"cmp"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/italolelis/ytm_dumper/internal/progress"
)

const defaultProgressInterval = 8 * 1024 * 1024

// ProgressFunc is called while an entry is decrypted.
type ProgressFunc func(key []byte, done, total int64)

// Decryptor turns the spans of an entry back into the original media bytes.
// It holds no per-entry state and is safe for concurrent use.
type Decryptor struct {
	block            cipher.Block
	scheme           IVScheme
	onProgress       ProgressFunc
	progressInterval int64
}

// DecryptorOption configures a Decryptor.
type DecryptorOption func(*Decryptor)

// WithIVScheme replaces the default KeyedIV scheme.
func WithIVScheme(s IVScheme) DecryptorOption {
	return func(d *Decryptor) {
		d.scheme = s
	}
}

// WithProgress reports progress every interval bytes.
func WithProgress(interval int64, fn ProgressFunc) DecryptorOption {
	return func(d *Decryptor) {
		d.progressInterval = interval
		d.onProgress = fn
	}
}

// NewDecryptor builds a Decryptor for an AES-128, AES-192 or AES-256 key.
func NewDecryptor(key []byte, opts ...DecryptorOption) (*Decryptor, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	d := &Decryptor{
		block:            block,
		scheme:           KeyedIV{},
		progressInterval: defaultProgressInterval,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Layout checks the segments of e, in offset order, against the scheme's
// per-file overhead and returns the plaintext length.
func (d *Decryptor) Layout(e Entry) (int64, error) {
	_, total, err := d.layout(e)

	return total, err
}

// layout returns the segments of e ordered by offset along with the
// plaintext length. e is not modified.
func (d *Decryptor) layout(e Entry) ([]Segment, int64, error) {
	ordered := slices.Clone(e.Segments)
	slices.SortFunc(ordered, func(a, b Segment) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	overhead := d.scheme.Overhead()
	plain := make([]Segment, len(ordered))

	for i, seg := range ordered {
		if seg.Length < overhead {
			return nil, 0, &IncompleteDownloadError{Key: string(e.Key), Expected: overhead, Got: seg.Length, Reason: "span shorter than its iv prefix"}
		}

		seg.Length -= overhead
		plain[i] = seg
	}

	total, err := CheckLayout(string(e.Key), plain, e.ContentLength())
	if err != nil {
		return nil, 0, err
	}

	return ordered, total, nil
}

// Decrypt writes the plaintext of e to w and returns the number of bytes
// written. The layout is checked before anything is written.
func (d *Decryptor) Decrypt(ctx context.Context, e Entry, w io.Writer) (int64, error) {
	segs, total, err := d.layout(e)
	if err != nil {
		return 0, err
	}

	var written int64

	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, err := d.decryptSegment(ctx, e.Key, seg, written, total, w)
		written += n

		if err != nil {
			return written, err
		}
	}

	return written, nil
}

func (d *Decryptor) decryptSegment(ctx context.Context, key []byte, seg Segment, done, total int64, w io.Writer) (int64, error) {
	f, err := os.Open(seg.Path)
	if err != nil {
		return 0, &IOError{Op: "open span", Path: seg.Path, Err: err}
	}
	defer f.Close()

	plain, err := d.scheme.Plaintext(d.block, key, seg, f)
	if err != nil {
		return 0, err
	}

	var r io.Reader = &ctxReader{ctx: ctx, r: plain}
	if d.onProgress != nil {
		r = progress.NewReader(r, done, total, d.progressInterval, func(done, total int64) {
			d.onProgress(key, done, total)
		})
	}

	want := seg.Length - d.scheme.Overhead()

	n, err := io.CopyN(w, r, want)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}

		return n, &IOError{Op: "copy span", Path: seg.Path, Err: err}
	}

	return n, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
