package exocache

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
)

// IVScheme decides how the CTR counter of a span file is initialized.
type IVScheme interface {
	// Overhead is the number of bytes at the start of each span file that
	// are not ciphertext.
	Overhead() int64
	// Plaintext returns a reader decrypting r, the content of seg. lookupKey
	// is the cache key of the stream the segment belongs to.
	Plaintext(block cipher.Block, lookupKey []byte, seg Segment, r io.Reader) (io.Reader, error)
}

// KeyedIV is the scheme of the app's cache writer. The nonce is a hash of the
// cache key and the counter is the block index of the segment's offset, so
// spans can be decrypted independently.
type KeyedIV struct{}

func (KeyedIV) Overhead() int64 { return 0 }

func (KeyedIV) Plaintext(block cipher.Block, lookupKey []byte, seg Segment, r io.Reader) (io.Reader, error) {
	var iv [aes.BlockSize]byte
	binary.BigEndian.PutUint64(iv[:8], keyNonce(lookupKey))
	binary.BigEndian.PutUint64(iv[8:], uint64(seg.Offset/aes.BlockSize))

	stream := cipher.NewCTR(block, iv[:])

	if skip := seg.Offset % aes.BlockSize; skip != 0 {
		var discard [aes.BlockSize]byte
		stream.XORKeyStream(discard[:skip], discard[:skip])
	}

	return &cipher.StreamReader{S: stream, R: r}, nil
}

// PrefixIV reads the IV from the first Size bytes of every span file. A
// prefix shorter than a block is the nonce and the counter starts at zero.
type PrefixIV struct {
	Size int
}

func (p PrefixIV) Overhead() int64 { return int64(p.Size) }

func (p PrefixIV) Plaintext(block cipher.Block, _ []byte, seg Segment, r io.Reader) (io.Reader, error) {
	if p.Size <= 0 || p.Size > aes.BlockSize {
		return nil, fmt.Errorf("iv prefix size %d out of range 1..%d", p.Size, aes.BlockSize)
	}

	var iv [aes.BlockSize]byte
	if _, err := io.ReadFull(r, iv[:p.Size]); err != nil {
		return nil, &IOError{Op: "read iv prefix of", Path: seg.Path, Err: err}
	}

	return &cipher.StreamReader{S: cipher.NewCTR(block, iv[:]), R: r}, nil
}
