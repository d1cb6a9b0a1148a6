package exocache

// keyNonce hashes a cache key into the CTR nonce used by the cache writer.
// The multiplier is the 64-bit FNV prime expressed as shifts; it is applied
// after the xor, as in FNV-1a, but starts from zero instead of the offset basis.
func keyNonce(key []byte) uint64 {
	var h uint64

	for _, b := range key {
		h ^= uint64(b)
		h += (h << 1) + (h << 4) + (h << 5) + (h << 7) + (h << 8) + (h << 40)
	}

	return h
}
