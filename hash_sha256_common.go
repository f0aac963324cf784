package main

// sha256Backend is the SHA-256 implementation selected at build time.
type sha256Backend struct {
	name string
	sum  func([]byte) [32]byte
}

// doubleHash is SHA-256(SHA-256(b)), the id and header hash function.
func doubleHash(b []byte) [32]byte {
	first := activeSHA256.sum(b)
	return activeSHA256.sum(first[:])
}
