//go:build !noavx

package main

import simdsha "github.com/minio/sha256-simd"

// sha256-simd picks SHA-NI, AVX-512 or AVX2 at runtime and falls back to
// the generic code otherwise.
var activeSHA256 = sha256Backend{name: "sha256-simd", sum: simdsha.Sum256}
