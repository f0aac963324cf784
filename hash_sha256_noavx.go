//go:build noavx

package main

import stdsha "crypto/sha256"

var activeSHA256 = sha256Backend{name: "crypto/sha256", sum: stdsha.Sum256}
