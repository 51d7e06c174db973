package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const HKDFKeyLength = 32

// HKDF expands seed into a 32-byte key bound to salt and info.
func HKDF(seed, salt, info []byte) ([]byte, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("hkdf: empty seed")
	}
	h := hkdf.New(sha256.New, seed, salt, info)
	k := make([]byte, HKDFKeyLength)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}
