package util

import (
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Checksum returns the xxhash64 digest of data.
func Checksum(data ...[]byte) uint64 {
	d := xxhash.New()
	for _, b := range data {
		_, _ = d.Write(b)
	}
	return d.Sum64()
}

// GenerateName returns prefix followed by a short random suffix, e.g. "worker-1f9c2a7b".
func GenerateName(prefix string) string {
	suffix := uuid.NewString()[:8]
	if prefix == "" {
		return suffix
	}
	return prefix + "-" + suffix
}
