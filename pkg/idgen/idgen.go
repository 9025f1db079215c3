// Package idgen generates locally-unique identifiers for experiments
// and variants: a millisecond timestamp plus a short random suffix. No
// external ID service is involved.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const suffixBytes = 3

// New returns an id of the form "<prefix>_<unix-ms>_<suffix>".
func New(prefix string) string {
	buf := make([]byte, suffixBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable for this process.
		panic(fmt.Sprintf("idgen: rand read: %v", err))
	}
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// Variant derives the nth variant id from its experiment id.
func Variant(experimentID string, n int) string {
	return fmt.Sprintf("var_%s_%d", experimentID, n)
}
