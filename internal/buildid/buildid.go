// Package buildid generates the time-ordered 128-bit identifiers used for
// build_id and domain_id. It plays the role the original system filled with
// a ULID coerced into a UUID column; this codebase stores the same 48-bit
// millisecond timestamp plus 80 bits of randomness directly as a uuid.UUID.
package buildid

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// New returns a uuid.UUID whose top 48 bits are the current Unix time in
// milliseconds and whose remaining 80 bits are cryptographically random,
// so identifiers generated later sort after ones generated earlier.
func New() uuid.UUID {
	return newAt(time.Now())
}

func newAt(t time.Time) uuid.UUID {
	var id uuid.UUID
	ms := uint64(t.UnixMilli())

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], ms)
	copy(id[:6], tsBuf[2:8]) // low 48 bits of the millisecond timestamp

	if _, err := rand.Read(id[6:]); err != nil {
		panic("buildid: crypto/rand unavailable: " + err.Error())
	}
	return id
}
