package order

import (
	"crypto/rand"
	"strings"
	"time"
)

// numberAlphabet omits characters that are easy to misread (0/O, 1/I/L).
const numberAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const numberSuffixLen = 6

// NumberGenerator produces human-readable order numbers. Numbers are not
// guaranteed unique; callers retry on ErrDuplicateNumber.
type NumberGenerator interface {
	Next(now time.Time) string
}

// RandomNumbers generates numbers of the form PREFIX-YYYYMMDD-XXXXXX.
type RandomNumbers struct {
	Prefix string
}

// Next returns a new candidate order number.
func (g RandomNumbers) Next(now time.Time) string {
	var raw [numberSuffixLen]byte
	_, _ = rand.Read(raw[:])

	var b strings.Builder
	prefix := g.Prefix
	if prefix == "" {
		prefix = "ORD"
	}
	b.WriteString(prefix)
	b.WriteByte('-')
	b.WriteString(now.UTC().Format("20060102"))
	b.WriteByte('-')
	for _, r := range raw {
		b.WriteByte(numberAlphabet[int(r)%len(numberAlphabet)])
	}
	return b.String()
}
