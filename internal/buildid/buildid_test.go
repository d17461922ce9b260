package buildid

import (
	"bytes"
	"testing"
	"time"
)

func TestNewIsTimeOrdered(t *testing.T) {
	a := newAt(time.UnixMilli(1000))
	b := newAt(time.UnixMilli(2000))
	if bytes.Compare(a[:6], b[:6]) >= 0 {
		t.Fatalf("expected earlier timestamp to sort first: %x vs %x", a[:6], b[:6])
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := New()
		if seen[id.String()] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id.String()] = true
	}
}
