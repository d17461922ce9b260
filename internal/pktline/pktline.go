// Package pktline implements git's length-prefixed pkt-line framing, used
// to compose the smart-HTTP advertisement preamble.
package pktline

import "fmt"

// Flush is the literal 4-byte flush-pkt.
const Flush = "0000"

// Write frames s as a pkt-line: four hex digits giving the total length
// (including the four length bytes) followed by s itself.
func Write(s string) string {
	return fmt.Sprintf("%04x%s", len(s)+4, s)
}

// WriteBytes is the []byte form of Write, for callers building a response
// body incrementally without string concatenation.
func WriteBytes(b []byte) []byte {
	return []byte(fmt.Sprintf("%04x%s", len(b)+4, b))
}

// Decode reports the payload of a single pkt-line at the start of buf; a
// flush-pkt yields a nil payload with ok true. ok is false if buf is
// shorter than its own header or declared length, or the header is not
// four valid hex digits.
func Decode(buf []byte) (payload []byte, ok bool) {
	if len(buf) < 4 {
		return nil, false
	}
	var n int
	if _, err := fmt.Sscanf(string(buf[:4]), "%04x", &n); err != nil {
		return nil, false
	}
	if n == 0 {
		return nil, true // flush-pkt
	}
	if n < 4 || len(buf) < n {
		return nil, false
	}
	return buf[4:n], true
}
