// Package latin1 maps raw bytes to text and back using ISO-8859-1.
// Every byte value 0-255 is exactly one code point, so arbitrary binary
// response bodies survive being stored as text.
package latin1

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// Decode returns the text form of b.
func Decode(b []byte) string {
	// decoding ISO-8859-1 cannot fail, every byte has a code point
	s, _ := charmap.ISO8859_1.NewDecoder().Bytes(b)
	return string(s)
}

// Encode returns the bytes represented by s.
// It fails if s contains a code point above U+00FF.
func Encode(s string) ([]byte, error) {
	for i, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("code point %U at offset %d is not representable in ISO-8859-1", r, i)
		}
	}
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("could not encode text: %w", err)
	}
	return b, nil
}
