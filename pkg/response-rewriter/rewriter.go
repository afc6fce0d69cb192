package responserewriter

import (
	"errors"
	"strings"

	"github.com/always-cache/proxycache/pkg/latin1"
)

// Value advertised on every response replayed from the cache.
const CacheControl = "public, max-age=3600"

const (
	headerPrefix    = "Cache-Control:"
	headerLine      = headerPrefix + " " + CacheControl
	lineSeparator   = "\r\n"
	headerSeparator = "\r\n\r\n"
)

var ErrNoHeaderTerminator = errors.New("response has no blank line after its header block")

// RewriteForReplay sets the Cache-Control header of a stored response.
// The first header line starting with "Cache-Control:" (case-sensitive) is
// replaced; if there is none a new line is appended to the header block.
// The body is passed through untouched. Applying it twice gives the same
// result as applying it once.
func RewriteForReplay(entry []byte) ([]byte, error) {
	head, body, found := strings.Cut(latin1.Decode(entry), headerSeparator)
	if !found {
		return nil, ErrNoHeaderTerminator
	}

	lines := strings.Split(head, lineSeparator)
	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(line, headerPrefix) {
			lines[i] = headerLine
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, headerLine)
	}

	return latin1.Encode(strings.Join(lines, lineSeparator) + headerSeparator + body)
}
