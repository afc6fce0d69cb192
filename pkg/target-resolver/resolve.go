package targetresolver

import "strings"

// Target is the origin location derived from a request target.
type Target struct {
	Host string
	Path string
}

// schemes are stripped in this order, case-sensitively
var schemes = []string{"http://", "https://"}

// Resolve strips a leading scheme and splits the rest at the first slash.
// Without a slash the whole remainder is the host and the path is "/".
// It never fails; degenerate input gives degenerate output.
func Resolve(target string) Target {
	rest := target
	for _, scheme := range schemes {
		if strings.HasPrefix(rest, scheme) {
			rest = rest[len(scheme):]
			break
		}
	}
	idx := strings.Index(rest, "/")
	if idx == -1 {
		return Target{Host: rest, Path: "/"}
	}
	return Target{Host: rest[:idx], Path: rest[idx:]}
}
