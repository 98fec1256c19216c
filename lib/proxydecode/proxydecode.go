// Package proxydecode recovers the original markup of pages served through
// a cf-proxy-ex style relay, which embeds the upstream body as a list of
// byte values inside an inline script.
package proxydecode

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var payloadRegex = regexp.MustCompile(`const originalBodyBase64Encoded = "([^"]+)"`)

func HasEncodedContent(markup string) bool {
	return payloadRegex.MatchString(markup)
}

// Decode returns the embedded upstream body, or markup unchanged if there
// is no payload or the payload cannot be decoded.
func Decode(markup string) string {
	groups := payloadRegex.FindStringSubmatch(markup)
	if len(groups) < 2 {
		return markup
	}
	decoded, ok := decodeByteList(groups[1])
	if !ok {
		return markup
	}
	return decoded
}

func decodeByteList(list string) (string, bool) {
	values := strings.Split(list, ",")
	buf := make([]byte, len(values))
	for i, v := range values {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 8)
		if err != nil {
			return "", false
		}
		buf[i] = byte(n)
	}
	if !utf8.Valid(buf) {
		return "", false
	}
	return string(buf), true
}
