package proxydecode

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func encode(s string) string {
	parts := make([]string, len(s))
	for i := 0; i < len(s); i++ {
		parts[i] = fmt.Sprint(s[i])
	}
	return strings.Join(parts, ",")
}

func wrap(payload string) string {
	return fmt.Sprintf(
		`<html><body><script>const originalBodyBase64Encoded = "%s";</script></body></html>`,
		payload,
	)
}

func TestDecode(t *testing.T) {
	original := `<div class="correlationItem-txt"><a href="/comic/x"><p title="漫画">漫画</p></a></div>`
	page := wrap(encode(original))

	require.True(t, HasEncodedContent(page))
	require.Equal(t, original, Decode(page))
}

func TestDecodeFallback(t *testing.T) {
	cases := []string{
		"<html><body>plain page</body></html>",
		wrap("60,100,105,118,62,abc"),
		wrap("60,300,62"),
		wrap("255,254,253"),
		wrap("60,,62"),
	}

	for _, page := range cases {
		require.Equal(t, page, Decode(page))
	}
	require.False(t, HasEncodedContent(cases[0]))
}
