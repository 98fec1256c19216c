package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		base   string
		href   string
		strip  []string
		expect string
	}{
		{
			base:   "https://www.mangacopy.com",
			href:   "/comic/abc",
			expect: "https://www.mangacopy.com/comic/abc",
		},
		{
			base:   "https://www.mangacopy.com",
			href:   "https://relay.example.workers.dev/https://www.mangacopy.com/comic/abc",
			strip:  []string{"https://relay.example.workers.dev/", "https://www.mangacopy.com"},
			expect: "https://www.mangacopy.com/comic/abc",
		},
		{
			base:   "https://www.wenku8.net/novel/2/2580/",
			href:   "95041.htm",
			expect: "https://www.wenku8.net/novel/2/2580/95041.htm",
		},
	}

	for _, test := range cases {
		link, err := Canonicalize(test.base, test.href, test.strip...)
		require.NoError(t, err)
		require.Equal(t, test.expect, link)
		require.True(t, IsAbsolute(link))
	}
}

func TestItemValidate(t *testing.T) {
	require.NoError(t, Item{Title: "a", Link: "https://nga.178.com/read.php?tid=1"}.Validate())
	require.Error(t, Item{Title: "b", Link: "/read.php?tid=1"}.Validate())
	require.Error(t, Item{Title: "c", Link: "ftp://example.com/x"}.Validate())
}
