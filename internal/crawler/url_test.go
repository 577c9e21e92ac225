package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"HTTPS://Books.ToScrape.com:443/catalogue/a_1/index.html#reviews", "https://books.toscrape.com/catalogue/a_1/index.html"},
		{"http://example.com:80/x", "http://example.com/x"},
		{"http://example.com:8080/x", "http://example.com:8080/x"},
		{"https://www.vendr.com/marketplace/datadog?b=2&a=1", "https://www.vendr.com/marketplace/datadog?a=1&b=2"},
		{" /relative/path ", "/relative/path"},
	}
	for _, tc := range cases {
		got, err := CanonicalURL(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := CanonicalURL("http://%zz")
	require.Error(t, err)
}
