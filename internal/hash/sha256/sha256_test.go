// Package sha256 includes tests for the SHA-256 hasher adapter.
package sha256

import "testing"

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		prefix, digest, ext, want string
	}{
		{"pages/books", "b94d27b9", "html", "pages/books/b9/b94d27b9.html"},
		{"", "b94d27b9", ".html", "b9/b94d27b9.html"},
		{"pages", "a", "", "pages/a/a"},
	}
	for _, c := range cases {
		if got := ObjectKey(c.prefix, c.digest, c.ext); got != c.want {
			t.Errorf("ObjectKey(%q, %q, %q) = %q, want %q", c.prefix, c.digest, c.ext, got, c.want)
		}
	}
}
