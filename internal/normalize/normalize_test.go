package normalize

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_DashVariants(t *testing.T) {
	n := New(100)

	variants := []string{
		"496-51850",      // plain ASCII hyphen
		"496–51850", // en-dash
		"496—51850", // em-dash
		"496−51850", // minus sign
		"496‒51850", // figure-dash
	}
	for _, v := range variants {
		assert.Equal(t, "496-51850", n.Normalize(v), "variant %q", v)
	}
}

func TestNormalize_StripsInvisibleCharacters(t *testing.T) {
	n := New(100)

	cases := map[string]string{
		"  ABC-1  ":         "ABC-1",
		"ABC - 1": "ABC-1",
		"AB​C":         "ABC", // zero-width space sits in U+2000-U+200F
		"ABC 1":        "ABC1",
		"ABC":   "ABC",
		"one   two\t three": "one two three",
		"⁠ABC⁣":   "ABC",
	}
	for in, want := range cases {
		assert.Equal(t, want, n.Normalize(in), "input %q", in)
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	n := New(100)
	assert.Equal(t, "", n.Normalize(""))
	assert.Equal(t, "", n.Normalize("   "))
	assert.Equal(t, "", n.Normalize("  "))
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New(100)
	inputs := []string{"496–51850", "  a  b  ", "X Y", "plain"}
	for _, in := range inputs {
		once := n.Normalize(in)
		assert.Equal(t, once, n.Normalize(once), "input %q", in)
	}
}

func TestNormalizeFold(t *testing.T) {
	n := New(100)
	assert.Equal(t, "abc-1", n.NormalizeFold("  ABC–1 "))
}

func TestCacheStats(t *testing.T) {
	n := New(100)

	n.Normalize("A-1")
	n.Normalize("A-1")
	n.Normalize("B-2")

	st := n.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(2), st.Misses)
	assert.Equal(t, 2, st.Size)
	assert.Equal(t, 100, st.Capacity)

	n.Clear()
	st = n.Stats()
	assert.Equal(t, uint64(0), st.Hits)
	assert.Equal(t, uint64(0), st.Misses)
	assert.Equal(t, 0, st.Size)
}

func TestCacheEviction(t *testing.T) {
	n := New(3)

	n.Normalize("a")
	n.Normalize("b")
	n.Normalize("c")
	n.Normalize("a") // refresh "a" so "b" is the LRU entry
	n.Normalize("d") // evicts "b"

	require.Equal(t, 3, n.Stats().Size)

	before := n.Stats().Hits
	n.Normalize("a")
	n.Normalize("c")
	n.Normalize("d")
	assert.Equal(t, before+3, n.Stats().Hits)

	missesBefore := n.Stats().Misses
	n.Normalize("b")
	assert.Equal(t, missesBefore+1, n.Stats().Misses)
}

func TestNormalize_Concurrent(t *testing.T) {
	n := New(50)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				in := fmt.Sprintf("ART–%d", j%20)
				assert.Equal(t, fmt.Sprintf("ART-%d", j%20), n.Normalize(in))
			}
		}()
	}
	wg.Wait()
}
