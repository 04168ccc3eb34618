package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := New()
		assert.Equal(t, DefaultChunkSize, c.Size())
		assert.Equal(t, DefaultChunkOverlap, c.Overlap())
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		c := New(WithChunkSize(100), WithOverlap(150))
		assert.Equal(t, 25, c.Overlap())
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		c := New(WithChunkSize(0), WithOverlap(-1))
		assert.Equal(t, DefaultChunkSize, c.Size())
		assert.Equal(t, DefaultChunkOverlap, c.Overlap())
	})
}

func TestSplit_Blank(t *testing.T) {
	c := New()
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	c := New(WithChunkSize(100), WithOverlap(20))
	chunks := c.Split("a short page")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short page", chunks[0])
}

func TestSplit_ExactWindow(t *testing.T) {
	c := New(WithChunkSize(10), WithOverlap(3))
	chunks := c.Split("0123456789")
	assert.Equal(t, []string{"0123456789"}, chunks)
}

func TestSplit_Windows(t *testing.T) {
	c := New(WithChunkSize(10), WithOverlap(3))
	chunks := c.Split("abcdefghijklmnopqrstuvwxyz")

	assert.Equal(t, []string{
		"abcdefghij",
		"hijklmnopq",
		"opqrstuvwx",
		"vwxyz",
	}, chunks)
}

func TestSplit_Properties(t *testing.T) {
	inputs := map[string]string{
		"ascii":     strings.Repeat("The quick brown fox jumps over the lazy dog. ", 97),
		"multibyte": strings.Repeat("日本語のテキストと émoji 🚀 mixed. ", 61),
		"newlines":  strings.Repeat("line\n", 503),
	}
	configs := []struct{ size, overlap int }{
		{1000, 200},
		{100, 0},
		{64, 63},
		{7, 3},
	}

	for name, text := range inputs {
		for _, cfg := range configs {
			c := New(WithChunkSize(cfg.size), WithOverlap(cfg.overlap))
			chunks := c.Split(text)
			require.NotEmpty(t, chunks, name)

			for i, chunk := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(chunk), c.Size(), "%s chunk %d", name, i)
				if i > 0 {
					prev := []rune(chunks[i-1])
					cur := []rune(chunk)
					assert.Equal(t, string(prev[len(prev)-c.Overlap():]), string(cur[:c.Overlap()]),
						"%s chunk %d overlap", name, i)
				}
			}
			assert.Equal(t, text, c.Join(chunks), "%s size=%d overlap=%d", name, cfg.size, cfg.overlap)
		}
	}
}
