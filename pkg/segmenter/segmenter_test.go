package segmenter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit_GSM7(t *testing.T) {
	t.Run("160 ascii chars fit one segment", func(t *testing.T) {
		r := Split(strings.Repeat("a", 160))
		assert.Equal(t, EncodingGSM7, r.Encoding)
		assert.Equal(t, 1, r.Segments)
		assert.Equal(t, 160, r.PerSegment)
	})

	t.Run("161 ascii chars need two segments at 153 each", func(t *testing.T) {
		r := Split(strings.Repeat("a", 161))
		assert.Equal(t, EncodingGSM7, r.Encoding)
		assert.Equal(t, 2, r.Segments)
		assert.Equal(t, 153, r.PerSegment)
	})

	t.Run("307 chars need three segments", func(t *testing.T) {
		r := Split(strings.Repeat("a", 307))
		assert.Equal(t, 3, r.Segments)
	})

	t.Run("extension chars cost two septets", func(t *testing.T) {
		// 80 euro signs = 160 septets, still a single segment
		r := Split(strings.Repeat("€", 80))
		assert.Equal(t, EncodingGSM7, r.Encoding)
		assert.Equal(t, 160, r.Units)
		assert.Equal(t, 1, r.Segments)

		r = Split(strings.Repeat("€", 81))
		assert.Equal(t, 2, r.Segments)
	})

	t.Run("gsm accented chars stay gsm7", func(t *testing.T) {
		r := Split("héllo ça va ö ñ")
		assert.Equal(t, EncodingGSM7, r.Encoding)
	})
}

func TestSplit_UCS2(t *testing.T) {
	t.Run("single emoji is one ucs2 segment", func(t *testing.T) {
		r := Split("🎉")
		assert.Equal(t, EncodingUCS2, r.Encoding)
		assert.Equal(t, 1, r.Segments)
		// one astral rune is a surrogate pair
		assert.Equal(t, 2, r.Units)
	})

	t.Run("70 cjk chars fit one segment", func(t *testing.T) {
		r := Split(strings.Repeat("短", 70))
		assert.Equal(t, EncodingUCS2, r.Encoding)
		assert.Equal(t, 1, r.Segments)
	})

	t.Run("71 cjk chars need two segments at 67 each", func(t *testing.T) {
		r := Split(strings.Repeat("短", 71))
		assert.Equal(t, 2, r.Segments)
		assert.Equal(t, 67, r.PerSegment)
	})
}

func TestSplit_Empty(t *testing.T) {
	r := Split("")
	assert.Equal(t, 1, r.Segments)
	assert.Equal(t, EncodingGSM7, r.Encoding)
}

func TestIsGSM7(t *testing.T) {
	assert.True(t, IsGSM7("hello @£$¥ {}[]"))
	assert.False(t, IsGSM7("hello 🎉"))
	assert.False(t, IsGSM7("中文"))
}
