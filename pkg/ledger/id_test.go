package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	now := time.Date(2026, 10, 15, 23, 30, 0, 0, time.UTC)

	t.Run("should format prefix date and suffix", func(t *testing.T) {
		id, err := NewID("OUT", now)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, "OUT-261015-"), id)
		assert.Len(t, id, len("OUT-261015-XXXX"))
		assert.True(t, ValidID(id))
	})

	t.Run("should use UTC date", func(t *testing.T) {
		loc := time.FixedZone("UTC+3", 3*60*60)
		id, err := NewID("CMP", now.In(loc))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, "CMP-261015-"), id)
	})

	t.Run("should normalize prefix case", func(t *testing.T) {
		id, err := NewID("cmp", now)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, "CMP-"))
	})

	t.Run("should reject invalid prefix", func(t *testing.T) {
		for _, prefix := range []string{"", "O", "1AB", "TOO-LONG", "WAYTOOLONG"} {
			_, err := NewID(prefix, now)
			assert.Error(t, err, prefix)
		}
	})

	t.Run("should avoid ambiguous characters", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			id, err := NewID("OUT", now)
			require.NoError(t, err)
			suffix := id[strings.LastIndex(id, "-")+1:]
			assert.NotContains(t, suffix, "0")
			assert.NotContains(t, suffix, "O")
			assert.NotContains(t, suffix, "1")
			assert.NotContains(t, suffix, "I")
		}
	})
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("OUT-261015-K7QZ"))
	assert.False(t, ValidID("OUT-261015-K7Q"))
	assert.False(t, ValidID("out-261015-K7QZ"))
	assert.False(t, ValidID("OUT-2610-K7QZ"))
	assert.False(t, ValidID(""))
}
