package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestCursor_RoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 123_000_000, time.UTC)
	token := Encode(After(12, at))

	c, err := Decode(&token)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), c.SwiperID)
	assert.True(t, at.Equal(c.UpdatedAt()))
	assert.False(t, c.IsZero())
}

func TestCursor_EmptyIsFirstPage(t *testing.T) {
	c, err := Decode(nil)
	require.NoError(t, err)
	assert.True(t, c.IsZero())

	c, err = Decode(ptr(""))
	require.NoError(t, err)
	assert.True(t, c.IsZero())
}

func TestCursor_RejectsForeignTokens(t *testing.T) {
	for name, token := range map[string]string{
		"not base64":  "%%%not-base64",
		"not json":    base64.RawURLEncoding.EncodeToString([]byte("hello")),
		"half filled": base64.RawURLEncoding.EncodeToString([]byte(`{"s":7}`)),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(ptr(token))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
