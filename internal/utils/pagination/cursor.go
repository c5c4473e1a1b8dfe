package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidToken is returned for tokens this package did not produce.
var ErrInvalidToken = errors.New("pagination: invalid token")

// Cursor is the keyset position after the last row of a page of likers:
// rows are ordered by (updated_at DESC, swiper_id DESC).
type Cursor struct {
	SwiperID    uint64 `json:"s"`
	UpdatedAtMs int64  `json:"t"`
}

// IsZero reports the first-page cursor.
func (c Cursor) IsZero() bool {
	return c.SwiperID == 0 && c.UpdatedAtMs == 0
}

// UpdatedAt is the cursor timestamp in UTC.
func (c Cursor) UpdatedAt() time.Time {
	return time.UnixMilli(c.UpdatedAtMs).UTC()
}

// After builds the cursor positioned after a row.
func After(swiperID uint64, updatedAt time.Time) Cursor {
	return Cursor{SwiperID: swiperID, UpdatedAtMs: updatedAt.UnixMilli()}
}

// Encode returns the opaque token for c.
func Encode(c Cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a token. nil or empty means the first page.
func Decode(token *string) (Cursor, error) {
	if token == nil || *token == "" {
		return Cursor{}, nil
	}

	b, err := base64.RawURLEncoding.DecodeString(*token)
	if err != nil {
		return Cursor{}, ErrInvalidToken
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, ErrInvalidToken
	}
	// half-filled cursors would silently restart or skip pages
	if c.SwiperID == 0 || c.UpdatedAtMs <= 0 {
		return Cursor{}, ErrInvalidToken
	}
	return c, nil
}
