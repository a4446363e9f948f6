package service

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/youthhub-api/internal/models"
	appErrors "github.com/noah-isme/youthhub-api/pkg/errors"
)

// EncodeCursor renders the ranking key as an opaque token.
func EncodeCursor(c models.Cursor) string {
	pinned := "0"
	if c.Pinned {
		pinned = "1"
	}
	raw := fmt.Sprintf("%s:%d:%d", pinned, c.PublishedMs, c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token means
// the first page.
func DecodeCursor(token string) (*models.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidCursor.Code, appErrors.ErrInvalidCursor.Status, "cursor is not valid base64")
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 {
		return nil, appErrors.Clone(appErrors.ErrInvalidCursor, "cursor has wrong shape")
	}
	var c models.Cursor
	switch parts[0] {
	case "1":
		c.Pinned = true
	case "0":
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidCursor, "cursor pinned flag must be 0 or 1")
	}
	if c.PublishedMs, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidCursor.Code, appErrors.ErrInvalidCursor.Status, "cursor timestamp is invalid")
	}
	if c.ID, err = strconv.ParseInt(parts[2], 10, 64); err != nil || c.ID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidCursor, "cursor id is invalid")
	}
	return &c, nil
}
