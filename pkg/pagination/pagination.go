// Package pagination implements opaque keyset cursors. Entity lists page on
// (created_at, id) descending; wallet history pages on the ledger sequence.
package pagination

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	sequencePrefix = "seq|"
)

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the last row seen on the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting to DefaultLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer over-fetches one row to detect a next page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func invalid(reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor").WithDetails(map[string]any{"cursor": reason})
}

// Cursors travel in query strings, hence the URL-safe unpadded alphabet.
func encode(payload string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decode(value string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return "", invalid("not base64url")
	}
	return string(raw), nil
}

func EncodeCursor(cursor Cursor) string {
	return encode(cursor.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + cursor.ID.String())
}

// ParseCursor returns nil for an empty value. Malformed cursors are
// validation errors.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	payload, err := decode(value)
	if err != nil {
		return nil, err
	}
	ts, id, ok := strings.Cut(payload, "|")
	if !ok {
		return nil, invalid("missing separator")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, invalid("bad timestamp")
	}
	rowID, err := uuid.Parse(id)
	if err != nil {
		return nil, invalid("bad id")
	}
	return &Cursor{CreatedAt: createdAt, ID: rowID}, nil
}

// EncodeSequenceCursor encodes the last wallet sequence returned.
func EncodeSequenceCursor(sequence int64) string {
	return encode(sequencePrefix + strconv.FormatInt(sequence, 10))
}

// ParseSequenceCursor returns 0 when the cursor is empty.
func ParseSequenceCursor(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	payload, err := decode(value)
	if err != nil {
		return 0, err
	}
	raw, ok := strings.CutPrefix(payload, sequencePrefix)
	if !ok {
		return 0, invalid("not a sequence cursor")
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		return 0, invalid("bad sequence")
	}
	return seq, nil
}
