package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

// QR payloads are plain delimited text: CHK|<shortCode> for the primary badge
// or CHK|<shortCode>|<attendeeIndex> for a specific person. Anything else is
// rejected before the store is touched.
const qrPrefix = "CHK"

// QRPayload is the decoded form of a scanned badge.
type QRPayload struct {
	ShortCode     string
	AttendeeIndex *int
}

// ParseQRPayload validates and decodes a scanned string. Malformed payloads
// (wrong prefix, wrong arity, empty code, non-numeric or negative index) are
// flagged as ErrInvalidInput, never silently ignored.
func ParseQRPayload(raw string) (*QRPayload, error) {
	parts := strings.Split(strings.TrimSpace(raw), "|")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("%w: expected CHK|<code>[|<index>], got %d segments", ErrInvalidInput, len(parts))
	}
	if parts[0] != qrPrefix {
		return nil, fmt.Errorf("%w: unknown payload prefix %q", ErrInvalidInput, parts[0])
	}

	code := strings.ToUpper(strings.TrimSpace(parts[1]))
	if !isAlphanumeric(code) || len(code) != shortCodeLen {
		return nil, fmt.Errorf("%w: malformed short code %q", ErrInvalidInput, parts[1])
	}

	payload := &QRPayload{ShortCode: code}
	if len(parts) == 3 {
		idx, err := strconv.Atoi(parts[2])
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: attendee index %q is not a non-negative integer", ErrInvalidInput, parts[2])
		}
		payload.AttendeeIndex = &idx
	}
	return payload, nil
}

// BuildQRPayload renders the payload string printed on a badge.
func BuildQRPayload(shortCode string, attendeeIndex int) string {
	return fmt.Sprintf("%s|%s|%d", qrPrefix, strings.ToUpper(shortCode), attendeeIndex)
}

// GenerateBadgePNG encodes the badge payload as a QR code image.
func GenerateBadgePNG(shortCode string, attendeeIndex int) ([]byte, error) {
	return qrcode.Encode(BuildQRPayload(shortCode, attendeeIndex), qrcode.Medium, 256)
}
