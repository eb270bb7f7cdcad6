// Package capture stages receipt documents between capture and verification.
package capture

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// LegacyFilename names payloads stored as a bare data URL
const LegacyFilename = "receipt"

// ErrInvalidDataURL is returned for malformed data URLs
var ErrInvalidDataURL = errors.New("invalid data URL")

// Payload is a staged receipt document
type Payload struct {
	DataURL  string `json:"dataUrl"`
	MIMEType string `json:"mimeType"`
	Filename string `json:"filename,omitempty"`
}

// NewPayload encodes raw bytes as a payload
func NewPayload(data []byte, mimeType, filename string) Payload {
	return Payload{
		DataURL:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeType,
		Filename: filename,
	}
}

// LegacyPayload infers the MIME type of a payload stored as a bare data URL
func LegacyPayload(dataURL string) Payload {
	mimeType := "image/jpeg"
	if strings.HasPrefix(dataURL, "data:application/pdf") {
		mimeType = "application/pdf"
	}
	return Payload{DataURL: dataURL, MIMEType: mimeType, Filename: LegacyFilename}
}

// UnmarshalJSON accepts either the structured form or a legacy bare data URL string
func (p *Payload) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if !strings.HasPrefix(s, "data:") {
			return fmt.Errorf("%w: legacy payload must start with data:", ErrInvalidDataURL)
		}
		*p = LegacyPayload(s)
		return nil
	}

	type plain Payload
	var v plain
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*p = Payload(v)
	return nil
}

// Valid reports whether both the data URL and MIME type are present
func (p Payload) Valid() bool {
	return p.DataURL != "" && p.MIMEType != ""
}

// Decode returns the raw bytes of the data URL
func (p Payload) Decode() ([]byte, error) {
	_, data, err := ParseDataURL(p.DataURL)
	return data, err
}

// ParseDataURL splits a data URL into its media type and decoded body
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURL)
	}
	meta, body, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing comma", ErrInvalidDataURL)
	}

	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		meta = m
		isBase64 = true
	}
	mediaType, _, _ := strings.Cut(meta, ";")
	if mediaType == "" {
		mediaType = "text/plain"
	}

	if !isBase64 {
		decoded, err := url.PathUnescape(body)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
		}
		return mediaType, []byte(decoded), nil
	}

	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "="))
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
		}
	}
	return mediaType, data, nil
}
