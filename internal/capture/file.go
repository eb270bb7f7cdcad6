package capture

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFile is returned for files that are neither images nor PDFs
var ErrUnsupportedFile = errors.New("unsupported file type")

// LoadFile stages an image or PDF from disk
func LoadFile(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, fmt.Errorf("reading file: %w", err)
	}

	mimeType := DetectMIMEType(filepath.Base(path), data)
	if mimeType != "application/pdf" && !strings.HasPrefix(mimeType, "image/") {
		return Payload{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, mimeType)
	}
	return NewPayload(data, mimeType, filepath.Base(path)), nil
}

// DetectMIMEType guesses a MIME type from the file extension, then the content
func DetectMIMEType(filename string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		mediaType, _, _ := strings.Cut(t, ";")
		return mediaType
	}
	mediaType, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return mediaType
}
