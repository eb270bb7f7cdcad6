package scanning

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// maxPDFPages bounds how many pages are rasterized for image-only models
const maxPDFPages = 2

// pdfToPNGs renders the leading pages of a PDF as PNG images
func pdfToPNGs(pdfData []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	out := make([][]byte, 0, pages)
	for i := 0; i < pages; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}
		data, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

// imageToPNG decodes any supported image, including HEIC, and re-encodes it as PNG
func imageToPNG(data []byte, mimeType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	if IsHEIC(data, mimeType) {
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// IsHEIC sniffs the ftyp box brand or falls back to the MIME type
func IsHEIC(data []byte, mimeType string) bool {
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		switch string(data[8:12]) {
		case "heic", "heix", "heif", "mif1", "msf1":
			return true
		}
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// passthroughImage reports whether models accept the image without conversion
func passthroughImage(data []byte, mimeType string) bool {
	if IsHEIC(data, mimeType) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	}
	return false
}

// rasterize turns a document into images a vision model accepts.
// PDFs become one PNG per page; other images pass through or become PNG.
func rasterize(doc Document) ([][]byte, string, error) {
	if doc.IsPDF() {
		pages, err := pdfToPNGs(doc.Data)
		if err != nil {
			return nil, "", fmt.Errorf("converting PDF to image: %w", err)
		}
		return pages, "image/png", nil
	}
	if passthroughImage(doc.Data, doc.MIMEType) {
		mimeType := strings.ToLower(strings.TrimSpace(doc.MIMEType))
		if mimeType == "image/jpg" {
			mimeType = "image/jpeg"
		}
		return [][]byte{doc.Data}, mimeType, nil
	}
	data, err := imageToPNG(doc.Data, doc.MIMEType)
	if err != nil {
		return nil, "", fmt.Errorf("converting image to PNG: %w", err)
	}
	return [][]byte{data}, "image/png", nil
}

// dataURL encodes bytes as a base64 data URL
func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
