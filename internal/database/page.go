package database

import (
	"math"
	"strconv"
)

// Paging bounds shared by every list endpoint
const (
	DefaultPageSize = 25
	MaxPageSize     = 100

	// MaxPageNumber keeps the row offset of any clamped page within int
	MaxPageNumber = math.MaxInt / MaxPageSize
)

// Page is a 1-based page request
type Page struct {
	Number int
	Size   int
}

// NewPage clamps raw query values: page to 1..MaxPageNumber, size to 1..100.
// Missing, zero or non-numeric values fall back to the defaults.
func NewPage(rawPage, rawSize string) Page {
	number, _ := strconv.Atoi(rawPage)
	number = min(max(number, 1), MaxPageNumber)

	size, err := strconv.Atoi(rawSize)
	if err != nil || size == 0 {
		size = DefaultPageSize
	}
	size = min(max(size, 1), MaxPageSize)

	return Page{Number: number, Size: size}
}

// Offset returns the number of rows to skip
func (p Page) Offset() uint64 {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	number := min(p.Number, math.MaxInt/p.Size)
	return uint64(number-1) * uint64(p.Size)
}

// Limit returns the page size as a row limit
func (p Page) Limit() uint64 {
	return uint64(p.Size)
}
