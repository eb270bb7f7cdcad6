package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, matching the extraction schema.
	decimal.MarshalJSONWithoutQuotes = true
}

// Status is the review state of a receipt
type Status string

const (
	StatusExtracted Status = "Extracted"
	StatusFlagged   Status = "Flagged"
	StatusVerified  Status = "Verified"
	StatusPending   Status = "Pending"
	StatusReviewing Status = "Reviewing"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusExtracted, StatusFlagged, StatusVerified, StatusPending, StatusReviewing:
		return true
	}
	return false
}

// Category is the expense bucket of a receipt
type Category string

const (
	CategoryMaterials Category = "Materials"
	CategoryEquipment Category = "Equipment"
	CategoryLabor     Category = "Labor"
	CategoryFuel      Category = "Fuel"
	CategoryOther     Category = "Other"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryMaterials,
	CategoryEquipment,
	CategoryLabor,
	CategoryFuel,
	CategoryOther,
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Receipt is an approved expense record
type Receipt struct {
	ID        int64           `json:"id"`
	Vendor    string          `json:"vendor"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date"`
	Tax       decimal.Decimal `json:"tax"`
	Status    Status          `json:"status"`
	Category  Category        `json:"category"`
	Location  string          `json:"location"`
	Time      string          `json:"time"`
	FileKey   string          `json:"-"`
	MIMEType  string          `json:"mime_type,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// HasFile reports whether the source document was archived
func (r *Receipt) HasFile() bool {
	return r.FileKey != ""
}

// Draft holds the fields required to create a receipt
type Draft struct {
	Vendor   string           `json:"vendor" validate:"required"`
	Amount   *decimal.Decimal `json:"amount" validate:"required"`
	Date     string           `json:"date" validate:"required,datetime=2006-01-02"`
	Tax      *decimal.Decimal `json:"tax" validate:"required"`
	Status   Status           `json:"status" validate:"required,oneof=Extracted Flagged Verified Pending Reviewing"`
	Category Category         `json:"category" validate:"required,oneof=Materials Equipment Labor Fuel Other"`
	Location string           `json:"location" validate:"required"`
	Time     string           `json:"time" validate:"required"`
}

// Attachment is the source document archived alongside a receipt
type Attachment struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Filter narrows a receipt listing. Zero values are ignored.
type Filter struct {
	Search    string
	Status    string
	Category  string
	DateFrom  string
	DateTo    string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
}

// List is one page of receipts plus the total matching count
type List struct {
	Items    []*Receipt `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}
