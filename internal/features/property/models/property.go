package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusVerified  Status = "Verified"
	StatusRejected  Status = "Rejected"
	StatusWithdrawn Status = "Withdrawn"
)

var chainStatuses = []Status{StatusPending, StatusVerified, StatusRejected, StatusWithdrawn}

// Statuses lists every verification status in registry order.
func Statuses() []Status {
	return append([]Status(nil), chainStatuses...)
}

// StatusFromChain maps the registry enum value.
func StatusFromChain(v uint8) (Status, bool) {
	if int(v) >= len(chainStatuses) {
		return "", false
	}
	return chainStatuses[v], true
}

// ParseStatus accepts any letter case.
func ParseStatus(raw string) (Status, bool) {
	for _, s := range chainStatuses {
		if strings.EqualFold(string(s), strings.TrimSpace(raw)) {
			return s, true
		}
	}
	return "", false
}

// Property merges a registry request with its off-chain metadata.
// Price is in minor currency units and nil when the metadata has none.
type Property struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	Status      Status    `json:"status"`
	TokenID     string    `json:"token_id"`
	RequestedAt time.Time `json:"requested_at"`

	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       *int64   `json:"price,omitempty"`
	Location    string   `json:"location"`
	AreaSqFt    int64    `json:"area_sq_ft"`
	Bedrooms    int      `json:"bedrooms"`
	Bathrooms   float64  `json:"bathrooms"`
	YearBuilt   int      `json:"year_built"`
	Images      []string `json:"images"`
	Owner       string   `json:"owner"`
	Featured    bool     `json:"featured"`

	// MetadataError is set when the metadata document could not be read;
	// on-chain fields are still valid.
	MetadataError string `json:"metadata_error,omitempty"`
}

func (p Property) HasPrice() bool {
	return p.Price != nil
}

func (p Property) PriceValue() int64 {
	if p.Price == nil {
		return 0
	}
	return *p.Price
}

// DisplayTitle falls back to the request id when metadata is missing.
func (p Property) DisplayTitle() string {
	if p.Title != "" {
		return p.Title
	}
	return "Property request #" + p.ID
}

func (p Property) CoverImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Metadata is the JSON document stored under a property's content hash.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       *int64   `json:"price,omitempty"`
	Location    string   `json:"location"`
	Area        int64    `json:"area"`
	Bedrooms    int      `json:"bedrooms"`
	Bathrooms   float64  `json:"bathrooms"`
	YearBuilt   int      `json:"yearBuilt"`
	Images      []string `json:"images,omitempty"`
}

func (p *Property) ApplyMetadata(m Metadata) {
	p.Title = m.Title
	p.Description = m.Description
	p.Price = m.Price
	p.Location = m.Location
	p.AreaSqFt = m.Area
	p.Bedrooms = m.Bedrooms
	p.Bathrooms = m.Bathrooms
	p.YearBuilt = m.YearBuilt
	p.Images = append([]string(nil), m.Images...)
}
