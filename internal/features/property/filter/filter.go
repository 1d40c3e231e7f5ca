package filter

import (
	"net/url"
	"strconv"
	"strings"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/features/property/models"
)

// Filter narrows the listing view. Zero fields do not filter.
type Filter struct {
	MinPrice    *int64
	MaxPrice    *int64
	MinBedrooms *int
	Location    string
	Status      models.Status
}

func (f Filter) IsEmpty() bool {
	return f.MinPrice == nil && f.MaxPrice == nil && f.MinBedrooms == nil &&
		strings.TrimSpace(f.Location) == "" && f.Status == ""
}

// Apply keeps the records matching search and every set field of f,
// preserving input order. items is not modified.
func Apply(items []models.Property, search string, f Filter) []models.Property {
	search = strings.ToLower(strings.TrimSpace(search))
	location := strings.ToLower(strings.TrimSpace(f.Location))

	out := make([]models.Property, 0, len(items))
	for _, p := range items {
		if search != "" && !matchesText(p, search) {
			continue
		}
		if (f.MinPrice != nil || f.MaxPrice != nil) && !p.HasPrice() {
			continue
		}
		if f.MinPrice != nil && p.PriceValue() < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && p.PriceValue() > *f.MaxPrice {
			continue
		}
		if f.MinBedrooms != nil && p.Bedrooms < *f.MinBedrooms {
			continue
		}
		if location != "" && !strings.Contains(strings.ToLower(p.Location), location) {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesText(p models.Property, needle string) bool {
	return strings.Contains(strings.ToLower(p.Title), needle) ||
		strings.Contains(strings.ToLower(p.Location), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle)
}

// Query is the search text plus filter as carried in a listing URL.
type Query struct {
	Search string
	Filter Filter
}

func (q Query) IsEmpty() bool {
	return strings.TrimSpace(q.Search) == "" && q.Filter.IsEmpty()
}

// ParseQuery reads q, min_price, max_price, min_bedrooms, location and status.
// Invalid fields are left unset and the first problem is returned.
func ParseQuery(v url.Values) (Query, error) {
	q := Query{
		Search: strings.TrimSpace(v.Get("q")),
		Filter: Filter{Location: strings.TrimSpace(v.Get("location"))},
	}

	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if raw := strings.TrimSpace(v.Get("min_price")); raw != "" {
		if n, err := parseAmount(raw); err != nil {
			keep(apperrors.NewValidationError("min price", "must be a non-negative whole number"))
		} else {
			q.Filter.MinPrice = &n
		}
	}
	if raw := strings.TrimSpace(v.Get("max_price")); raw != "" {
		if n, err := parseAmount(raw); err != nil {
			keep(apperrors.NewValidationError("max price", "must be a non-negative whole number"))
		} else {
			q.Filter.MaxPrice = &n
		}
	}
	if raw := strings.TrimSpace(v.Get("min_bedrooms")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			keep(apperrors.NewValidationError("bedrooms", "must be a non-negative whole number"))
		} else {
			q.Filter.MinBedrooms = &n
		}
	}
	if raw := strings.TrimSpace(v.Get("status")); raw != "" {
		if s, ok := models.ParseStatus(raw); ok {
			q.Filter.Status = s
		} else {
			keep(apperrors.NewValidationError("status", "unknown status"))
		}
	}

	return q, firstErr
}

func parseAmount(raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

// Values renders q back into URL parameters, omitting unset fields.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("q", q.Search)
	}
	if q.Filter.MinPrice != nil {
		v.Set("min_price", strconv.FormatInt(*q.Filter.MinPrice, 10))
	}
	if q.Filter.MaxPrice != nil {
		v.Set("max_price", strconv.FormatInt(*q.Filter.MaxPrice, 10))
	}
	if q.Filter.MinBedrooms != nil {
		v.Set("min_bedrooms", strconv.Itoa(*q.Filter.MinBedrooms))
	}
	if q.Filter.Location != "" {
		v.Set("location", q.Filter.Location)
	}
	if q.Filter.Status != "" {
		v.Set("status", string(q.Filter.Status))
	}
	return v
}
