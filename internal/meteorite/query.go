package meteorite

import (
	"math"
	"strings"
)

// Filter narrows a search. Zero-valued string fields and nil pointers do not
// constrain the result.
type Filter struct {
	Name     string
	RecClass string
	Fall     string
	Year     *int
	MinMass  *float64
	MaxMass  *float64
}

// Normalized returns a copy with surrounding whitespace removed.
func (f Filter) Normalized() Filter {
	f.Name = strings.TrimSpace(f.Name)
	f.RecClass = strings.TrimSpace(f.RecClass)
	f.Fall = strings.TrimSpace(f.Fall)
	return f
}

// IsZero reports whether the filter matches every record.
func (f Filter) IsZero() bool {
	f = f.Normalized()
	return f.Name == "" && f.RecClass == "" && f.Fall == "" && f.Year == nil && f.MinMass == nil && f.MaxMass == nil
}

// Fold is the case folding applied to every text comparison of a filter.
// Stores that match in the database persist folded copies of the columns.
func Fold(s string) string {
	return strings.ToLower(s)
}

// Matches evaluates the filter against one record.
func (f Filter) Matches(m Meteorite) bool {
	if f.Name != "" && !strings.Contains(Fold(m.Name), Fold(f.Name)) {
		return false
	}
	if f.RecClass != "" && Fold(m.RecClass) != Fold(f.RecClass) {
		return false
	}
	if f.Fall != "" && Fold(m.Fall) != Fold(f.Fall) {
		return false
	}
	if f.Year != nil && (m.Year == nil || *m.Year != *f.Year) {
		return false
	}
	if f.MinMass != nil && (m.Mass == nil || *m.Mass < *f.MinMass) {
		return false
	}
	if f.MaxMass != nil && (m.Mass == nil || *m.Mass > *f.MaxMass) {
		return false
	}
	return true
}

// Sortable record properties, as accepted in sort parameters.
const (
	PropertyID       = "id"
	PropertyName     = "name"
	PropertyRecClass = "recclass"
	PropertyFall     = "fall"
	PropertyMass     = "mass"
	PropertyYear     = "year"
	PropertyRecLat   = "reclat"
	PropertyRecLong  = "reclong"
)

var sortable = map[string]struct{}{
	PropertyID: {}, PropertyName: {}, PropertyRecClass: {}, PropertyFall: {},
	PropertyMass: {}, PropertyYear: {}, PropertyRecLat: {}, PropertyRecLong: {},
}

// SortOrder orders results by one property.
type SortOrder struct {
	Property string
	Desc     bool
}

// ParseSort reads a "property[,asc|desc]" parameter.
func ParseSort(raw string) (SortOrder, error) {
	parts := strings.Split(raw, ",")
	order := SortOrder{Property: strings.ToLower(strings.TrimSpace(parts[0]))}
	if _, ok := sortable[order.Property]; !ok {
		return SortOrder{}, invalidQuery("unknown sort property %q", parts[0])
	}
	if len(parts) > 2 {
		return SortOrder{}, invalidQuery("malformed sort %q", raw)
	}
	if len(parts) == 2 {
		switch strings.ToLower(strings.TrimSpace(parts[1])) {
		case "", "asc":
		case "desc":
			order.Desc = true
		default:
			return SortOrder{}, invalidQuery("unknown sort direction %q", parts[1])
		}
	}
	return order, nil
}

// PageRequest asks for one zero-based page of results.
type PageRequest struct {
	Page int
	Size int
	Sort []SortOrder
}

// PageLimits bounds page sizes.
type PageLimits struct {
	DefaultSize int
	MaxSize     int
}

// DefaultPageLimits matches the defaults of the REST API.
var DefaultPageLimits = PageLimits{DefaultSize: 20, MaxSize: 2000}

// Normalize applies defaults and clamps the request. Unknown sort properties
// are reported as ErrInvalidQuery.
func (p PageRequest) Normalize(limits PageLimits) (PageRequest, error) {
	if limits.DefaultSize <= 0 {
		limits.DefaultSize = DefaultPageLimits.DefaultSize
	}
	if limits.MaxSize < limits.DefaultSize {
		limits.MaxSize = limits.DefaultSize
	}
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = limits.DefaultSize
	}
	if p.Size > limits.MaxSize {
		p.Size = limits.MaxSize
	}
	// Keep Offset()+Size representable.
	if maxPage := math.MaxInt/p.Size - 1; p.Page > maxPage {
		p.Page = maxPage
	}
	for _, s := range p.Sort {
		if _, ok := sortable[s.Property]; !ok {
			return PageRequest{}, invalidQuery("unknown sort property %q", s.Property)
		}
	}
	if len(p.Sort) == 0 {
		p.Sort = []SortOrder{{Property: PropertyID}}
	}
	return p, nil
}

// Offset is the number of records skipped before this page. It saturates
// instead of overflowing for requests that were not normalized.
func (p PageRequest) Offset() int {
	if p.Page <= 0 || p.Size <= 0 {
		return 0
	}
	if p.Page > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Page * p.Size
}

// Page is one slice of a result set plus totals. The JSON shape follows the
// page envelope the explorer UI consumes.
type Page struct {
	Content          []Meteorite `json:"content"`
	TotalPages       int         `json:"totalPages"`
	TotalElements    int64       `json:"totalElements"`
	Size             int         `json:"size"`
	Number           int         `json:"number"`
	NumberOfElements int         `json:"numberOfElements"`
	First            bool        `json:"first"`
	Last             bool        `json:"last"`
	Empty            bool        `json:"empty"`
}

// NewPage assembles a Page from one slice of content and the overall total.
func NewPage(content []Meteorite, req PageRequest, total int64) Page {
	if content == nil {
		content = []Meteorite{}
	}
	totalPages := 0
	if req.Size > 0 {
		totalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page{
		Content:          content,
		TotalPages:       totalPages,
		TotalElements:    total,
		Size:             req.Size,
		Number:           req.Page,
		NumberOfElements: len(content),
		First:            req.Page == 0,
		Last:             req.Page >= totalPages-1,
		Empty:            len(content) == 0,
	}
}
