package meteorite

import (
	stdErrors "errors"
	"net/http"

	xerrors "meteorite-explorer/internal/errors"
)

// Meteorite is one landing record of the dataset. Mass is in grams. Numeric
// fields are nil when the source left them blank.
type Meteorite struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	RecClass string   `json:"recclass"`
	Fall     string   `json:"fall"`
	Mass     *float64 `json:"mass"`
	Year     *int     `json:"year"`
	RecLat   *float64 `json:"reclat"`
	RecLong  *float64 `json:"reclong"`
}

// HasLocation reports whether the record carries usable coordinates. A 0/0
// pair is how the dataset marks an unknown position, so either component
// being zero counts as missing.
func (m Meteorite) HasLocation() bool {
	return m.RecLat != nil && m.RecLong != nil && *m.RecLat != 0 && *m.RecLong != 0
}

const (
	CodeMeteoriteNotFound xerrors.Code = "METEORITE_NOT_FOUND"
	CodeInvalidQuery      xerrors.Code = "METEORITE_INVALID_QUERY"
	CodeStoreFailure      xerrors.Code = "METEORITE_STORE_FAILURE"
	CodeImportFailure     xerrors.Code = "METEORITE_IMPORT_FAILURE"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = xerrors.New(CodeMeteoriteNotFound, "meteorite not found")
	// ErrInvalidQuery matches every rejected filter, paging or sort input.
	ErrInvalidQuery = xerrors.New(CodeInvalidQuery, "invalid meteorite query")
)

func init() {
	xerrors.Register(CodeMeteoriteNotFound, xerrors.Attributes{
		Message:    "meteorite not found",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusNotFound,
	})
	xerrors.Register(CodeInvalidQuery, xerrors.Attributes{
		Message:    "invalid meteorite query",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeStoreFailure, xerrors.Attributes{
		Message:    "meteorite store failure",
		Severity:   xerrors.SeverityCritical,
		Retryable:  true,
		HTTPStatus: http.StatusInternalServerError,
	})
	xerrors.Register(CodeImportFailure, xerrors.Attributes{
		Message:    "meteorite import failed",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusInternalServerError,
	})
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return stdErrors.Is(err, ErrNotFound)
}

// IsInvalidQuery reports whether err rejects caller input.
func IsInvalidQuery(err error) bool {
	return stdErrors.Is(err, ErrInvalidQuery)
}

func invalidQuery(format string, args ...any) error {
	return xerrors.Newf(CodeInvalidQuery, format, args...)
}
