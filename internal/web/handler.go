package web

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"meteorite-explorer/internal/meteorite"
	"meteorite-explorer/pkg/logger"
)

// DefaultTileURL is the OpenStreetMap tile template used by the detail map.
const DefaultTileURL = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"

// User visible messages.
const (
	msgListFailed           = "Failed to load meteorites."
	msgNoResults            = "No results found."
	msgNotFound             = "Meteorite not found."
	msgTrendsFailed         = "Failed to load trends."
	msgMassFailed           = "Failed to load mass distribution."
	msgClassificationFailed = "Failed to load classification breakdown."
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"mass": func(v *float64) string {
		if v == nil {
			return "N/A"
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	},
	"year": func(v *int) string {
		if v == nil {
			return "Unknown"
		}
		return strconv.Itoa(*v)
	},
	"coord": func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	},
}

// Handler serves the explorer pages.
type Handler struct {
	source   Source
	pageSize int
	tileURL  string
	pages    map[string]*template.Template
	log      *slog.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithPageSize sets the number of rows per list page.
func WithPageSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.pageSize = n
		}
	}
}

// WithTileURL sets the map tile URL template.
func WithTileURL(tileURL string) Option {
	return func(h *Handler) {
		if tileURL != "" {
			h.tileURL = tileURL
		}
	}
}

// New parses the page templates and returns a Handler reading from source.
func New(source Source, opts ...Option) (*Handler, error) {
	h := &Handler{
		source:   source,
		pageSize: 10,
		tileURL:  DefaultTileURL,
		pages:    make(map[string]*template.Template),
		log:      logger.Named("web"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	for _, page := range []string{"list", "detail", "dashboard"} {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, err
		}
		h.pages[page] = tmpl
	}
	return h, nil
}

// Register adds the page routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleList)
	mux.HandleFunc("GET /meteorite/{id}", h.handleDetail)
	mux.HandleFunc("GET /dashboard", h.handleDashboard)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page string, status int, data any) {
	var buf bytes.Buffer
	if err := h.pages[page].Execute(&buf, data); err != nil {
		h.log.ErrorContext(r.Context(), "render page", slog.String("page", page), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// FilterForm holds the list filter inputs as typed.
type FilterForm struct {
	Name     string
	RecClass string
	Year     string
	Fall     string
	MinMass  string
	MaxMass  string
}

// Filter converts the form into a search filter. Empty, zero and malformed
// numeric inputs are left out.
func (f FilterForm) Filter() meteorite.Filter {
	filter := meteorite.Filter{Name: f.Name, RecClass: f.RecClass, Fall: f.Fall}
	if v, err := strconv.Atoi(strings.TrimSpace(f.Year)); err == nil && v != 0 {
		filter.Year = &v
	}
	filter.MinMass = positiveFloat(f.MinMass)
	filter.MaxMass = positiveFloat(f.MaxMass)
	return filter
}

func positiveFloat(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v == 0 {
		return nil
	}
	return &v
}

func (f FilterForm) values() url.Values {
	q := url.Values{}
	for key, value := range map[string]string{
		"name": f.Name, "recclass": f.RecClass, "year": f.Year,
		"fall": f.Fall, "minMass": f.MinMass, "maxMass": f.MaxMass,
	} {
		if strings.TrimSpace(value) != "" {
			q.Set(key, value)
		}
	}
	return q
}

// PageLink is one entry of the pagination control. A zero Number is a gap.
type PageLink struct {
	Number  int
	URL     string
	Current bool
}

type listPage struct {
	Form        FilterForm
	Page        meteorite.Page
	CurrentPage int
	Links       []PageLink
	PrevURL     string
	NextURL     string
	Error       string
	Empty       string
	Suggestions []string
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	form := FilterForm{
		Name:     q.Get("name"),
		RecClass: q.Get("recclass"),
		Year:     q.Get("year"),
		Fall:     q.Get("fall"),
		MinMass:  q.Get("minMass"),
		MaxMass:  q.Get("maxMass"),
	}
	current, err := strconv.Atoi(q.Get("page"))
	if err != nil || current < 1 {
		current = 1
	}
	data := listPage{Form: form, CurrentPage: current}

	filter := form.Filter()
	result, err := h.source.Search(r.Context(), filter, meteorite.PageRequest{Page: current - 1, Size: h.pageSize})
	if err != nil {
		h.log.WarnContext(r.Context(), "list meteorites", slog.Any("error", err))
		data.Error = msgListFailed
		h.render(w, r, "list", http.StatusOK, data)
		return
	}
	data.Page = result
	if len(result.Content) == 0 {
		data.Empty = msgNoResults
		if filter.RecClass != "" {
			data.Suggestions = h.suggest(r.Context(), filter.RecClass)
		}
	}
	if result.TotalPages > 1 {
		data.Links = pageLinks(form.values(), current, result.TotalPages)
		if current > 1 {
			data.PrevURL = pageURL(form.values(), current-1)
		}
		if current < result.TotalPages {
			data.NextURL = pageURL(form.values(), current+1)
		}
	}
	h.render(w, r, "list", http.StatusOK, data)
}

func (h *Handler) suggest(ctx context.Context, recclass string) []string {
	classes, err := h.source.Classification(ctx)
	if err != nil {
		h.log.DebugContext(ctx, "class suggestions unavailable", slog.Any("error", err))
		return nil
	}
	return SuggestClasses(recclass, classes)
}

func pageURL(q url.Values, page int) string {
	q.Set("page", strconv.Itoa(page))
	return "/?" + q.Encode()
}

// pageLinks renders the first and last page plus a window of two pages
// around current, with gaps in between.
func pageLinks(q url.Values, current, total int) []PageLink {
	var links []PageLink
	last := 0
	for n := 1; n <= total; n++ {
		if n != 1 && n != total && (n < current-2 || n > current+2) {
			continue
		}
		if last != 0 && n > last+1 {
			links = append(links, PageLink{})
		}
		links = append(links, PageLink{Number: n, URL: pageURL(q, n), Current: n == current})
		last = n
	}
	return links
}

type detailPage struct {
	Meteorite meteorite.Meteorite
	ShowMap   bool
	TileURL   string
	Error     string
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.render(w, r, "detail", http.StatusNotFound, detailPage{Error: msgNotFound})
		return
	}
	record, err := h.source.Get(r.Context(), id)
	if err != nil {
		status := http.StatusNotFound
		if !meteorite.IsNotFound(err) {
			h.log.WarnContext(r.Context(), "load meteorite", slog.Int64("id", id), slog.Any("error", err))
			status = http.StatusBadGateway
		}
		h.render(w, r, "detail", status, detailPage{Error: msgNotFound})
		return
	}
	h.render(w, r, "detail", http.StatusOK, detailPage{
		Meteorite: record,
		ShowMap:   record.HasLocation(),
		TileURL:   h.tileURL,
	})
}

// Dashboard is the data behind the dashboard page. Each section carries its
// own error message.
type Dashboard struct {
	Trends              []TrendPoint
	TrendsError         string
	Mass                []MassSlice
	MassError           string
	Classification      []ClassBar
	ClassificationError string
}

// LoadDashboard fetches the three statistics concurrently. A failing
// section does not affect the others.
func LoadDashboard(ctx context.Context, source Source) Dashboard {
	var (
		d Dashboard
		g errgroup.Group
	)
	log := logger.FromContext(ctx)
	g.Go(func() error {
		trends, err := source.Trends(ctx)
		if err != nil {
			log.WarnContext(ctx, "load trends", slog.Any("error", err))
			d.TrendsError = msgTrendsFailed
			return nil
		}
		d.Trends = TrendPoints(trends)
		return nil
	})
	g.Go(func() error {
		mass, err := source.MassDistribution(ctx)
		if err != nil {
			log.WarnContext(ctx, "load mass distribution", slog.Any("error", err))
			d.MassError = msgMassFailed
			return nil
		}
		d.Mass = MassSlices(mass)
		return nil
	})
	g.Go(func() error {
		classes, err := source.Classification(ctx)
		if err != nil {
			log.WarnContext(ctx, "load classification", slog.Any("error", err))
			d.ClassificationError = msgClassificationFailed
			return nil
		}
		d.Classification = ClassBars(classes)
		return nil
	})
	_ = g.Wait()
	return d
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "dashboard", http.StatusOK, LoadDashboard(r.Context(), h.source))
}
