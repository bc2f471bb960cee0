package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	xerrors "meteorite-explorer/internal/errors"
	"meteorite-explorer/internal/meteorite"
	"meteorite-explorer/pkg/logger"
)

type errorPayload struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func errorBody(code, message string) errorPayload {
	return errorPayload{Error: errorDetail{Code: code, Message: message}}
}

// fallbackBody is sent verbatim when a response cannot be encoded.
const fallbackBody = `{"error":{"code":"UNKNOWN","message":"unknown error"}}` + "\n"

// writeJSON encodes body before anything is written, so an encoding failure
// still yields a well formed 500.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "encode response", slog.Any("error", err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, fallbackBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

// writeError answers with the status and code carried by err. Server side
// failures are reported with their generic message only. The log level
// follows the severity registered for the code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := xerrors.HTTPStatus(err)
	code := xerrors.CodeOf(err)
	message := xerrors.MessageOf(err)
	if status >= http.StatusInternalServerError {
		message = xerrors.AttributesOf(code).Message
	}
	logger.FromContext(r.Context()).Log(r.Context(), logLevel(xerrors.SeverityOf(err)), "request failed",
		slog.String("code", string(code)), slog.Int("status", status), slog.Any("error", err))

	body := errorBody(string(code), message)
	body.Error.Retryable = xerrors.RetryableError(err)
	writeJSON(w, r, status, body)
}

func logLevel(severity xerrors.Severity) slog.Level {
	switch severity {
	case xerrors.SeverityCritical:
		return slog.LevelError
	case xerrors.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func (s *Server) unavailable(w http.ResponseWriter, r *http.Request) bool {
	if s.explorer != nil {
		return false
	}
	writeError(w, r, xerrors.New(xerrors.CodeUnavailable, "meteorite service not initialized"))
	return true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.unavailable(w, r) {
		return
	}
	q := r.URL.Query()
	page, err := pageParams(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.explorer.List(r.Context(), q.Get("name"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.unavailable(w, r) {
		return
	}
	q := r.URL.Query()
	filter, err := filterParams(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := pageParams(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.explorer.Search(r.Context(), filter, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.unavailable(w, r) {
		return
	}
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, r, invalidParam("id", raw, "an integer"))
		return
	}
	record, err := s.explorer.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, record)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	if s.unavailable(w, r) {
		return
	}
	trends, err := s.explorer.Trends(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, trends)
}

func (s *Server) handleMassDistribution(w http.ResponseWriter, r *http.Request) {
	if s.unavailable(w, r) {
		return
	}
	mass, err := s.explorer.MassDistribution(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, mass)
}

func (s *Server) handleClassification(w http.ResponseWriter, r *http.Request) {
	if s.unavailable(w, r) {
		return
	}
	classes, err := s.explorer.Classification(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, classes)
}

type healthResponse struct {
	Status  string `json:"status"`
	Records int64  `json:"records"`
}

func handleUnknownEndpoint(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, xerrors.Newf(xerrors.CodeNotFound, "no endpoint %s", r.URL.Path))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.unavailable(w, r) {
		return
	}
	count, err := s.explorer.Count(r.Context())
	if err != nil {
		writeError(w, r, xerrors.Wrap(xerrors.CodeUnavailable, err, "store unreachable"))
		return
	}
	writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok", Records: count})
}

var _ Explorer = (*meteorite.Service)(nil)
