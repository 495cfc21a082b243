// Package api serves the query engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/metrics"
	"github.com/Aman-CERP/docindex/internal/records"
	"github.com/Aman-CERP/docindex/internal/search"
)

// Error codes in JSON error bodies.
const (
	codeBadRequest     = "bad_request"
	codeNoCriteria     = "no_criteria"
	codeNotImplemented = "not_implemented"
	codeUnavailable    = "unavailable"
	codeInternal       = "internal_error"
)

// Engine is the query side the server exposes. *search.Engine implements it.
type Engine interface {
	SearchByFields(ctx context.Context, f search.Fields) (*search.SearchResult, error)
	SearchByPartialNameAndGender(ctx context.Context, name, gender string) (*search.SearchResult, error)
	SearchByHeightRange(ctx context.Context, minHeight, maxHeight int) (*search.SearchResult, error)
	PurgeAll(ctx context.Context) (int, error)
}

var _ Engine = (*search.Engine)(nil)

// HealthChecker reports whether the index is readable.
type HealthChecker interface {
	DocCount() (uint64, error)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PurgeResponse is the body of a successful purge.
type PurgeResponse struct {
	RecordsDeleted int `json:"records_deleted"`
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	Documents uint64 `json:"documents"`
}

// Server holds the HTTP handlers.
type Server struct {
	engine Engine
	health HealthChecker
}

// NewServer creates a server over engine. health may be nil.
func NewServer(engine Engine, health HealthChecker) *Server {
	return &Server{engine: engine, health: health}
}

// Handler builds the router with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLog)
	r.Use(metrics.Middleware())

	r.Route("/api", func(r chi.Router) {
		r.Get("/search/fields", s.SearchFields)
		r.Get("/search/name", s.SearchName)
		r.Get("/search/height", s.SearchHeight)
		r.Post("/purge", s.Purge)
	})
	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// SearchFields handles GET /api/search/fields.
func (s *Server) SearchFields(w http.ResponseWriter, r *http.Request) {
	f, err := fieldsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	res, err := s.engine.SearchByFields(r.Context(), f)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SearchName handles GET /api/search/name.
func (s *Server) SearchName(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.engine.SearchByPartialNameAndGender(r.Context(), q.Get("name"), q.Get("gender"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SearchHeight handles GET /api/search/height.
func (s *Server) SearchHeight(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minHeight, err := intParam(q.Get("min"), "min")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	maxHeight, err := intParam(q.Get("max"), "max")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	res, err := s.engine.SearchByHeightRange(r.Context(), minHeight, maxHeight)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Purge handles POST /api/purge.
func (s *Server) Purge(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.PurgeAll(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, PurgeResponse{RecordsDeleted: n})
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}
	n, err := s.health.DocCount()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "index unavailable")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Documents: n})
}

func fieldsFromQuery(r *http.Request) (search.Fields, error) {
	q := r.URL.Query()
	f := search.Fields{
		FirstName:    q.Get("first_name"),
		LastName:     q.Get("last_name"),
		EmailAddress: q.Get("email"),
		Gender:       q.Get("gender"),
	}
	if v := q.Get("date_of_birth"); v != "" {
		t, err := time.Parse(records.DateLayout, v)
		if err != nil {
			return f, fmt.Errorf("date_of_birth must be %s", records.DateLayout)
		}
		f.DateOfBirth = &t
	}
	if v := q.Get("years_at_address"); v != "" {
		n, err := intParam(v, "years_at_address")
		if err != nil {
			return f, err
		}
		f.YearsAtAddress = &n
	}
	if v := q.Get("height"); v != "" {
		n, err := intParam(v, "height")
		if err != nil {
			return f, err
		}
		f.HeightInInches = &n
	}
	if v := q.Get("is_married"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("is_married must be true or false")
		}
		f.IsMarried = &b
	}
	return f, nil
}

// intParam parses an integer parameter. An absent value is zero.
func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, search.ErrNoCriteria):
		writeError(w, http.StatusBadRequest, codeNoCriteria, search.ErrNoCriteria.Error())
	case errors.Is(err, search.ErrRangeTooWide):
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, search.ErrPurgeUnavailable):
		writeError(w, http.StatusNotImplemented, codeNotImplemented, search.ErrPurgeUnavailable.Error())
	default:
		attrs := append([]slog.Attr{
			slog.String("path", r.URL.Path),
			slog.String("request_id", chiMiddleware.GetReqID(r.Context())),
		}, docerrors.LogAttrs(err)...)
		slog.LogAttrs(r.Context(), slog.LevelError, "request_failed", attrs...)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
