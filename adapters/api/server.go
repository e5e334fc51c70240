// Package api exposes the validation pipeline and the run ledger over HTTP.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hoopval/adapters/report"
	"hoopval/domain/core"
	"hoopval/domain/verdict"
	"hoopval/internal"
	apperrors "hoopval/internal/errors"
	"hoopval/internal/validation"
	"hoopval/ports"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Options wires a Server
type Options struct {
	Pipeline *validation.Pipeline
	// RNG rebuilds the pipeline when a request overrides the seed
	RNG          ports.RNGPort
	Ledger       ports.LedgerPort
	Logger       *internal.Logger
	MaxBodyBytes int64
}

// Server handles validation requests
type Server struct {
	pipeline *validation.Pipeline
	rng      ports.RNGPort
	ledger   ports.LedgerPort
	logger   *internal.Logger
	maxBody  int64
}

// NewServer creates a new API server
func NewServer(opts Options) (*Server, error) {
	if opts.Pipeline == nil || opts.Ledger == nil || opts.RNG == nil {
		return nil, apperrors.ConfigInvalid("api server needs a pipeline, an RNG port and a ledger")
	}
	logger := opts.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 32 << 20
	}
	return &Server{
		pipeline: opts.Pipeline,
		rng:      opts.RNG,
		ledger:   opts.Ledger,
		logger:   logger.WithField("component", "api"),
		maxBody:  maxBody,
	}, nil
}

// Routes builds the HTTP handler
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/validations", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{runID}", s.handleGet)
	})
	return r
}

// ValidationRequest is the body of POST /v1/validations
type ValidationRequest struct {
	Inputs []validation.MetricInput `json:"inputs"`
	// Seed overrides the configured base seed for this run
	Seed *int64 `json:"seed,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	format, err := parseFormat(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req ValidationRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, apperrors.InvalidInput(fmt.Sprintf("request body exceeds %d bytes", s.maxBody)))
			return
		}
		s.writeError(w, r, apperrors.InvalidInput("invalid JSON body: "+err.Error()))
		return
	}

	pipeline, err := s.pipelineFor(req.Seed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := pipeline.Run(r.Context(), req.Inputs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.SaveRun(r.Context(), run); err != nil {
		s.writeError(w, r, apperrors.Wrap(err, "store run"))
		return
	}

	w.Header().Set("Location", "/v1/validations/"+run.ID.String())
	s.writeRun(w, r, run, format, http.StatusCreated)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	format, err := parseFormat(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runID, err := core.ParseRunID(chi.URLParam(r, "runID"))
	if err != nil {
		s.writeError(w, r, apperrors.InvalidInput(err.Error()))
		return
	}

	run, err := s.ledger.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeRun(w, r, *run, format, http.StatusOK)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			s.writeError(w, r, apperrors.InvalidInput(fmt.Sprintf("limit must be between 1 and %d", maxListLimit)))
			return
		}
		limit = n
	}

	runs, err := s.ledger.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"runs": runs})
}

// pipelineFor returns the shared pipeline, or one rebuilt with seed
func (s *Server) pipelineFor(seed *int64) (*validation.Pipeline, error) {
	cfg := s.pipeline.Config()
	if seed == nil || *seed == cfg.Seed {
		return s.pipeline, nil
	}
	cfg.Seed = *seed
	return validation.NewPipeline(cfg, s.rng, s.logger)
}

func (s *Server) writeRun(w http.ResponseWriter, r *http.Request, run verdict.Run, format report.Format, status int) {
	if format == report.FormatJSON {
		render.Status(r, status)
		render.JSON(w, r, run)
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, run, format); err != nil {
		s.writeError(w, r, err)
		return
	}
	contentType := "text/markdown; charset=utf-8"
	if format == report.FormatHTML {
		contentType = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	reqID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		s.logger.WithField("request_id", reqID).Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	} else {
		s.logger.WithField("request_id", reqID).Debug("%s %s rejected: %v", r.Method, r.URL.Path, err)
	}

	render.Status(r, status)
	render.JSON(w, r, errorResponse{
		Error:     errorBody{Code: apperrors.GetCode(err), Message: err.Error()},
		RequestID: reqID,
	})
}

// parseFormat reads ?format=, defaulting to JSON
func parseFormat(r *http.Request) (report.Format, error) {
	switch f := report.Format(r.URL.Query().Get("format")); f {
	case "", report.FormatJSON:
		return report.FormatJSON, nil
	case report.FormatMarkdown, report.FormatHTML:
		return f, nil
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown format %q", f))
	}
}
