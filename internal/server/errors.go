package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/KaramelBytes/crmlens/internal/anomaly"
	"github.com/KaramelBytes/crmlens/internal/estimate"
	"github.com/KaramelBytes/crmlens/internal/ingest"
	"github.com/KaramelBytes/crmlens/internal/normalize"
)

// Problem is an RFC 7807 style error body.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Problem types.
const (
	TypeInvalidInput     = "/errors/invalid-input"
	TypeUnprocessable    = "/errors/unprocessable"
	TypePayloadTooLarge  = "/errors/payload-too-large"
	TypeMissingUpload    = "/errors/missing-upload"
	TypeInternal         = "/errors/internal"
	TypeRequestCancelled = "/errors/cancelled"
)

var errNoUpload = errors.New("no file uploaded")

// classify maps a pipeline or upload error onto a status code and problem type.
func classify(err error) (int, string) {
	var (
		pe  *ingest.ParseError
		se  *normalize.SchemaError
		ie  *anomaly.InsufficientDataError
		ue  *anomaly.UnscorableError
		ee  *estimate.EmptyTableError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, TypePayloadTooLarge
	case errors.Is(err, errNoUpload):
		return http.StatusBadRequest, TypeMissingUpload
	case errors.As(err, &pe), errors.As(err, &se):
		return http.StatusBadRequest, TypeInvalidInput
	case errors.As(err, &ie), errors.As(err, &ue), errors.As(err, &ee):
		return http.StatusUnprocessableEntity, TypeUnprocessable
	default:
		return http.StatusInternalServerError, TypeInternal
	}
}

func (s *Server) problem(r *http.Request, err error) *Problem {
	status, typ := classify(err)
	p := &Problem{
		Type:      typ,
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	}
	if status >= 500 {
		s.log.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path, "request_id", p.RequestID)
		p.Detail = "internal error"
	} else {
		s.log.WarnContext(r.Context(), "request rejected", "error", err, "status", status, "path", r.URL.Path, "request_id", p.RequestID)
	}
	return p
}

func (s *Server) writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	p := s.problem(r, err)
	render.Status(r, p.Status)
	render.JSON(w, r, p)
}
