package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"receipts-service/internal/application"
	"receipts-service/internal/idempotency"
	"receipts-service/internal/infrastructure/logx"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.uber.org/zap"
)

const (
	idempotencyHeader       = "Idempotency-Key"
	legacyIdempotencyHeader = "X-Idempotency-Key"
)

type Server struct {
	svc  *application.ReceiptService
	ping func(ctx context.Context) error
}

func NewServer(svc *application.ReceiptService) *Server { return &Server{svc: svc} }

// SetReadyCheck installs the dependency probe used by /readyz.
func (s *Server) SetReadyCheck(ping func(ctx context.Context) error) { s.ping = ping }

func (s *Server) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var body application.CreateReceiptInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec, err := s.svc.CreateReceipt(r.Context(), body, idempotencyKey(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/receipts/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) GetReceipt(w http.ResponseWriter, r *http.Request) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		notFound(w)
		return
	}
	rec, err := s.svc.GetReceipt(r.Context(), id.String())
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			notFound(w)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func idempotencyKey(r *http.Request) *string {
	for _, h := range []string{idempotencyHeader, legacyIdempotencyHeader} {
		if v := r.Header.Get(h); strings.TrimSpace(v) != "" {
			return &v
		}
	}
	return nil
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, application.ErrBadRequest):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), application.ErrBadRequest.Error()+": "))
	case errors.Is(err, idempotency.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, "invalid idempotency key")
	case errors.Is(err, idempotency.ErrCoordinationTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "request with this idempotency key is still in progress")
	default:
		logx.WithFields(r.Context()).Error("http.internal_error", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
}
