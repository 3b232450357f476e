/*
handlers.go - HTTP API handlers for the tuition engine

PURPOSE:
  Exposes tuition queries, payments, admin bookkeeping and the chat
  assistant over REST. Handles HTTP request/response, JSON serialization,
  and delegates to the tuition, intent and admission packages.

ENDPOINTS:
  Mobile:
    GET    /api/v1/tuition/{studentNo}           Tuition status (daily quota)

  Banking:
    GET    /api/v1/banking/tuition/{studentNo}   Tuition status
    POST   /api/v1/payment                       Pay tuition

  Admin:
    POST   /api/v1/admin/students                Create student
    POST   /api/v1/admin/tuition                 Add tuition for a term
    GET    /api/v1/admin/unpaid                  Unpaid tuitions of a term
    GET    /api/v1/admin/payments                Payment ledger of a student

  Assistant:
    POST   /api/v1/ai/chat                       Classify and answer
    POST   /api/v1/ai/debug                      Classification only
    GET    /api/v1/ai/cache/stats                Cache statistics
    DELETE /api/v1/ai/cache                      Clear cache

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Student or tuition record not found
  - 409: Conflict (nothing outstanding, duplicate student)
  - 429: Daily quota exhausted
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - chat.go: Assistant reply rendering
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/admission"
	"github.com/warp/tuition-engine/intent"
	"github.com/warp/tuition-engine/metrics"
	"github.com/warp/tuition-engine/tuition"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Classifier is the part of intent.Cache the handlers use.
type Classifier interface {
	Classify(ctx context.Context, text string) intent.Result
	Stats() intent.CacheStats
	Clear()
}

var _ Classifier = (*intent.Cache)(nil)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service    *tuition.Service
	Classifier Classifier
	Limiter    admission.Limiter
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// Health reports backing store reachability for /healthz. Optional.
	Health func(ctx context.Context) error

	validate *validator.Validate
}

// NewHandler creates a handler. Logger, Metrics and Health may be left nil.
func NewHandler(svc *tuition.Service, classifier Classifier, limiter admission.Limiter) *Handler {
	return &Handler{
		Service:    svc,
		Classifier: classifier,
		Limiter:    limiter,
		Logger:     zap.NewNop(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// TUITION QUERIES
// =============================================================================

// GetTuitionLimited returns a student's tuition status, subject to the
// daily quota.
// GET /api/v1/tuition/{studentNo}
func (h *Handler) GetTuitionLimited(w http.ResponseWriter, r *http.Request) {
	studentNo := chi.URLParam(r, "studentNo")
	if !h.Limiter.Allow(r.Context(), studentNo) {
		writeError(w, http.StatusTooManyRequests, "Daily query limit reached for this student", nil)
		return
	}
	h.writeTuitionStatus(w, r, studentNo)
}

// GetTuition returns a student's tuition status.
// GET /api/v1/banking/tuition/{studentNo}
func (h *Handler) GetTuition(w http.ResponseWriter, r *http.Request) {
	h.writeTuitionStatus(w, r, chi.URLParam(r, "studentNo"))
}

func (h *Handler) writeTuitionStatus(w http.ResponseWriter, r *http.Request, studentNo string) {
	if strings.TrimSpace(studentNo) == "" {
		writeError(w, http.StatusBadRequest, "studentNo is required", nil)
		return
	}
	status, err := h.Service.QueryTuition(r.Context(), tuition.SubjectID(studentNo))
	if err != nil {
		h.writeDomainError(w, "Failed to query tuition", err)
		return
	}
	writeJSON(w, http.StatusOK, toTuitionStatusDTO(status))
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PayTuition allocates a payment across the student's records for the term.
// POST /api/v1/payment
func (h *Handler) PayTuition(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.Service.Pay(r.Context(), tuition.SubjectID(req.StudentNo), tuition.Term(req.Term), req.Amount)
	if err != nil {
		h.writeDomainError(w, "Payment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(res))
}

// ListPayments returns the ledger entries of a student.
// GET /api/v1/admin/payments?studentNo=&term=
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	studentNo := strings.TrimSpace(r.URL.Query().Get("studentNo"))
	if studentNo == "" {
		writeError(w, http.StatusBadRequest, "studentNo is required", nil)
		return
	}
	entries, err := h.Service.PaymentHistory(r.Context(), tuition.SubjectID(studentNo), tuition.Term(r.URL.Query().Get("term")))
	if err != nil {
		h.writeDomainError(w, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentEntryDTOs(entries))
}

// =============================================================================
// ADMIN
// =============================================================================

// CreateSubject registers a student.
// POST /api/v1/admin/students
func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req CreateSubjectRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	subj, err := h.Service.CreateSubject(r.Context(), tuition.SubjectID(req.StudentNo), req.Name)
	if err != nil {
		h.writeDomainError(w, "Failed to create student", err)
		return
	}
	writeJSON(w, http.StatusCreated, SubjectDTO{
		StudentNo: string(subj.ID),
		Name:      subj.Name,
		CreatedAt: subj.CreatedAt,
	})
}

// AddTuition charges a student for a term.
// POST /api/v1/admin/tuition
func (h *Handler) AddTuition(w http.ResponseWriter, r *http.Request) {
	var req AddTuitionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rec, err := h.Service.AddTuition(r.Context(), tuition.SubjectID(req.StudentNo), tuition.Term(req.Term), req.Amount)
	if err != nil {
		h.writeDomainError(w, "Failed to add tuition", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceRecordDTO(rec))
}

// ListUnpaid returns one page of unpaid tuition records for a term.
// GET /api/v1/admin/unpaid?term=&page=&size=
func (h *Handler) ListUnpaid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page", err)
		return
	}
	size, err := intParam(q.Get("size"), tuition.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid size", err)
		return
	}

	result, err := h.Service.UnpaidTuitions(r.Context(), tuition.Term(q.Get("term")), page, size)
	if err != nil {
		h.writeDomainError(w, "Failed to list unpaid tuition", err)
		return
	}

	dto := UnpaidPageDTO{
		Records: make([]BalanceRecordDTO, len(result.Records)),
		Total:   result.Total,
		Page:    result.Page,
		Size:    result.Size,
	}
	for i, rec := range result.Records {
		dto.Records[i] = toBalanceRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ASSISTANT
// =============================================================================

// Chat classifies a message and answers it in plain text.
// POST /api/v1/ai/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	res := h.Classifier.Classify(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:  h.answer(r.Context(), res),
		Intent: res,
	})
}

// DebugIntent returns the classification without acting on it.
// POST /api/v1/ai/debug
func (h *Handler) DebugIntent(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.Classifier.Classify(r.Context(), req.Message))
}

// CacheStats returns intent cache statistics.
// GET /api/v1/ai/cache/stats
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Classifier.Stats())
}

// ClearCache drops every cached classification.
// DELETE /api/v1/ai/cache
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.Classifier.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// =============================================================================
// HEALTH
// =============================================================================

// Healthz reports whether the store is reachable.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeAndValidate writes a 400 and returns false when the body is not
// valid JSON or fails struct validation.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

// writeDomainError maps tuition error categories to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case tuition.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case tuition.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case tuition.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, errors.New("internal error"))
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
