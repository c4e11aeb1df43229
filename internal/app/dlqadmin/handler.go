package dlqadmin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"bookstore-orders/internal/shared/logger"
)

// Handler exposes the remediation operations over HTTP. Every route sits
// behind the X-Api-Key check.
type Handler struct {
	svc    *Service
	apiKey string
	logger *logger.Logger
}

// NewHandler wires the remediation routes around a Service.
func NewHandler(svc *Service, apiKey string, logger *logger.Logger) *Handler {
	return &Handler{svc: svc, apiKey: apiKey, logger: logger}
}

// Register mounts the DLQ routes on the provided mux.
func (handler *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dlq/list", handler.requireKey(handler.handleList))
	mux.HandleFunc("GET /api/dlq/count", handler.requireKey(handler.handleCount))
	mux.HandleFunc("POST /api/dlq/requeue-all", handler.requireKey(handler.handleRequeueAll))
	mux.HandleFunc("POST /api/dlq/requeue", handler.requireKey(handler.handleRequeueOne))
	mux.HandleFunc("POST /api/dlq/delete", handler.requireKey(handler.handleDeleteOne))
	mux.HandleFunc("POST /api/dlq/purge", handler.requireKey(handler.handlePurge))
}

// requireKey rejects requests whose X-Api-Key header is absent or mismatched
// before any queue is touched.
func (handler *Handler) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Api-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(handler.apiKey)) != 1 {
			handler.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r.WithContext(handler.logger.WithRequestID(r.Context(), uuid.NewString())))
	}
}

// --- Handlers ---

func (handler *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queue, ok := handler.queueParam(w, r)
	if !ok {
		return
	}

	count := 10
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			handler.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "count must be a positive integer"})
			return
		}
		count = n
	}

	msgs, err := handler.svc.List(ctx, queue, count)
	if err != nil {
		handler.brokerError(ctx, w, err)
		return
	}
	if msgs == nil {
		msgs = []DLQMessage{}
	}

	handler.writeJSON(w, http.StatusOK, map[string]any{
		"queue":    queue,
		"count":    len(msgs),
		"messages": msgs,
	})
}

func (handler *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queue, ok := handler.queueParam(w, r)
	if !ok {
		return
	}

	n, err := handler.svc.Count(ctx, queue)
	if err != nil {
		handler.brokerError(ctx, w, err)
		return
	}

	handler.writeJSON(w, http.StatusOK, map[string]any{"queue": queue, "count": n})
}

func (handler *Handler) handleRequeueAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queue, ok := handler.queueParam(w, r)
	if !ok {
		return
	}

	n, err := handler.svc.RequeueAll(ctx, queue)
	if err != nil {
		handler.brokerError(ctx, w, err)
		return
	}

	handler.writeJSON(w, http.StatusOK, map[string]any{"success": true, "requeued": n})
}

func (handler *Handler) handleRequeueOne(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queue, ok := handler.queueParam(w, r)
	if !ok {
		return
	}
	index, ok := handler.indexParam(w, r)
	if !ok {
		return
	}

	if err := handler.svc.RequeueOne(ctx, queue, index); err != nil {
		handler.brokerError(ctx, w, err)
		return
	}

	handler.writeJSON(w, http.StatusOK, map[string]any{"success": true, "requeued": 1})
}

func (handler *Handler) handleDeleteOne(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queue, ok := handler.queueParam(w, r)
	if !ok {
		return
	}
	index, ok := handler.indexParam(w, r)
	if !ok {
		return
	}

	if err := handler.svc.DeleteOne(ctx, queue, index); err != nil {
		handler.brokerError(ctx, w, err)
		return
	}

	handler.writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": 1})
}

func (handler *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queue, ok := handler.queueParam(w, r)
	if !ok {
		return
	}

	n, err := handler.svc.Purge(ctx, queue)
	if err != nil {
		handler.brokerError(ctx, w, err)
		return
	}

	handler.writeJSON(w, http.StatusOK, map[string]any{"success": true, "purged": n})
}

// --- Helpers ---

func (handler *Handler) queueParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	queue := r.URL.Query().Get("queue")
	if queue == "" {
		handler.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "queue parameter is required"})
		return "", false
	}
	return queue, true
}

func (handler *Handler) indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		handler.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "index must be a non-negative integer"})
		return 0, false
	}
	return index, true
}

// brokerError returns 500 with the raw error text: administrative callers get
// explicit failure detail.
func (handler *Handler) brokerError(ctx context.Context, w http.ResponseWriter, err error) {
	handler.logger.Error(ctx, "dlq_operation_failed", "DLQ operation failed", err)
	handler.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (handler *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
