package orderservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bookstore-orders/internal/domain/orders"
	"bookstore-orders/internal/ports"
	"bookstore-orders/internal/shared/logger"
)

// OrderHTTPHandler adapts HTTP requests to the OrderService.
type OrderHTTPHandler struct {
	svc    ports.OrderService
	logger *logger.Logger
}

// NewOrderHTTPHandler wires an HTTP handler around the OrderService.
func NewOrderHTTPHandler(svc ports.OrderService, logger *logger.Logger) *OrderHTTPHandler {
	return &OrderHTTPHandler{svc: svc, logger: logger}
}

// Register mounts the order routes on the provided mux.
func (handler *OrderHTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", handler.handleCreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", handler.handleGetOrder)
}

// --- Request/Response DTOs (HTTP boundary) ---

type createOrderRequest struct {
	CustomerEmail string                   `json:"customer_email"`
	Items         []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

type orderItemResponse struct {
	BookID    int64   `json:"book_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	CustomerEmail string              `json:"customer_email"`
	Items         []orderItemResponse `json:"items"`
	TotalAmount   float64             `json:"total_amount"`
	Status        string              `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
}

// --- Handlers ---

func (handler *OrderHTTPHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", errors.New("unsupported content type: "+ct))
		return
	}

	// decode strictly
	var req createOrderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	cmd := ports.CreateOrderCommand{CustomerEmail: req.CustomerEmail}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, ports.ItemInput{BookID: it.BookID, Quantity: it.Quantity})
	}

	handler.logger.Debug(ctx, "order_received", "new order request received", map[string]any{
		"customer_email": cmd.CustomerEmail,
		"items_count":    len(cmd.Items),
	})

	// bound request time
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	placed, err := handler.svc.PlaceOrder(ctxWithTimeout, cmd)
	if err != nil {
		// Distinguish DB failures from validation errors.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			handler.httpError(ctxWithTimeout, w, http.StatusInternalServerError, "database error", err)
			return
		}
		handler.httpError(ctxWithTimeout, w, http.StatusBadRequest, err.Error(), err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, toOrderResponse(placed))
}

func (handler *OrderHTTPHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		handler.httpError(ctx, w, http.StatusBadRequest, "id must be a positive integer", err)
		return
	}

	order, err := handler.svc.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			handler.httpError(ctx, w, http.StatusNotFound, "not found", err)
			return
		}
		handler.httpError(ctx, w, http.StatusInternalServerError, "internal server error", err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, toOrderResponse(order))
}

// --- Helpers ---

func toOrderResponse(order *orders.Order) orderResponse {
	resp := orderResponse{
		ID:            order.ID,
		CustomerEmail: order.CustomerEmail,
		TotalAmount:   order.TotalAmount.ToFloat2(),
		Status:        string(order.Status),
		CreatedAt:     order.CreatedAt,
	}
	for _, it := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			BookID:    it.BookID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.ToFloat2(),
		})
	}
	return resp
}

// httpError sends a JSON error response with a message.
func (handler *OrderHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	if err == nil {
		err = errors.New(msg)
	}
	handler.logger.Error(ctx, action, msg, err)

	handler.jsonResponse(ctx, w, status, map[string]string{"error": msg})
}

// jsonResponse encodes data to the HTTP response.
func (handler *OrderHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		handler.logger.Error(ctx, "response_encode_failed", "failed to encode response", err)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *OrderHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}
