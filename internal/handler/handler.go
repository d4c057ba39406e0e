// Package handler содержит HTTP-обработчики API сервиса заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/masatreat/orders-system/internal/middleware"
	"github.com/masatreat/orders-system/internal/model"
	"github.com/masatreat/orders-system/internal/paystack"
	"github.com/masatreat/orders-system/internal/repository"
	"github.com/masatreat/orders-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, password string, u model.User) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	CreateProduct(ctx context.Context, p *model.Product) (int64, error)
	GetProducts(ctx context.Context) ([]model.Product, error)
	CreateOrder(ctx context.Context, draft *service.OrderDraft) (*model.Order, error)
	VerifyAndPlaceOrder(ctx context.Context, reference string, draft *service.OrderDraft) (*model.Order, error)
	InitiatePayment(ctx context.Context, email string, amountNGN int64) (*paystack.InitializedTransaction, error)
	VerifyTopUp(ctx context.Context, reference string) (*model.Balance, error)
	GetOrders(ctx context.Context, status string) ([]model.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) (*model.Order, error)
}

// Handler реализует HTTP-обработчики API сервиса заказов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	loginLimiter   *middleware.LoginLimiter
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, limiter *middleware.LoginLimiter) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		loginLimiter:   limiter,
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Message: message})
}

// writeOrderError транслирует ошибки заказного пути в HTTP-статусы.
func (h *Handler) writeOrderError(w http.ResponseWriter, err error) {
	var vErr *service.ValidationError
	var mismatch *service.TotalMismatchError

	switch {
	case errors.As(err, &vErr), errors.Is(err, service.ErrInvalidQuantity):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &mismatch):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, service.ErrInvalidStatus):
		h.writeError(w, http.StatusBadRequest, "Invalid order status")
	case errors.Is(err, repository.ErrDuplicateOrderNumber):
		h.writeError(w, http.StatusConflict, "Could not assign a unique order number")
	case errors.Is(err, paystack.ErrVerificationFailed):
		h.writeError(w, http.StatusBadRequest, "Payment was not successful.")
	case errors.Is(err, paystack.ErrNotConfigured):
		h.writeError(w, http.StatusInternalServerError, "Payment gateway is not configured.")
	case errors.Is(err, paystack.ErrUnreachable):
		h.writeError(w, http.StatusInternalServerError, "Payment verification failed.")
	default:
		h.logger.Error("order error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
	}
}

type credentialsRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phoneNumber"`
}

// Register обрабатывает регистрацию новой учётной записи.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	_, err := h.service.RegisterUser(r.Context(), req.Email, req.Password, model.User{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.Phone,
		Roles:       []string{"Employee"},
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			h.writeError(w, http.StatusConflict, "User already exists")
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Login выполняет аутентификацию и выдаёт токен доступа.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.logger.Error("login error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	token, err := h.authMiddleware.IssueToken(user.ID, user.Roles)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

type productResponse struct {
	model.Product
	Status model.ProductStatus `json:"status"`
}

// CreateProduct создаёт позицию каталога.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p model.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if p.Name == "" || p.Category == "" || p.PriceNGN < 0 {
		h.writeError(w, http.StatusBadRequest, "Missing required fields.")
		return
	}

	id, err := h.service.CreateProduct(r.Context(), &p)
	if err != nil {
		if errors.Is(err, repository.ErrProductExists) {
			h.writeError(w, http.StatusConflict, "Product already exists")
			return
		}
		h.logger.Error("create product error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	p.ID = id
	h.writeJSON(w, http.StatusCreated, productResponse{Product: p, Status: p.StockStatus()})
}

// GetProducts возвращает каталог со статусами остатков.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.GetProducts(r.Context())
	if err != nil {
		h.logger.Error("get products error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productResponse{Product: p, Status: p.StockStatus()})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type orderPayload struct {
	Buyer             model.Buyer       `json:"buyer"`
	Items             []model.OrderItem `json:"items"`
	Delivery          model.Delivery    `json:"delivery"`
	PaymentOnDelivery bool              `json:"paymentOnDelivery"`
	IsScheduled       bool              `json:"isScheduled"`
	ScheduledDate     string            `json:"scheduledDate"`
	ScheduledTime     string            `json:"scheduledTime"`
	TotalAmount       *int64            `json:"totalAmount"`
}

func (p *orderPayload) toDraft() *service.OrderDraft {
	return &service.OrderDraft{
		Buyer:             p.Buyer,
		Items:             p.Items,
		Delivery:          p.Delivery,
		PaymentOnDelivery: p.PaymentOnDelivery,
		IsScheduled:       p.IsScheduled,
		ScheduledDate:     p.ScheduledDate,
		ScheduledTime:     p.ScheduledTime,
		TotalAmountNGN:    p.TotalAmount,
	}
}

type orderResponse struct {
	Message string       `json:"message"`
	Order   *model.Order `json:"order"`
}

// CreateOrder размещает заказ без предоплаты.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), payload.toDraft())
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, orderResponse{
		Message: "Order placed successfully",
		Order:   order,
	})
}

type verifyPaymentRequest struct {
	Reference string        `json:"reference"`
	OrderData *orderPayload `json:"orderData"`
}

// VerifyPayment подтверждает платёж у шлюза и размещает оплаченный заказ.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Reference == "" || req.OrderData == nil {
		h.writeError(w, http.StatusBadRequest, "Missing payment reference or order data.")
		return
	}

	if req.OrderData.TotalAmount == nil {
		h.writeError(w, http.StatusBadRequest, "Missing required field: totalAmount")
		return
	}

	order, err := h.service.VerifyAndPlaceOrder(r.Context(), req.Reference, req.OrderData.toDraft())
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse{
		Message: "Payment verified and order placed successfully.",
		Order:   order,
	})
}

type initiatePaymentRequest struct {
	Email  string `json:"email"`
	Amount int64  `json:"amount"`
}

// InitiatePayment создаёт платёжную транзакцию на стороне шлюза.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "Email and amount are required")
		return
	}

	tx, err := h.service.InitiatePayment(r.Context(), req.Email, req.Amount)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tx)
}

type topUpRequest struct {
	Reference string `json:"reference"`
}

// VerifyTopUp подтверждает платёж пополнения и зачисляет его на баланс.
// Повторный референс возвращает depositedAmount, равный нулю.
func (h *Handler) VerifyTopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Reference == "" {
		h.writeError(w, http.StatusBadRequest, "Transaction reference is required.")
		return
	}

	balance, err := h.service.VerifyTopUp(r.Context(), req.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found.")
			return
		}
		h.writeOrderError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, balance)
}

// GetOrders возвращает заказы с опциональным фильтром по статусу.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			h.writeError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
		h.logger.Error("get orders error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	if orders == nil {
		orders = []model.Order{}
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// GetOrderByID возвращает заказ по идентификатору.
func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := h.service.GetOrderByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.Error("get order error", zap.Error(err), zap.Int64("orderID", id))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus переводит заказ в указанный статус.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			h.writeError(w, http.StatusBadRequest, "Invalid order status")
			return
		}
		if errors.Is(err, repository.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.Error("update order status error", zap.Error(err), zap.Int64("orderID", id))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse{
		Message: "Order status updated",
		Order:   order,
	})
}
