// Package service реализует бизнес-логику сервиса заказов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/masatreat/orders-system/internal/model"
	"github.com/masatreat/orders-system/internal/ordernum"
	"github.com/masatreat/orders-system/internal/paystack"
	"github.com/masatreat/orders-system/internal/repository"
)

// orderNumberAttempts ограничивает число перегенераций номера заказа
// при коллизии с уже существующим.
const orderNumberAttempts = 5

// notifyTimeout ограничивает время на рассылку уведомлений об одном событии.
const notifyTimeout = 30 * time.Second

// ErrInvalidQuantity возвращается для позиции заказа с количеством меньше единицы.
var (
	ErrInvalidQuantity = errors.New("invalid product quantity")
	// ErrInvalidStatus возвращается для статуса вне допустимого перечисления.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError описывает первое отсутствующее обязательное поле заказа.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing required field: " + e.Field
}

// TotalMismatchError возвращается при расхождении суммы, заявленной
// клиентом, с суммой, пересчитанной по каталогу. Несёт оба значения,
// чтобы клиент мог исправить запрос.
type TotalMismatchError struct {
	ExpectedNGN int64
	ReceivedNGN int64
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total mismatch: expected %d, received %d", e.ExpectedNGN, e.ReceivedNGN)
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetAdminPhoneNumbers(ctx context.Context) ([]string, error)
	CreateProduct(ctx context.Context, p *model.Product) (int64, error)
	GetProducts(ctx context.Context) ([]model.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)
	CreateOrder(ctx context.Context, o *model.Order) (int64, error)
	GetOrderByID(ctx context.Context, id int64) (*model.Order, error)
	GetOrders(ctx context.Context, status *model.OrderStatus) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, settled bool) (*model.Order, error)
	ApplyTopUp(ctx context.Context, email, reference string, amountKobo int64) (balanceKobo, depositedKobo int64, err error)
}

// PaymentGateway описывает контракт платёжного шлюза.
type PaymentGateway interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.VerifiedPayment, error)
	InitializeTransaction(ctx context.Context, email string, amountKobo int64) (*paystack.InitializedTransaction, error)
}

// SMSSender описывает контракт шлюза SMS-уведомлений.
type SMSSender interface {
	Send(ctx context.Context, to, message string) error
}

// Service содержит бизнес-логику сервиса заказов.
type Service struct {
	repo    Repository
	gateway PaymentGateway
	sms     SMSSender
	logger  *zap.Logger
	now     func() time.Time
}

// NewService создаёт сервис с указанным репозиторием и клиентами внешних шлюзов.
func NewService(repo Repository, gateway PaymentGateway, sms SMSSender, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		sms:     sms,
		logger:  logger,
		now:     time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует новую учётную запись.
func (s *Service) RegisterUser(ctx context.Context, email, password string, u model.User) (int64, error) {
	u.Email = email
	u.PasswordHash = hashPassword(email, password)
	return s.repo.CreateUser(ctx, &u)
}

// AuthenticateUser проверяет email и пароль и возвращает учётную запись.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hashed := hashPassword(email, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// CreateProduct создаёт позицию каталога.
func (s *Service) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	if p.MinOrder < 1 {
		p.MinOrder = 1
	}
	return s.repo.CreateProduct(ctx, p)
}

// GetProducts возвращает каталог.
func (s *Service) GetProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.GetProducts(ctx)
}

// OrderDraft — заказ в том виде, в каком его прислал клиент.
// TotalAmountNGN присутствует только на платёжном пути и используется
// исключительно для сверки с пересчитанной суммой.
type OrderDraft struct {
	Buyer             model.Buyer
	Items             []model.OrderItem
	Delivery          model.Delivery
	PaymentOnDelivery bool
	IsScheduled       bool
	ScheduledDate     string
	ScheduledTime     string
	TotalAmountNGN    *int64
}

func validateDraft(d *OrderDraft) error {
	switch {
	case d.Buyer.FullName == "":
		return &ValidationError{Field: "buyer.fullName"}
	case d.Buyer.PhoneNumber == "":
		return &ValidationError{Field: "buyer.phoneNumber"}
	case d.Buyer.EmailAddress == "":
		return &ValidationError{Field: "buyer.emailAddress"}
	case len(d.Items) == 0:
		return &ValidationError{Field: "items"}
	}

	switch d.Delivery.Type {
	case model.DeliveryTypePickup:
	case model.DeliveryTypeDelivery:
		if d.Delivery.Address == "" {
			return &ValidationError{Field: "delivery.address"}
		}
	default:
		return &ValidationError{Field: "delivery.type"}
	}

	if d.Delivery.FeeNGN < 0 {
		return &ValidationError{Field: "delivery.fee"}
	}

	return nil
}

// resolveItems пересчитывает заказ по актуальным ценам каталога.
// Сумма накапливается в порядке следования позиций во входных данных,
// поэтому результат детерминирован.
func (s *Service) resolveItems(ctx context.Context, items []model.OrderItem) ([]model.OrderItem, int64, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, 0, fmt.Errorf("%w: product %d", ErrInvalidQuantity, item.ProductID)
		}
		ids = append(ids, item.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	resolved := make([]model.OrderItem, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %d", repository.ErrProductNotFound, item.ProductID)
		}

		total += product.PriceNGN * int64(item.Quantity)
		resolved = append(resolved, model.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	return resolved, total, nil
}

// placeOrder выполняет сверку и сохраняет заказ. Каждый шаг — жёсткий
// барьер: при любой ошибке ничего не записывается.
func (s *Service) placeOrder(ctx context.Context, draft *OrderDraft, paymentOnDelivery bool) (*model.Order, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	items, total, err := s.resolveItems(ctx, draft.Items)
	if err != nil {
		return nil, err
	}

	if draft.TotalAmountNGN != nil && total != *draft.TotalAmountNGN {
		return nil, &TotalMismatchError{ExpectedNGN: total, ReceivedNGN: *draft.TotalAmountNGN}
	}

	order := &model.Order{
		Buyer:             draft.Buyer,
		Items:             items,
		TotalPriceNGN:     total,
		Delivery:          draft.Delivery,
		PaymentOnDelivery: paymentOnDelivery,
		PaymentSettled:    !paymentOnDelivery,
		Status:            model.OrderStatusPending,
		IsScheduled:       draft.IsScheduled,
		ScheduledDate:     draft.ScheduledDate,
		ScheduledTime:     draft.ScheduledTime,
	}

	// Номер заказа не проверяется на уникальность до записи: при
	// коллизии срабатывает ограничение в БД и номер генерируется заново.
	backoff := retry.WithMaxRetries(orderNumberAttempts-1, retry.NewConstant(time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		order.Number = ordernum.Generate(s.now())
		if _, err := s.repo.CreateOrder(ctx, order); err != nil {
			if errors.Is(err, repository.ErrDuplicateOrderNumber) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	go s.notifyOrderCreated(order)

	return order, nil
}

// CreateOrder создаёт заказ без предоплаты (прямой путь и оплата при получении).
func (s *Service) CreateOrder(ctx context.Context, draft *OrderDraft) (*model.Order, error) {
	return s.placeOrder(ctx, draft, draft.PaymentOnDelivery)
}

// VerifyAndPlaceOrder подтверждает платёж у шлюза и создаёт оплаченный
// заказ. Сумма, названная шлюзом, справочная: итог всегда пересчитывается
// по каталогу и сверяется с клиентской суммой.
func (s *Service) VerifyAndPlaceOrder(ctx context.Context, reference string, draft *OrderDraft) (*model.Order, error) {
	if _, err := s.gateway.VerifyTransaction(ctx, reference); err != nil {
		return nil, err
	}

	return s.placeOrder(ctx, draft, false)
}

// InitiatePayment создаёт транзакцию оплаты на указанную сумму в найрах.
func (s *Service) InitiatePayment(ctx context.Context, email string, amountNGN int64) (*paystack.InitializedTransaction, error) {
	return s.gateway.InitializeTransaction(ctx, email, amountNGN*100)
}

// VerifyTopUp подтверждает платёж пополнения и зачисляет его на баланс
// учётной записи не более одного раза. Повторная проверка того же
// референса — успех с нулевой суммой зачисления.
func (s *Service) VerifyTopUp(ctx context.Context, reference string) (*model.Balance, error) {
	payment, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}

	balanceKobo, depositedKobo, err := s.repo.ApplyTopUp(ctx, payment.CustomerEmail, payment.Reference, payment.AmountKobo)
	if err != nil {
		return nil, err
	}

	return &model.Balance{
		Balance:         float64(balanceKobo) / 100,
		DepositedAmount: float64(depositedKobo) / 100,
	}, nil
}

// GetOrders возвращает заказы, опционально отфильтрованные по статусу.
func (s *Service) GetOrders(ctx context.Context, status string) ([]model.Order, error) {
	if status == "" {
		return s.repo.GetOrders(ctx, nil)
	}

	if !model.ValidOrderStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	st := model.OrderStatus(status)
	return s.repo.GetOrders(ctx, &st)
}

// GetOrderByID возвращает заказ по идентификатору.
func (s *Service) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	return s.repo.GetOrderByID(ctx, id)
}

// UpdateOrderStatus переводит заказ в указанный статус. Переход в
// completed отмечает оплату полученной, но только для заказов с оплатой
// при получении; уже оплаченные заказы флаг не меняют. На переходах в
// ready, completed и cancelled покупателю уходит SMS с соответствующим
// текстом; исход отправки на результат операции не влияет.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status string) (*model.Order, error) {
	if !model.ValidOrderStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	current, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	settled := current.PaymentSettled
	if model.OrderStatus(status) == model.OrderStatusCompleted && current.PaymentOnDelivery {
		settled = true
	}

	order, err := s.repo.UpdateOrderStatus(ctx, id, model.OrderStatus(status), settled)
	if err != nil {
		return nil, err
	}

	if message := statusMessage(order); message != "" {
		go s.notifyBuyer(order.Buyer.PhoneNumber, message)
	}

	return order, nil
}

func statusMessage(o *model.Order) string {
	switch o.Status {
	case model.OrderStatusReady:
		return fmt.Sprintf(
			"Hello %s,\nYour order #%s from Masa Treat is ready!\n\nIf it's for pickup, kindly stop by to pick it up.\nIf it's for delivery, keep your phone available, it'll be arriving soon.\n\nThanks for choosing us!",
			o.Buyer.FullName, o.Number)
	case model.OrderStatusCompleted:
		deliveryType := "picked up"
		if o.Delivery.Type == model.DeliveryTypeDelivery {
			deliveryType = "delivered"
		}
		return fmt.Sprintf(
			"Hello %s,\nYour order #%s has been successfully completed and marked as %s.\n\nWe hope you enjoy your treats from Masa Treat.\nThanks again and see you soon!",
			o.Buyer.FullName, o.Number, deliveryType)
	case model.OrderStatusCancelled:
		return fmt.Sprintf(
			"Hello %s,\nYour order #%s has unfortunately been cancelled.\n\nIf this was in error or you have questions, feel free to reach out.\nWe'll be happy to help and have you back with us soon!",
			o.Buyer.FullName, o.Number)
	}
	return ""
}

// notifyOrderCreated рассылает уведомления о новом заказе покупателю и
// администраторам. Вызывается уже после фиксации заказа: сбои доставки
// логируются и не влияют на результат создания.
func (s *Service) notifyOrderCreated(order *model.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	buyerMessage := "Your order has been received and will be processed. You will receive a notification when it is ready."
	if err := s.sms.Send(ctx, order.Buyer.PhoneNumber, buyerMessage); err != nil {
		s.logger.Warn("buyer sms failed",
			zap.String("order", order.Number), zap.Error(err))
	}

	admins, err := s.repo.GetAdminPhoneNumbers(ctx)
	if err != nil {
		s.logger.Warn("admin phones lookup failed",
			zap.String("order", order.Number), zap.Error(err))
		return
	}

	adminMessage := fmt.Sprintf("A new order has been placed. Total price: ₦%d.", order.TotalPriceNGN)
	for _, phone := range admins {
		if err := s.sms.Send(ctx, phone, adminMessage); err != nil {
			s.logger.Warn("admin sms failed",
				zap.String("order", order.Number), zap.String("phone", phone), zap.Error(err))
		}
	}
}

func (s *Service) notifyBuyer(phone, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := s.sms.Send(ctx, phone, message); err != nil {
		s.logger.Warn("status sms failed", zap.String("phone", phone), zap.Error(err))
	}
}
