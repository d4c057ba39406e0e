package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/masatreat/orders-system/internal/model"
	"github.com/masatreat/orders-system/internal/ordernum"
	"github.com/masatreat/orders-system/internal/paystack"
	"github.com/masatreat/orders-system/internal/repository"
)

type stubRepo struct {
	mu sync.Mutex

	products map[int64]model.Product

	createdOrders   []model.Order
	createOrderErrs []error

	updatedOrder    *model.Order
	updateOrderErr  error
	updatedStatuses []model.OrderStatus
	updatedSettled  []bool

	adminPhones []string

	topUpBalance   int64
	topUpDeposited int64
	topUpErr       error
	topUpCalls     []string
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, repository.ErrUserNotFound
}

func (s *stubRepo) GetAdminPhoneNumbers(ctx context.Context) ([]string, error) {
	return s.adminPhones, nil
}

func (s *stubRepo) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetProducts(ctx context.Context) ([]model.Product, error) {
	return nil, nil
}

func (s *stubRepo) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	res := make(map[int64]model.Product)
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			res[id] = p
		}
	}
	return res, nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, o *model.Order) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.createOrderErrs) > 0 {
		err := s.createOrderErrs[0]
		s.createOrderErrs = s.createOrderErrs[1:]
		if err != nil {
			return 0, err
		}
	}

	o.ID = int64(len(s.createdOrders) + 1)
	s.createdOrders = append(s.createdOrders, *o)
	return o.ID, nil
}

func (s *stubRepo) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	if s.updatedOrder == nil {
		return nil, repository.ErrOrderNotFound
	}
	o := *s.updatedOrder
	return &o, nil
}

func (s *stubRepo) GetOrders(ctx context.Context, status *model.OrderStatus) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdOrders, nil
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, settled bool) (*model.Order, error) {
	s.updatedStatuses = append(s.updatedStatuses, status)
	s.updatedSettled = append(s.updatedSettled, settled)
	if s.updateOrderErr != nil {
		return nil, s.updateOrderErr
	}
	o := *s.updatedOrder
	o.Status = status
	o.PaymentSettled = settled
	s.updatedOrder = &o
	return &o, nil
}

func (s *stubRepo) ApplyTopUp(ctx context.Context, email, reference string, amountKobo int64) (int64, int64, error) {
	s.topUpCalls = append(s.topUpCalls, reference)
	return s.topUpBalance, s.topUpDeposited, s.topUpErr
}

type stubGateway struct {
	payment *paystack.VerifiedPayment
	err     error
}

func (g *stubGateway) VerifyTransaction(ctx context.Context, reference string) (*paystack.VerifiedPayment, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.payment, nil
}

func (g *stubGateway) InitializeTransaction(ctx context.Context, email string, amountKobo int64) (*paystack.InitializedTransaction, error) {
	return &paystack.InitializedTransaction{Reference: "ref-new"}, nil
}

type stubSender struct {
	mu   sync.Mutex
	sent []string
	errs map[string]error
	done chan struct{}
}

func (s *stubSender) Send(ctx context.Context, to, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to)
	if s.done != nil {
		select {
		case s.done <- struct{}{}:
		default:
		}
	}
	if err, ok := s.errs[to]; ok {
		return err
	}
	return nil
}

func catalogRepo() *stubRepo {
	return &stubRepo{
		products: map[int64]model.Product{
			1: {ID: 1, Name: "Masa", PriceNGN: 500, Stock: 10},
			2: {ID: 2, Name: "Suya", PriceNGN: 1500, Stock: 3},
		},
	}
}

func newTestService(repo *stubRepo, gateway *stubGateway, sender *stubSender) *Service {
	if sender == nil {
		sender = &stubSender{}
	}
	return NewService(repo, gateway, sender, zap.NewNop())
}

func validDraft() *OrderDraft {
	return &OrderDraft{
		Buyer: model.Buyer{
			FullName:     "Amina Bello",
			PhoneNumber:  "08012345678",
			EmailAddress: "amina@example.com",
		},
		Items: []model.OrderItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
		Delivery: model.Delivery{Type: model.DeliveryTypePickup},
	}
}

func TestResolveItems_TotalIndependentOfOrder(t *testing.T) {
	svc := newTestService(catalogRepo(), nil, nil)

	items := []model.OrderItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}
	reversed := []model.OrderItem{{ProductID: 2, Quantity: 1}, {ProductID: 1, Quantity: 2}}

	_, total, err := svc.resolveItems(context.Background(), items)
	if err != nil {
		t.Fatalf("resolveItems error: %v", err)
	}
	_, totalReversed, err := svc.resolveItems(context.Background(), reversed)
	if err != nil {
		t.Fatalf("resolveItems error: %v", err)
	}

	if total != 2500 || totalReversed != 2500 {
		t.Fatalf("totals = %d / %d, want 2500", total, totalReversed)
	}
}

func TestResolveItems_InvalidQuantity(t *testing.T) {
	svc := newTestService(catalogRepo(), nil, nil)

	_, _, err := svc.resolveItems(context.Background(), []model.OrderItem{{ProductID: 1, Quantity: 0}})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	repo := catalogRepo()
	svc := newTestService(repo, nil, nil)

	draft := validDraft()
	draft.Items = append(draft.Items, model.OrderItem{ProductID: 99, Quantity: 1})

	_, err := svc.CreateOrder(context.Background(), draft)
	if !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if len(repo.createdOrders) != 0 {
		t.Fatalf("no order must be persisted, got %d", len(repo.createdOrders))
	}
}

func TestCreateOrder_ValidationFirstMissingField(t *testing.T) {
	svc := newTestService(catalogRepo(), nil, nil)

	tests := []struct {
		name   string
		mutate func(*OrderDraft)
		field  string
	}{
		{"no full name", func(d *OrderDraft) { d.Buyer.FullName = "" }, "buyer.fullName"},
		{"no phone", func(d *OrderDraft) { d.Buyer.PhoneNumber = "" }, "buyer.phoneNumber"},
		{"no email", func(d *OrderDraft) { d.Buyer.EmailAddress = "" }, "buyer.emailAddress"},
		{"no items", func(d *OrderDraft) { d.Items = nil }, "items"},
		{"bad delivery type", func(d *OrderDraft) { d.Delivery.Type = "teleport" }, "delivery.type"},
		{"delivery without address", func(d *OrderDraft) {
			d.Delivery.Type = model.DeliveryTypeDelivery
			d.Delivery.Address = ""
		}, "delivery.address"},
		{"negative delivery fee", func(d *OrderDraft) { d.Delivery.FeeNGN = -100 }, "delivery.fee"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := validDraft()
			tt.mutate(draft)

			_, err := svc.CreateOrder(context.Background(), draft)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Fatalf("field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}

func TestVerifyAndPlaceOrder_Success(t *testing.T) {
	repo := catalogRepo()
	gateway := &stubGateway{payment: &paystack.VerifiedPayment{
		Reference: "ref-1", AmountKobo: 250000, Currency: "NGN", CustomerEmail: "amina@example.com",
	}}
	svc := newTestService(repo, gateway, nil)

	draft := validDraft()
	clientTotal := int64(2500)
	draft.TotalAmountNGN = &clientTotal

	order, err := svc.VerifyAndPlaceOrder(context.Background(), "ref-1", draft)
	if err != nil {
		t.Fatalf("VerifyAndPlaceOrder error: %v", err)
	}

	if order.TotalPriceNGN != 2500 {
		t.Fatalf("total = %d, want 2500", order.TotalPriceNGN)
	}
	if order.Status != model.OrderStatusPending {
		t.Fatalf("status = %q, want pending", order.Status)
	}
	if order.PaymentOnDelivery {
		t.Fatalf("gateway-paid order must not be payment-on-delivery")
	}
	if !order.PaymentSettled {
		t.Fatalf("gateway-paid order must be settled at creation")
	}
	if !ordernum.IsValid(order.Number) {
		t.Fatalf("order number %q has wrong format", order.Number)
	}
}

func TestVerifyAndPlaceOrder_TotalMismatch(t *testing.T) {
	repo := catalogRepo()
	gateway := &stubGateway{payment: &paystack.VerifiedPayment{Reference: "ref-1"}}
	svc := newTestService(repo, gateway, nil)

	draft := validDraft()
	clientTotal := int64(2600)
	draft.TotalAmountNGN = &clientTotal

	_, err := svc.VerifyAndPlaceOrder(context.Background(), "ref-1", draft)

	var mismatch *TotalMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TotalMismatchError, got %v", err)
	}
	if mismatch.ExpectedNGN != 2500 || mismatch.ReceivedNGN != 2600 {
		t.Fatalf("mismatch = %+v, want expected 2500, received 2600", mismatch)
	}
	if len(repo.createdOrders) != 0 {
		t.Fatalf("no order must be persisted on mismatch")
	}
}

func TestVerifyAndPlaceOrder_VerificationFailed(t *testing.T) {
	repo := catalogRepo()
	gateway := &stubGateway{err: paystack.ErrVerificationFailed}
	svc := newTestService(repo, gateway, nil)

	_, err := svc.VerifyAndPlaceOrder(context.Background(), "ref-1", validDraft())
	if !errors.Is(err, paystack.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	if len(repo.createdOrders) != 0 {
		t.Fatalf("no order must be persisted when verification fails")
	}
}

func TestCreateOrder_RetriesDuplicateNumber(t *testing.T) {
	repo := catalogRepo()
	repo.createOrderErrs = []error{
		repository.ErrDuplicateOrderNumber,
		repository.ErrDuplicateOrderNumber,
	}
	svc := newTestService(repo, nil, nil)

	order, err := svc.CreateOrder(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if len(repo.createdOrders) != 1 {
		t.Fatalf("orders persisted = %d, want 1", len(repo.createdOrders))
	}
	if !ordernum.IsValid(order.Number) {
		t.Fatalf("order number %q has wrong format", order.Number)
	}
}

func TestCreateOrder_GivesUpAfterAttempts(t *testing.T) {
	repo := catalogRepo()
	for i := 0; i < orderNumberAttempts; i++ {
		repo.createOrderErrs = append(repo.createOrderErrs, repository.ErrDuplicateOrderNumber)
	}
	svc := newTestService(repo, nil, nil)

	_, err := svc.CreateOrder(context.Background(), validDraft())
	if !errors.Is(err, repository.ErrDuplicateOrderNumber) {
		t.Fatalf("expected ErrDuplicateOrderNumber after attempts, got %v", err)
	}
}

func TestCreateOrder_NotificationFailureDoesNotFail(t *testing.T) {
	repo := catalogRepo()
	repo.adminPhones = []string{"08011111111", "08022222222"}
	sender := &stubSender{
		errs: map[string]error{
			"08012345678": errors.New("gateway down"),
			"08011111111": errors.New("gateway down"),
		},
		done: make(chan struct{}, 3),
	}
	svc := newTestService(repo, nil, sender)

	_, err := svc.CreateOrder(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	// Покупатель и оба администратора, независимо от сбоев.
	for i := 0; i < 3; i++ {
		select {
		case <-sender.done:
		case <-time.After(time.Second):
			t.Fatalf("notification %d was not attempted", i+1)
		}
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 3 {
		t.Fatalf("sends = %d, want 3", len(sender.sent))
	}
}

func TestVerifyTopUp_Replay(t *testing.T) {
	repo := catalogRepo()
	repo.topUpBalance = 150000
	repo.topUpDeposited = 0
	gateway := &stubGateway{payment: &paystack.VerifiedPayment{
		Reference: "ref-1", AmountKobo: 50000, CustomerEmail: "amina@example.com",
	}}
	svc := newTestService(repo, gateway, nil)

	balance, err := svc.VerifyTopUp(context.Background(), "ref-1")
	if err != nil {
		t.Fatalf("VerifyTopUp error: %v", err)
	}

	if balance.DepositedAmount != 0 {
		t.Fatalf("deposited = %v, want 0 for replay", balance.DepositedAmount)
	}
	if balance.Balance != 1500 {
		t.Fatalf("balance = %v, want 1500", balance.Balance)
	}
	if len(repo.topUpCalls) != 1 || repo.topUpCalls[0] != "ref-1" {
		t.Fatalf("unexpected top-up calls: %v", repo.topUpCalls)
	}
}

func TestUpdateOrderStatus_InvalidStatus(t *testing.T) {
	svc := newTestService(catalogRepo(), nil, nil)

	_, err := svc.UpdateOrderStatus(context.Background(), 1, "shipped")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestUpdateOrderStatus_NotifiesOnReady(t *testing.T) {
	repo := catalogRepo()
	repo.updatedOrder = &model.Order{
		Number: "ORD-20250711-1234",
		Buyer:  model.Buyer{FullName: "Amina Bello", PhoneNumber: "08012345678"},
	}
	sender := &stubSender{done: make(chan struct{}, 1)}
	svc := newTestService(repo, nil, sender)

	order, err := svc.UpdateOrderStatus(context.Background(), 1, "ready")
	if err != nil {
		t.Fatalf("UpdateOrderStatus error: %v", err)
	}
	if order.Status != model.OrderStatusReady {
		t.Fatalf("status = %q, want ready", order.Status)
	}

	select {
	case <-sender.done:
	case <-time.After(time.Second):
		t.Fatalf("buyer was not notified on ready")
	}
}

func TestUpdateOrderStatus_NoSMSOnPreparing(t *testing.T) {
	repo := catalogRepo()
	repo.updatedOrder = &model.Order{
		Number: "ORD-20250711-1234",
		Buyer:  model.Buyer{FullName: "Amina Bello", PhoneNumber: "08012345678"},
	}
	sender := &stubSender{done: make(chan struct{}, 1)}
	svc := newTestService(repo, nil, sender)

	if _, err := svc.UpdateOrderStatus(context.Background(), 1, "preparing"); err != nil {
		t.Fatalf("UpdateOrderStatus error: %v", err)
	}

	select {
	case <-sender.done:
		t.Fatalf("no sms expected on preparing")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUpdateOrderStatus_CompletedSettlesPayOnDelivery(t *testing.T) {
	repo := catalogRepo()
	repo.updatedOrder = &model.Order{
		Number:            "ORD-20250711-1234",
		Buyer:             model.Buyer{FullName: "Amina Bello", PhoneNumber: "08012345678"},
		PaymentOnDelivery: true,
	}
	svc := newTestService(repo, nil, nil)

	order, err := svc.UpdateOrderStatus(context.Background(), 1, "completed")
	if err != nil {
		t.Fatalf("UpdateOrderStatus error: %v", err)
	}
	if !order.PaymentSettled {
		t.Fatalf("pay-on-delivery order must be settled on completed")
	}

	// Повторный перевод в completed не меняет признак оплаты.
	order, err = svc.UpdateOrderStatus(context.Background(), 1, "completed")
	if err != nil {
		t.Fatalf("UpdateOrderStatus error: %v", err)
	}
	if !order.PaymentSettled {
		t.Fatalf("settled flag must survive repeated completed")
	}
	if len(repo.updatedSettled) != 2 || !repo.updatedSettled[0] || !repo.updatedSettled[1] {
		t.Fatalf("settled flags = %v, want [true true]", repo.updatedSettled)
	}
}

func TestUpdateOrderStatus_CompletedKeepsPrepaidUntouched(t *testing.T) {
	repo := catalogRepo()
	repo.updatedOrder = &model.Order{
		Number:         "ORD-20250711-1234",
		Buyer:          model.Buyer{FullName: "Amina Bello", PhoneNumber: "08012345678"},
		PaymentSettled: true,
	}
	svc := newTestService(repo, nil, nil)

	order, err := svc.UpdateOrderStatus(context.Background(), 1, "completed")
	if err != nil {
		t.Fatalf("UpdateOrderStatus error: %v", err)
	}
	if !order.PaymentSettled {
		t.Fatalf("prepaid order must stay settled on completed")
	}
}

func TestUpdateOrderStatus_ReadyDoesNotSettle(t *testing.T) {
	repo := catalogRepo()
	repo.updatedOrder = &model.Order{
		Number:            "ORD-20250711-1234",
		Buyer:             model.Buyer{FullName: "Amina Bello", PhoneNumber: "08012345678"},
		PaymentOnDelivery: true,
	}
	svc := newTestService(repo, nil, nil)

	order, err := svc.UpdateOrderStatus(context.Background(), 1, "ready")
	if err != nil {
		t.Fatalf("UpdateOrderStatus error: %v", err)
	}
	if order.PaymentSettled {
		t.Fatalf("pay-on-delivery order must not settle before completed")
	}
}

func TestStatusMessage_CompletedDeliveryType(t *testing.T) {
	pickup := &model.Order{
		Number:   "ORD-20250711-1234",
		Buyer:    model.Buyer{FullName: "Amina Bello"},
		Status:   model.OrderStatusCompleted,
		Delivery: model.Delivery{Type: model.DeliveryTypePickup},
	}
	delivery := &model.Order{
		Number:   "ORD-20250711-1234",
		Buyer:    model.Buyer{FullName: "Amina Bello"},
		Status:   model.OrderStatusCompleted,
		Delivery: model.Delivery{Type: model.DeliveryTypeDelivery},
	}

	if msg := statusMessage(pickup); !strings.Contains(msg, "picked up") {
		t.Fatalf("pickup message = %q, want mention of picked up", msg)
	}
	if msg := statusMessage(delivery); !strings.Contains(msg, "delivered") {
		t.Fatalf("delivery message = %q, want mention of delivered", msg)
	}
}
