package orders

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentloop-backend/internal/collection"
	"github.com/angelmondragon/rentloop-backend/internal/payments"
	"github.com/angelmondragon/rentloop-backend/pkg/commission"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentloop-backend/pkg/errors"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
	"github.com/angelmondragon/rentloop-backend/pkg/metrics"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox"
	"github.com/angelmondragon/rentloop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/rentloop-backend/pkg/pagination"
)

const (
	// SystemActorPrefix marks actors that are services rather than users.
	SystemActorPrefix = "system:"
	// ExpiryActor attributes expiry sweep audit entries.
	ExpiryActor = SystemActorPrefix + "expiry"

	defaultApprovalWindow = 30 * 24 * time.Hour
	defaultPaymentWindow  = 7 * 24 * time.Hour
	defaultTokenTTL       = 120 * time.Second
	defaultExpiryBatch    = 200
)

// Collection token failure reasons carried in error details.
const (
	ReasonInvalidToken  = "invalid_token"
	ReasonOrderNotFound = "order_not_found"
	ReasonUnauthorized  = "unauthorized"
	ReasonTokenNotFound = "token_not_found"
	ReasonTokenExpired  = "token_expired"
	ReasonTokenMismatch = "token_mismatch"
)

// Service drives orders through their lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Approve(ctx context.Context, input ApproveInput) (*models.Order, error)
	Decline(ctx context.Context, input DeclineInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	MarkPaymentReceived(ctx context.Context, input MarkPaymentReceivedInput) (*models.Order, error)
	ConfirmCashPayment(ctx context.Context, input ConfirmCashPaymentInput) (*models.Order, error)
	RecordGatewayPayment(ctx context.Context, input GatewayPaymentInput) (*models.Order, error)
	GenerateCollectionToken(ctx context.Context, input GenerateTokenInput) (*CollectionTokenResult, error)
	CompleteWithToken(ctx context.Context, input CompleteWithTokenInput) (*models.Order, error)
	ExpireStaleOrders(ctx context.Context) (ExpireResult, error)
	Get(ctx context.Context, orderID uuid.UUID, actorID string) (*models.Order, error)
	ListForRequester(ctx context.Context, requesterID string, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListForVendor(ctx context.Context, vendorID string, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListPendingApproval(ctx context.Context, vendorID string, params pagination.Params) (*OrderList, error)
	History(ctx context.Context, orderID uuid.UUID, actorID string) ([]StatusUpdateView, error)
}

// ServiceParams carries the service dependencies and tunables.
type ServiceParams struct {
	Repo     Repository
	Payments PaymentRecorder
	Tx       txRunner
	Outbox   outbox.Emitter
	Codec    TokenCodec
	Logger   *logger.Logger
	Metrics  *metrics.OrderMetrics

	Rate           decimal.Decimal
	ApprovalWindow time.Duration
	PaymentWindow  time.Duration
	TokenTTL       time.Duration
	ExpiryBatch    int
	Now            func() time.Time
}

type service struct {
	repo     Repository
	payments PaymentRecorder
	tx       txRunner
	outbox   outbox.Emitter
	codec    TokenCodec
	logg     *logger.Logger
	metrics  *metrics.OrderMetrics

	rate           decimal.Decimal
	approvalWindow time.Duration
	paymentWindow  time.Duration
	tokenTTL       time.Duration
	expiryBatch    int
	now            func() time.Time
}

// Item is one line of a new order.
type Item struct {
	ItemID     string
	Name       string
	ImageURL   *string
	Quantity   int
	UnitPrice  decimal.Decimal
	VendorID   string
	VendorName string
}

type CreateOrderInput struct {
	Requester     Party
	VendorEmail   string
	Items         []Item
	PaymentMethod enums.PaymentMethod
	Notes         *string
}

type ApproveInput struct {
	OrderID  uuid.UUID
	VendorID string
	Notes    *string
}

type DeclineInput struct {
	OrderID  uuid.UUID
	VendorID string
	Reason   string
}

type CancelInput struct {
	OrderID uuid.UUID
	ActorID string
	Reason  *string
}

type MarkPaymentReceivedInput struct {
	OrderID   uuid.UUID
	PaymentID string
	Reference string
	Amount    decimal.Decimal
	ActorID   string
}

// ConfirmCashPaymentInput records cash handed to the vendor. Amount defaults to the order total.
type ConfirmCashPaymentInput struct {
	OrderID   uuid.UUID
	VendorID  string
	Amount    *decimal.Decimal
	Reference *string
}

// GatewayPaymentInput is a payment confirmed by a gateway. Record describes the
// payment record to store; order, merchant, gross and rate come from the service.
type GatewayPaymentInput struct {
	OrderID   uuid.UUID
	PaymentID string
	Amount    decimal.Decimal
	ActorID   string
	Record    payments.RecordInput
}

type GenerateTokenInput struct {
	OrderID     uuid.UUID
	RequesterID string
}

type CompleteWithTokenInput struct {
	Token    string
	VendorID string
}

// NewService builds the order lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment recorder required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Codec == nil {
		return nil, fmt.Errorf("collection token codec required")
	}
	if params.Rate.IsNegative() || params.Rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be in [0, 1), got %s", params.Rate)
	}
	svc := &service{
		repo:           params.Repo,
		payments:       params.Payments,
		tx:             params.Tx,
		outbox:         params.Outbox,
		codec:          params.Codec,
		logg:           params.Logger,
		metrics:        params.Metrics,
		rate:           params.Rate,
		approvalWindow: params.ApprovalWindow,
		paymentWindow:  params.PaymentWindow,
		tokenTTL:       params.TokenTTL,
		expiryBatch:    params.ExpiryBatch,
		now:            params.Now,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.approvalWindow <= 0 {
		svc.approvalWindow = defaultApprovalWindow
	}
	if svc.paymentWindow <= 0 {
		svc.paymentWindow = defaultPaymentWindow
	}
	if svc.tokenTTL <= 0 {
		svc.tokenTTL = defaultTokenTTL
	}
	if svc.expiryBatch <= 0 {
		svc.expiryBatch = defaultExpiryBatch
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	requesterID := strings.TrimSpace(input.Requester.ID)
	if requesterID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}

	vendorID := strings.TrimSpace(input.Items[0].VendorID)
	vendorName := strings.TrimSpace(input.Items[0].VendorName)
	if vendorID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item vendor id required")
	}
	if vendorID == requesterID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot rent your own listing")
	}

	now := s.now()
	orderID := uuid.New()
	items := make([]models.OrderItem, 0, len(input.Items))
	subtotal := decimal.Zero
	for i, item := range input.Items {
		if strings.TrimSpace(item.VendorID) != vendorID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "all items must belong to the same vendor").
				WithDetails(map[string]any{"position": i})
		}
		if strings.TrimSpace(item.ItemID) == "" || strings.TrimSpace(item.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id and name required").
				WithDetails(map[string]any{"position": i})
		}
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be at least 1").
				WithDetails(map[string]any{"position": i})
		}
		if item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item price cannot be negative").
				WithDetails(map[string]any{"position": i})
		}
		lineTotal := commission.LineTotal(item.Quantity, item.UnitPrice)
		subtotal = subtotal.Add(lineTotal)
		items = append(items, models.OrderItem{
			OrderID:    orderID,
			Position:   i,
			ItemID:     strings.TrimSpace(item.ItemID),
			Name:       strings.TrimSpace(item.Name),
			ImageURL:   item.ImageURL,
			Quantity:   item.Quantity,
			UnitPrice:  commission.Round(item.UnitPrice),
			LineTotal:  lineTotal,
			VendorID:   vendorID,
			VendorName: strings.TrimSpace(item.VendorName),
		})
	}

	totals := commission.OrderTotals(subtotal, s.rate)
	expiresAt := now.Add(s.approvalWindow)
	order := &models.Order{
		ID:             orderID,
		RequesterID:    requesterID,
		RequesterName:  strings.TrimSpace(input.Requester.Name),
		RequesterEmail: strings.TrimSpace(input.Requester.Email),
		RequesterPhone: input.Requester.Phone,
		VendorID:       vendorID,
		VendorName:     vendorName,
		VendorEmail:    strings.TrimSpace(input.VendorEmail),
		Subtotal:       totals.Subtotal,
		PlatformFee:    totals.Fee,
		Total:          totals.Total,
		Status:         enums.OrderStatusAwaitingApproval,
		PaymentMethod:  input.PaymentMethod,
		Notes:          input.Notes,
		ExpiresAt:      &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          items,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.audit(ctx, repo, order.ID, enums.OrderStatusAwaitingApproval, "order created", requesterID, now); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID.String(),
			Actor:         &outbox.ActorRef{UserID: requesterID, Role: "requester"},
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				RequesterID:   requesterID,
				VendorID:      vendorID,
				PaymentMethod: order.PaymentMethod,
				Total:         order.Total,
				ExpiresAt:     expiresAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(enums.OrderStatusAwaitingApproval))
	return order, nil
}

func (s *service) Approve(ctx context.Context, input ApproveInput) (*models.Order, error) {
	if err := requireIDs(input.OrderID, input.VendorID); err != nil {
		return nil, err
	}
	const op = "approve"
	now := s.now()

	var target enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), input.OrderID)
		if err != nil {
			return err
		}
		if order.VendorID != input.VendorID {
			return forbidden("only the vendor may approve this order")
		}
		if order.Status != enums.OrderStatusAwaitingApproval {
			return invalidTransition(op, order.Status)
		}

		updates := map[string]any{"approved_at": now}
		if input.Notes != nil {
			updates["vendor_notes"] = *input.Notes
		}
		var dueAt *time.Time
		target = enums.OrderStatusAwaitingPayment
		if !order.PaymentMethod.SettlesOnline() {
			target = enums.OrderStatusCashPayment
		} else {
			due := now.Add(s.paymentWindow)
			dueAt = &due
			updates["payment_due_at"] = due
			updates["payment_status"] = enums.PaymentStatusPending
		}

		if err := s.apply(ctx, tx, transition{
			order:   order,
			op:      op,
			from:    []enums.OrderStatus{enums.OrderStatusAwaitingApproval},
			to:      target,
			updates: updates,
			note:    noteWith("order approved", input.Notes),
			actor:   input.VendorID,
			role:    "vendor",
			event:   enums.EventOrderApproved,
			dueAt:   dueAt,
			now:     now,
		}); err != nil {
			return err
		}

		if target == enums.OrderStatusAwaitingPayment {
			record := payments.NewRecord(payments.RecordInput{
				OrderID:    order.ID,
				Gross:      order.Total,
				Rate:       s.rate,
				Status:     enums.PaymentRecordPending,
				Method:     order.PaymentMethod,
				PayerID:    order.RequesterID,
				MerchantID: order.VendorID,
				ItemName:   itemName(order),
			})
			if _, err := s.payments.UpsertTx(ctx, tx, record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pending payment record")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(target))
	return s.reload(ctx, input.OrderID)
}

func (s *service) Decline(ctx context.Context, input DeclineInput) (*models.Order, error) {
	if err := requireIDs(input.OrderID, input.VendorID); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decline reason required")
	}
	const op = "decline"
	now := s.now()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), input.OrderID)
		if err != nil {
			return err
		}
		if order.VendorID != input.VendorID {
			return forbidden("only the vendor may decline this order")
		}
		if order.Status != enums.OrderStatusAwaitingApproval {
			return invalidTransition(op, order.Status)
		}
		return s.apply(ctx, tx, transition{
			order: order,
			op:    op,
			from:  []enums.OrderStatus{enums.OrderStatusAwaitingApproval},
			to:    enums.OrderStatusCancelled,
			updates: map[string]any{
				"cancellation_reason": reason,
				"cancelled_at":        now,
			},
			note:   "order declined: " + reason,
			reason: reason,
			actor:  input.VendorID,
			role:   "vendor",
			event:  enums.EventOrderDeclined,
			now:    now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(enums.OrderStatusCancelled))
	return s.reload(ctx, input.OrderID)
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if err := requireIDs(input.OrderID, input.ActorID); err != nil {
		return nil, err
	}
	const op = "cancel"
	now := s.now()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), input.OrderID)
		if err != nil {
			return err
		}
		if !order.IsParty(input.ActorID) {
			return forbidden("only the requester or vendor may cancel this order")
		}
		if order.Status != enums.OrderStatusAwaitingPayment {
			return invalidTransition(op, order.Status)
		}
		reason := "cancelled by " + roleOf(order, input.ActorID)
		if input.Reason != nil && strings.TrimSpace(*input.Reason) != "" {
			reason = strings.TrimSpace(*input.Reason)
		}
		if err := s.apply(ctx, tx, transition{
			order: order,
			op:    op,
			from:  []enums.OrderStatus{enums.OrderStatusAwaitingPayment},
			to:    enums.OrderStatusCancelled,
			updates: map[string]any{
				"cancellation_reason": reason,
				"cancelled_at":        now,
				"payment_status":      enums.PaymentStatusCancelled,
			},
			note:   "order cancelled: " + reason,
			reason: reason,
			actor:  input.ActorID,
			role:   roleOf(order, input.ActorID),
			event:  enums.EventOrderCancelled,
			now:    now,
		}); err != nil {
			return err
		}
		if err := s.payments.CancelPendingTx(ctx, tx, order.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel pending payment record")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(enums.OrderStatusCancelled))
	return s.reload(ctx, input.OrderID)
}

func (s *service) MarkPaymentReceived(ctx context.Context, input MarkPaymentReceivedInput) (*models.Order, error) {
	if err := requireIDs(input.OrderID, input.ActorID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.PaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount cannot be negative")
	}
	now := s.now()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), input.OrderID)
		if err != nil {
			return err
		}
		return s.markPaid(ctx, tx, order, input, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(enums.OrderStatusPaymentReceived))
	return s.reload(ctx, input.OrderID)
}

func (s *service) markPaid(ctx context.Context, tx *gorm.DB, order *models.Order, input MarkPaymentReceivedInput, now time.Time) error {
	const op = "mark payment received"
	isSystem := strings.HasPrefix(input.ActorID, SystemActorPrefix)
	if !isSystem && order.VendorID != input.ActorID {
		return forbidden("only the vendor or the payment gateway may confirm payment")
	}
	from := []enums.OrderStatus{enums.OrderStatusAwaitingPayment, enums.OrderStatusCashPayment}
	if order.Status != enums.OrderStatusAwaitingPayment && order.Status != enums.OrderStatusCashPayment {
		return invalidTransition(op, order.Status)
	}

	amount := commission.Round(input.Amount)
	updates := map[string]any{
		"payment_id":     strings.TrimSpace(input.PaymentID),
		"paid_amount":    amount,
		"payment_status": enums.PaymentStatusCompleted,
	}
	if ref := strings.TrimSpace(input.Reference); ref != "" {
		updates["payment_reference"] = ref
	}
	role := "vendor"
	if isSystem {
		role = "system"
	}
	return s.apply(ctx, tx, transition{
		order:     order,
		op:        op,
		from:      from,
		to:        enums.OrderStatusPaymentReceived,
		updates:   updates,
		note:      "payment received " + amount.StringFixed(2),
		actor:     input.ActorID,
		role:      role,
		event:     enums.EventOrderPaymentReceived,
		payment:   &input,
		paidTotal: amount,
		now:       now,
	})
}

func (s *service) ConfirmCashPayment(ctx context.Context, input ConfirmCashPaymentInput) (*models.Order, error) {
	if err := requireIDs(input.OrderID, input.VendorID); err != nil {
		return nil, err
	}
	if input.Amount != nil && input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount cannot be negative")
	}
	now := s.now()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), input.OrderID)
		if err != nil {
			return err
		}
		if order.VendorID != input.VendorID {
			return forbidden("only the vendor may confirm cash payment")
		}
		if order.Status != enums.OrderStatusCashPayment {
			return invalidTransition("confirm cash payment", order.Status)
		}

		amount := order.Total
		if input.Amount != nil {
			amount = *input.Amount
		}
		record, err := s.payments.UpsertTx(ctx, tx, payments.NewRecord(payments.RecordInput{
			OrderID:          order.ID,
			Gross:            amount,
			Rate:             s.rate,
			Status:           enums.PaymentRecordCompleted,
			Method:           enums.PaymentMethodCash,
			PayerID:          order.RequesterID,
			MerchantID:       order.VendorID,
			GatewayReference: input.Reference,
			ItemName:         itemName(order),
			MerchantPaid:     true,
			PaidAt:           &now,
		}))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cash payment")
		}
		reference := record.ID.String()
		if input.Reference != nil && strings.TrimSpace(*input.Reference) != "" {
			reference = strings.TrimSpace(*input.Reference)
		}
		return s.markPaid(ctx, tx, order, MarkPaymentReceivedInput{
			OrderID:   order.ID,
			PaymentID: record.ID.String(),
			Reference: reference,
			Amount:    amount,
			ActorID:   input.VendorID,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(enums.OrderStatusPaymentReceived))
	return s.reload(ctx, input.OrderID)
}

// RecordGatewayPayment stores the gateway's payment record and marks the order
// paid in one transaction. Orders that no longer accept a payment are left
// untouched, including their payment record.
func (s *service) RecordGatewayPayment(ctx context.Context, input GatewayPaymentInput) (*models.Order, error) {
	if err := requireIDs(input.OrderID, input.ActorID); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(input.ActorID, SystemActorPrefix) {
		return nil, forbidden("only a payment gateway may record gateway payments")
	}
	if strings.TrimSpace(input.PaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	now := s.now()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.load(ctx, s.repo.WithTx(tx), input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusAwaitingPayment && order.Status != enums.OrderStatusCashPayment {
			return invalidTransition("record gateway payment", order.Status)
		}

		rec := input.Record
		rec.OrderID = order.ID
		rec.MerchantID = order.VendorID
		rec.Gross = input.Amount
		rec.Rate = s.rate
		if rec.Status == "" {
			rec.Status = enums.PaymentRecordCompleted
		}
		if rec.Method == "" {
			rec.Method = order.PaymentMethod
		}
		if rec.PayerID == "" {
			rec.PayerID = order.RequesterID
		}
		record, err := s.payments.UpsertTx(ctx, tx, payments.NewRecord(rec))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gateway payment")
		}
		// a lost race fails the conditional update and rolls the upsert back
		return s.markPaid(ctx, tx, order, MarkPaymentReceivedInput{
			OrderID:   order.ID,
			PaymentID: input.PaymentID,
			Reference: record.ID.String(),
			Amount:    input.Amount,
			ActorID:   input.ActorID,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(enums.OrderStatusPaymentReceived))
	return s.reload(ctx, input.OrderID)
}

func (s *service) GenerateCollectionToken(ctx context.Context, input GenerateTokenInput) (*CollectionTokenResult, error) {
	if err := requireIDs(input.OrderID, input.RequesterID); err != nil {
		return nil, err
	}
	const op = "generate collection token"
	now := s.now()

	order, err := s.load(ctx, s.repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.RequesterID != input.RequesterID {
		return nil, forbidden("only the requester may generate a collection token")
	}
	if order.Status != enums.OrderStatusPaymentReceived {
		return nil, invalidTransition(op, order.Status)
	}

	token, err := s.codec.Seal(collection.Payload{
		OrderID:     order.ID.String(),
		RequesterID: order.RequesterID,
		VendorID:    order.VendorID,
		IssuedAtMS:  now.UnixMilli(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal collection token")
	}
	expiresAt := now.Add(s.tokenTTL)

	ok, err := s.repo.Transition(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPaymentReceived}, map[string]any{
		"collection_token":            token,
		"collection_token_expires_at": expiresAt,
		"updated_at":                  now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store collection token")
	}
	if !ok {
		return nil, invalidTransition(op, order.Status)
	}
	return &CollectionTokenResult{OrderID: order.ID, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *service) CompleteWithToken(ctx context.Context, input CompleteWithTokenInput) (*models.Order, error) {
	vendorID := strings.TrimSpace(input.VendorID)
	if vendorID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	token := strings.TrimSpace(input.Token)
	payload, err := s.codec.Open(token)
	if err != nil {
		return nil, tokenError(pkgerrors.CodeValidation, ReasonInvalidToken, "collection token is invalid")
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return nil, tokenError(pkgerrors.CodeValidation, ReasonInvalidToken, "collection token is invalid")
	}
	now := s.now()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tokenError(pkgerrors.CodeNotFound, ReasonOrderNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.VendorID != vendorID || payload.VendorID != order.VendorID || payload.RequesterID != order.RequesterID {
			return tokenError(pkgerrors.CodeForbidden, ReasonUnauthorized, "collection token does not belong to this vendor")
		}
		// a completed order reports its consumed token as not found
		if order.Status != enums.OrderStatusPaymentReceived && order.Status != enums.OrderStatusCompleted {
			return invalidTransition("complete with token", order.Status)
		}
		if order.CollectionToken == nil || *order.CollectionToken == "" {
			return tokenError(pkgerrors.CodeNotFound, ReasonTokenNotFound, "no active collection token for this order")
		}
		if order.CollectionTokenExpiresAt == nil || now.After(*order.CollectionTokenExpiresAt) {
			return tokenError(pkgerrors.CodeTokenExpired, ReasonTokenExpired, "collection token expired")
		}
		if subtle.ConstantTimeCompare([]byte(*order.CollectionToken), []byte(token)) != 1 {
			return tokenError(pkgerrors.CodeTokenMismatch, ReasonTokenMismatch, "collection token has been replaced")
		}

		ok, err := repo.ConsumeCollectionToken(ctx, order.ID, token, map[string]any{
			"status":                      enums.OrderStatusCompleted,
			"collection_token":            nil,
			"collection_token_expires_at": nil,
			"completed_at":                now,
			"updated_at":                  now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}
		if !ok {
			return tokenError(pkgerrors.CodeNotFound, ReasonTokenNotFound, "collection token already used")
		}
		if err := s.audit(ctx, repo, order.ID, enums.OrderStatusCompleted, "items collected", vendorID, now); err != nil {
			return err
		}
		return s.emitStatus(ctx, tx, order, enums.EventOrderCompleted, enums.OrderStatusCompleted, vendorID, "vendor", "", nil, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(enums.OrderStatusCompleted))
	return s.reload(ctx, orderID)
}

func (s *service) ExpireStaleOrders(ctx context.Context) (ExpireResult, error) {
	now := s.now()
	var result ExpireResult

	candidates, err := s.repo.FindExpirable(ctx, now, s.expiryBatch)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expirable orders")
	}
	result.Scanned = len(candidates)

	var errs error
	for i := range candidates {
		order := candidates[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.apply(ctx, tx, transition{
				order:   &order,
				op:      "expire",
				from:    []enums.OrderStatus{order.Status},
				to:      enums.OrderStatusExpired,
				updates: map[string]any{"expired_at": now},
				note:    expiryNote(order.Status),
				actor:   ExpiryActor,
				role:    "system",
				event:   enums.EventOrderExpired,
				now:     now,
			}); err != nil {
				return err
			}
			if order.Status == enums.OrderStatusAwaitingPayment {
				return s.payments.CancelPendingTx(ctx, tx, order.ID, now)
			}
			return nil
		})
		switch {
		case err == nil:
			result.Expired++
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			result.Skipped++
		default:
			result.Skipped++
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "order expiry failed", err)
		}
	}
	s.metrics.AddExpired(result.Expired)
	return result, errs
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actorID string) (*models.Order, error) {
	if err := requireIDs(orderID, actorID); err != nil {
		return nil, err
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParty(actorID) {
		return nil, forbidden("order does not belong to user")
	}
	return order, nil
}

func (s *service) ListForRequester(ctx context.Context, requesterID string, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, params, func() ([]models.Order, error) {
		return s.repo.ListByRequester(ctx, requesterID, params, filters)
	})
}

func (s *service) ListForVendor(ctx context.Context, vendorID string, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if strings.TrimSpace(vendorID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, params, func() ([]models.Order, error) {
		return s.repo.ListByVendor(ctx, vendorID, params, filters)
	})
}

func (s *service) ListPendingApproval(ctx context.Context, vendorID string, params pagination.Params) (*OrderList, error) {
	return s.ListForVendor(ctx, vendorID, params, ListFilters{Statuses: []enums.OrderStatus{enums.OrderStatusAwaitingApproval}})
}

func (s *service) History(ctx context.Context, orderID uuid.UUID, actorID string) ([]StatusUpdateView, error) {
	if _, err := s.Get(ctx, orderID, actorID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListStatusUpdates(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order history")
	}
	out := make([]StatusUpdateView, 0, len(rows))
	for _, row := range rows {
		out = append(out, StatusUpdateView{Status: row.Status, Note: row.Note, Actor: row.Actor, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

func (s *service) list(ctx context.Context, params pagination.Params, fetch func() ([]models.Order, error)) (*OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := fetch()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Page(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	views := make([]OrderView, 0, len(page))
	for i := range page {
		views = append(views, NewOrderView(&page[i]))
	}
	return &OrderList{Orders: views, NextCursor: next}, nil
}

type transition struct {
	order     *models.Order
	op        string
	from      []enums.OrderStatus
	to        enums.OrderStatus
	updates   map[string]any
	note      string
	reason    string
	actor     string
	role      string
	event     enums.OutboxEventType
	dueAt     *time.Time
	payment   *MarkPaymentReceivedInput
	paidTotal decimal.Decimal
	now       time.Time
}

// apply performs the conditional status update, the audit row and the outbox event.
func (s *service) apply(ctx context.Context, tx *gorm.DB, t transition) error {
	repo := s.repo.WithTx(tx)
	t.updates["status"] = t.to
	t.updates["updated_at"] = t.now

	ok, err := repo.Transition(ctx, t.order.ID, t.from, t.updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, t.op)
	}
	if !ok {
		return invalidTransition(t.op, t.order.Status)
	}
	if err := s.audit(ctx, repo, t.order.ID, t.to, t.note, t.actor, t.now); err != nil {
		return err
	}

	if t.payment != nil {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     t.event,
			AggregateType: enums.AggregateOrder,
			AggregateID:   t.order.ID.String(),
			Actor:         &outbox.ActorRef{UserID: t.actor, Role: t.role},
			OccurredAt:    t.now,
			Data: payloads.OrderPaymentReceivedEvent{
				OrderID:          t.order.ID,
				RequesterID:      t.order.RequesterID,
				VendorID:         t.order.VendorID,
				PaymentID:        t.payment.PaymentID,
				PaymentReference: t.payment.Reference,
				Amount:           t.paidTotal,
				ReceivedAt:       t.now,
			},
		})
	}
	return s.emitStatus(ctx, tx, t.order, t.event, t.to, t.actor, t.role, t.reason, t.dueAt, t.now)
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, order *models.Order, event enums.OutboxEventType, status enums.OrderStatus, actor, role, reason string, dueAt *time.Time, now time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID.String(),
		Actor:         &outbox.ActorRef{UserID: actor, Role: role},
		OccurredAt:    now,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			RequesterID: order.RequesterID,
			VendorID:    order.VendorID,
			Status:      status,
			Reason:      reason,
			ChangedAt:   now,
			DueAt:       dueAt,
		},
	})
}

func (s *service) audit(ctx context.Context, repo Repository, orderID uuid.UUID, status enums.OrderStatus, note, actor string, now time.Time) error {
	err := repo.AppendStatusUpdate(ctx, &models.OrderStatusUpdate{
		OrderID:   orderID,
		Status:    status,
		Note:      note,
		Actor:     actor,
		CreatedAt: now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status update")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.load(ctx, s.repo, id)
}

func requireIDs(orderID uuid.UUID, actorID string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if strings.TrimSpace(actorID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return nil
}

func forbidden(message string) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, message)
}

func invalidTransition(op string, current enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, op+" cannot be performed in its current state").
		WithDetails(map[string]any{"operation": op, "status": current})
}

func tokenError(code pkgerrors.Code, reason, message string) error {
	return pkgerrors.New(code, message).WithDetails(map[string]any{"reason": reason})
}

func roleOf(order *models.Order, actorID string) string {
	if order.VendorID == actorID {
		return "vendor"
	}
	return "requester"
}

func noteWith(base string, extra *string) string {
	if extra == nil || strings.TrimSpace(*extra) == "" {
		return base
	}
	return base + ": " + strings.TrimSpace(*extra)
}

func expiryNote(from enums.OrderStatus) string {
	if from == enums.OrderStatusAwaitingPayment {
		return "order expired: payment not received in time"
	}
	return "order expired: not approved in time"
}

func itemName(order *models.Order) *string {
	if len(order.Items) == 0 {
		return nil
	}
	name := order.Items[0].Name
	if len(order.Items) > 1 {
		name = fmt.Sprintf("%s +%d more", name, len(order.Items)-1)
	}
	return &name
}
