package payfast

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentloop-backend/internal/orders"
	"github.com/angelmondragon/rentloop-backend/internal/payments"
	"github.com/angelmondragon/rentloop-backend/pkg/config"
	"github.com/angelmondragon/rentloop-backend/pkg/db/models"
	"github.com/angelmondragon/rentloop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentloop-backend/pkg/errors"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
	"github.com/angelmondragon/rentloop-backend/pkg/metrics"
)

// GatewayActor attributes order transitions driven by PayFast.
const GatewayActor = orders.SystemActorPrefix + "payfast"

// Outcome labels how a notification was handled.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeOrderClosed    Outcome = "order_closed"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeUnrecognized   Outcome = "unrecognized"
)

var amountTolerance = decimal.New(1, -2)

type orderLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type paymentRecorder interface {
	RecordGatewayPayment(ctx context.Context, input orders.GatewayPaymentInput) (*models.Order, error)
}

type ServiceParams struct {
	Orders    orderLookup
	Lifecycle paymentRecorder
	Config    config.PayFastConfig
	// VerifySignature is forced on in production regardless of Config.
	VerifySignature bool
	Logger          *logger.Logger
	Metrics         *metrics.OrderMetrics
}

type Service struct {
	orders    orderLookup
	lifecycle paymentRecorder
	cfg       config.PayFastConfig
	verify    bool
	logg      *logger.Logger
	metrics   *metrics.OrderMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Lifecycle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		orders:    params.Orders,
		lifecycle: params.Lifecycle,
		cfg:       params.Config,
		verify:    params.VerifySignature || params.Config.VerifySignature,
		logg:      logg,
		metrics:   params.Metrics,
	}, nil
}

// Authenticate checks the signature and merchant id before anything is recorded.
func (s *Service) Authenticate(n *Notification) error {
	if n == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification required")
	}
	if s.verify && !VerifySignature(n, s.cfg.Passphrase) {
		s.metrics.IncWebhook(statusLabel(n.PaymentStatus), "invalid_signature")
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid signature")
	}
	if merchant := strings.TrimSpace(s.cfg.MerchantID); merchant != "" && n.MerchantID != merchant {
		s.metrics.IncWebhook(statusLabel(n.PaymentStatus), "merchant_mismatch")
		return pkgerrors.New(pkgerrors.CodeValidation, "merchant id mismatch")
	}
	return nil
}

// Handle applies an authenticated notification. Replays are safe: the payment
// record upsert is keyed by order and the order transition is conditional.
func (s *Service) Handle(ctx context.Context, n *Notification) (Outcome, error) {
	orderID, err := n.ParsedOrderID()
	if err != nil {
		return "", err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":       orderID.String(),
		"pf_payment_id":  n.PFPaymentID,
		"payment_status": n.PaymentStatus,
	})

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	var outcome Outcome
	switch n.PaymentStatus {
	case StatusComplete:
		outcome, err = s.complete(ctx, order, n)
		if err != nil {
			return "", err
		}
	case StatusFailed, StatusCancelled:
		// The order stays as is; the requester may retry or it expires.
		s.logg.Warn(ctx, "payfast payment not completed")
		outcome = OutcomeIgnored
	default:
		s.logg.Warn(ctx, "payfast payment status unrecognized")
		outcome = OutcomeUnrecognized
	}
	s.metrics.IncWebhook(statusLabel(n.PaymentStatus), string(outcome))
	return outcome, nil
}

func (s *Service) complete(ctx context.Context, order *models.Order, n *Notification) (Outcome, error) {
	if n.AmountGross == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "amount_gross missing")
	}
	if !n.AmountGross.IsPositive() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "amount_gross must be positive")
	}
	if n.PFPaymentID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "pf_payment_id missing")
	}
	gross := *n.AmountGross
	if gross.Sub(order.Total).Abs().GreaterThan(amountTolerance) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"amount_gross": gross.StringFixed(2),
			"order_total":  order.Total.StringFixed(2),
		}), "payfast amount differs from order total")
	}
	if n.VendorID != "" && n.VendorID != order.VendorID {
		s.logg.Warn(ctx, "payfast custom_str3 does not match order vendor")
	}

	_, err := s.lifecycle.RecordGatewayPayment(ctx, orders.GatewayPaymentInput{
		OrderID:   order.ID,
		PaymentID: n.PFPaymentID,
		Amount:    gross,
		ActorID:   GatewayActor,
		Record: payments.RecordInput{
			Status:            enums.PaymentRecordCompleted,
			PayerID:           n.PayerID,
			ExternalPaymentID: optional(n.PFPaymentID),
			GatewayReference:  optional(n.MPaymentID),
			ItemName:          optional(n.ItemName),
		},
	})
	if err == nil {
		s.logg.Info(ctx, "payfast payment applied")
		return OutcomeApplied, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		return "", err
	}
	return s.rejected(ctx, order.ID)
}

// rejected classifies a notification the order refused. The order is read again
// because a concurrent delivery may have paid it after the first read.
func (s *Service) rejected(ctx context.Context, orderID uuid.UUID) (Outcome, error) {
	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	ctx = s.logg.WithField(ctx, "order_status", current.Status)
	switch current.Status {
	case enums.OrderStatusPaymentReceived, enums.OrderStatusCompleted:
		s.logg.Info(ctx, "payfast payment already applied")
		return OutcomeAlreadyApplied, nil
	}
	s.logg.Warn(ctx, "payfast payment for an order that no longer accepts payment")
	return OutcomeOrderClosed, nil
}

// statusLabel keeps metric labels to a fixed set; the posted status is untrusted.
func statusLabel(status string) string {
	switch status {
	case StatusComplete, StatusFailed, StatusCancelled:
		return status
	}
	return "other"
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
