package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/auth"
	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentSettings configures the reconciler
type PaymentSettings struct {
	Currency       string
	RefundOnCancel bool
	LockTTL        time.Duration
}

// PaymentService reconciles gateway confirmations with orders
type PaymentService struct {
	payments PaymentRepository
	orders   OrderRepository
	gateway  PaymentGateway
	locker   Locker
	events   EventPublisher
	settings PaymentSettings
	logger   *zap.Logger
	now      func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	payments PaymentRepository,
	orders OrderRepository,
	gateway PaymentGateway,
	locker Locker,
	events EventPublisher,
	settings PaymentSettings,
) *PaymentService {
	if settings.LockTTL <= 0 {
		settings.LockTTL = 30 * time.Second
	}
	return &PaymentService{
		payments: payments,
		orders:   orders,
		gateway:  gateway,
		locker:   locker,
		events:   events,
		settings: settings,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// PaymentIntent is what the client needs to complete payment out of band
type PaymentIntent struct {
	RequiresPayment bool   `json:"requires_payment"`
	PaymentID       string `json:"payment_id"`
	OrderID         string `json:"order_id"`
	GatewayOrderRef string `json:"gateway_order_ref,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	KeyID           string `json:"key_id,omitempty"`
}

// CreateIntentRequest asks for a payment intent on an order
type CreateIntentRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// VerifyPaymentRequest carries the gateway callback fields
type VerifyPaymentRequest struct {
	PaymentID         string `json:"payment_id" binding:"required"`
	GatewayOrderRef   string `json:"gateway_order_ref" binding:"required"`
	GatewayPaymentRef string `json:"gateway_payment_ref" binding:"required"`
	Signature         string `json:"signature" binding:"required"`
}

// RecordFailureRequest carries the client-reported gateway error
type RecordFailureRequest struct {
	PaymentID string          `json:"payment_id" binding:"required"`
	Error     json.RawMessage `json:"error"`
}

// CreatePaymentIntent prepares payment for a pending order. Repeated calls
// return the same payment and the same gateway reference.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, actor auth.Actor, orderID string) (*PaymentIntent, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePaymentIntent", attribute.String("order_id", orderID))
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, loadErr(err, "order", orderID)
	}
	if err := authorize(actor, auth.ActionCreatePaymentIntent, auth.Resource{OwnerID: order.CustomerID}); err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, apperr.InvalidTransition("order %s is %s, payment is only accepted while pending", order.ID, order.Status)
	}

	payment, err := s.paymentForOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if err := payableState(payment); err != nil {
		return nil, err
	}

	intent := &PaymentIntent{
		PaymentID: payment.ID,
		OrderID:   order.ID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
	}

	method := string(payment.PaymentMethod)
	if !payment.PaymentMethod.IsOnline() {
		util.PaymentIntentsTotal.WithLabelValues(method, "not_required").Inc()
		return intent, nil
	}

	intent.RequiresPayment = true
	intent.KeyID = s.gateway.KeyID()
	if payment.GatewayOrderRef != "" {
		util.PaymentIntentsTotal.WithLabelValues(method, "reused").Inc()
		intent.GatewayOrderRef = payment.GatewayOrderRef
		return intent, nil
	}

	lockKey := "payment-intent:" + order.ID
	token, err := s.locker.AcquireLock(ctx, lockKey, s.settings.LockTTL)
	if errors.Is(err, redisclient.ErrLockHeld) {
		return nil, apperr.Conflict("payment intent for order %s is already being created, retry shortly", order.ID)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to lock order %s", order.ID)
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.logger.Warn("Failed to release payment intent lock", zap.String("order_id", order.ID), zap.Error(err))
		}
	}()

	// another request may have finished while we waited for the lock
	payment, err = s.payments.GetPaymentByID(ctx, payment.ID)
	if err != nil {
		return nil, loadErr(err, "payment", intent.PaymentID)
	}
	if err := payableState(payment); err != nil {
		return nil, err
	}
	if payment.GatewayOrderRef != "" {
		util.PaymentIntentsTotal.WithLabelValues(method, "reused").Inc()
		intent.GatewayOrderRef = payment.GatewayOrderRef
		return intent, nil
	}

	remote, err := s.gateway.CreateRemoteIntent(ctx, payment.Amount, payment.Currency, order.OrderNumber)
	if err != nil {
		util.PaymentIntentsTotal.WithLabelValues(method, "gateway_error").Inc()
		util.RecordError(span, err)
		s.logger.Error("Failed to create gateway intent", zap.String("order_id", order.ID), zap.Error(err))
		return nil, apperr.Gateway(err, "payment gateway could not create the payment")
	}

	from := payment.Status
	payment.GatewayOrderRef = remote.ID
	payment.GatewayResponse = types.JSONText(remote.Raw)
	if err := s.payments.UpdatePayment(ctx, payment, from); err != nil {
		if errors.Is(err, models.ErrStaleState) {
			return nil, apperr.Conflict("payment %s changed concurrently", payment.ID)
		}
		return nil, apperr.Internal(err, "failed to store gateway reference")
	}

	util.PaymentIntentsTotal.WithLabelValues(method, "created").Inc()
	s.logger.Info("Payment intent created",
		zap.String("order_id", order.ID),
		zap.String("payment_id", payment.ID),
		zap.String("gateway_order_ref", remote.ID))

	intent.GatewayOrderRef = remote.ID
	return intent, nil
}

// VerifyPayment checks the callback signature, confirms the payment with the
// gateway and moves the order from pending to confirmed.
func (s *PaymentService) VerifyPayment(ctx context.Context, actor auth.Actor, req VerifyPaymentRequest) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyPayment", attribute.String("payment_id", req.PaymentID))
	defer span.End()

	payment, err := s.payments.GetPaymentByID(ctx, req.PaymentID)
	if err != nil {
		return nil, loadErr(err, "payment", req.PaymentID)
	}
	if err := authorize(actor, auth.ActionVerifyPayment, auth.Resource{OwnerID: payment.CustomerID}); err != nil {
		return nil, err
	}
	if err := payableState(payment); err != nil {
		return nil, err
	}
	if !payment.PaymentMethod.IsOnline() {
		return nil, apperr.Validation("payment %s is %s and is not settled through the gateway", payment.ID, payment.PaymentMethod)
	}
	if payment.GatewayOrderRef == "" {
		return nil, apperr.Validation("payment %s has no payment intent yet", payment.ID)
	}
	if payment.GatewayOrderRef != req.GatewayOrderRef {
		return nil, apperr.Validation("gateway order reference does not match payment %s", payment.ID)
	}

	if !s.gateway.VerifySignature(req.GatewayOrderRef, req.GatewayPaymentRef, req.Signature) {
		util.PaymentVerificationsTotal.WithLabelValues("signature_mismatch").Inc()
		s.logger.Warn("Payment signature mismatch",
			zap.String("payment_id", payment.ID),
			zap.String("gateway_payment_ref", req.GatewayPaymentRef))
		// the attempt already failed; a replay changes nothing
		if payment.Status == models.PaymentStatusFailed && payment.GatewayPaymentRef == req.GatewayPaymentRef {
			return nil, apperr.SignatureMismatch()
		}
		payment.GatewayPaymentRef = req.GatewayPaymentRef
		if err := s.markFailed(ctx, payment, "signature verification failed", nil); err != nil {
			return nil, err
		}
		return nil, apperr.SignatureMismatch()
	}

	remote, err := s.gateway.FetchRemotePayment(ctx, req.GatewayPaymentRef)
	if err != nil {
		util.PaymentVerificationsTotal.WithLabelValues("gateway_error").Inc()
		util.RecordError(span, err)
		payment.GatewayPaymentRef = req.GatewayPaymentRef
		if markErr := s.markFailed(ctx, payment, err.Error(), nil); markErr != nil {
			s.logger.Error("Failed to record gateway failure", zap.String("payment_id", payment.ID), zap.Error(markErr))
		}
		return nil, apperr.Gateway(err, "could not confirm payment with the gateway")
	}
	if mismatch := remoteMismatch(payment, remote); mismatch != "" {
		util.PaymentVerificationsTotal.WithLabelValues("mismatch").Inc()
		s.logger.Warn("Gateway payment does not match local payment",
			zap.String("payment_id", payment.ID),
			zap.String("gateway_payment_ref", req.GatewayPaymentRef),
			zap.String("mismatch", mismatch))
		return nil, apperr.Validation("gateway payment %s does not belong to payment %s: %s",
			req.GatewayPaymentRef, payment.ID, mismatch)
	}
	if !remote.Settled() {
		util.PaymentVerificationsTotal.WithLabelValues("not_settled").Inc()
		payment.GatewayPaymentRef = req.GatewayPaymentRef
		reason := remote.ErrorDescription
		if reason == "" {
			reason = "gateway reports payment status " + remote.Status
		}
		if err := s.markFailed(ctx, payment, reason, remote.Raw); err != nil {
			return nil, err
		}
		return nil, apperr.Validation("payment %s was not successful: %s", payment.ID, reason)
	}

	now := s.now().UTC()
	payment.Status = models.PaymentStatusCompleted
	payment.GatewayOrderRef = req.GatewayOrderRef
	payment.GatewayPaymentRef = req.GatewayPaymentRef
	payment.GatewayResponse = types.JSONText(remote.Raw)
	payment.PaidAt = &now
	payment.FailureReason = ""
	if err := s.payments.UpdatePayment(ctx, payment, models.PaymentSourcesFor(models.PaymentStatusCompleted)...); err != nil {
		if errors.Is(err, models.ErrStaleState) {
			return nil, apperr.Conflict("payment %s is already settled", payment.ID).WithCode(apperr.CodePaymentAlreadyCompleted)
		}
		return nil, apperr.Internal(err, "failed to complete payment %s", payment.ID)
	}

	util.PaymentVerificationsTotal.WithLabelValues("completed").Inc()
	s.logger.Info("Payment completed",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.Int64("amount", payment.Amount))
	s.publishPayment(ctx, models.EventTypePaymentCompleted, payment, payment.GatewayPaymentRef, "")

	s.confirmOrder(ctx, actor, payment)
	return payment, nil
}

// confirmOrder moves the paid order forward. An order cancelled while the
// customer was paying gets its payment refunded instead.
func (s *PaymentService) confirmOrder(ctx context.Context, actor auth.Actor, payment *models.Payment) {
	order, err := s.orders.TransitionOrder(ctx, payment.OrderID, models.OrderTransition{
		From: []models.OrderStatus{models.OrderStatusPending},
		Entry: models.StatusEntry{
			Status:    models.OrderStatusConfirmed,
			Timestamp: s.now().UTC(),
			Note:      "Payment received",
			ActorID:   actor.ID,
		},
	})
	if err == nil {
		util.OrderTransitionsTotal.WithLabelValues(string(models.OrderStatusConfirmed)).Inc()
		if err := s.events.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{
			OrderID: order.ID,
			From:    models.OrderStatusPending,
			To:      models.OrderStatusConfirmed,
			ActorID: actor.ID,
		}); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
		return
	}

	if !errors.Is(err, models.ErrStaleState) {
		s.logger.Error("Failed to confirm paid order", zap.String("order_id", payment.OrderID), zap.Error(err))
		return
	}

	current, err := s.orders.GetOrderByID(ctx, payment.OrderID)
	if err != nil {
		s.logger.Error("Failed to reload order", zap.String("order_id", payment.OrderID), zap.Error(err))
		return
	}
	if current.Status == models.OrderStatusCancelled {
		s.logger.Warn("Payment completed for a cancelled order, refunding", zap.String("order_id", current.ID))
		if err := s.SettleCancellation(ctx, current); err != nil {
			s.logger.Error("Failed to refund payment of cancelled order", zap.String("order_id", current.ID), zap.Error(err))
		}
	}
}

// RecordFailure stores a client-reported gateway failure; the order is untouched
func (s *PaymentService) RecordFailure(ctx context.Context, actor auth.Actor, req RecordFailureRequest) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.RecordFailure", attribute.String("payment_id", req.PaymentID))
	defer span.End()

	payment, err := s.payments.GetPaymentByID(ctx, req.PaymentID)
	if err != nil {
		return nil, loadErr(err, "payment", req.PaymentID)
	}
	if err := authorize(actor, auth.ActionRecordPaymentFailure, auth.Resource{OwnerID: payment.CustomerID}); err != nil {
		return nil, err
	}
	if err := payableState(payment); err != nil {
		return nil, err
	}

	if err := s.markFailed(ctx, payment, failureReason(req.Error), req.Error); err != nil {
		return nil, err
	}
	return payment, nil
}

// GetPayment returns the payment of an order
func (s *PaymentService) GetPayment(ctx context.Context, actor auth.Actor, orderID string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GetPayment", attribute.String("order_id", orderID))
	defer span.End()

	payment, err := s.payments.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, loadErr(err, "payment for order", orderID)
	}
	if err := authorize(actor, auth.ActionReadPayment, auth.Resource{OwnerID: payment.CustomerID}); err != nil {
		return nil, err
	}
	return payment, nil
}

// SettleCancellation marks the payment of a cancelled order refunded, issuing
// a gateway refund when money was actually collected online.
func (s *PaymentService) SettleCancellation(ctx context.Context, order *models.Order) error {
	ctx, span := util.StartSpan(context.WithoutCancel(ctx), "PaymentService.SettleCancellation", attribute.String("order_id", order.ID))
	defer span.End()

	lockKey := "payment-settle:" + order.ID
	token, err := s.locker.AcquireLock(ctx, lockKey, s.settings.LockTTL)
	switch {
	case errors.Is(err, redisclient.ErrLockHeld):
		s.logger.Info("Cancellation settlement already running", zap.String("order_id", order.ID))
		return nil
	case err != nil:
		s.logger.Warn("Settling cancellation without lock", zap.String("order_id", order.ID), zap.Error(err))
	default:
		defer func() {
			if err := s.locker.ReleaseLock(ctx, lockKey, token); err != nil {
				s.logger.Warn("Failed to release settlement lock", zap.String("order_id", order.ID), zap.Error(err))
			}
		}()
	}

	// retry while a concurrent verification moves the payment under us
	for attempt := 0; attempt < 3; attempt++ {
		payment, err := s.payments.GetPaymentByOrderID(ctx, order.ID)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if payment.Status == models.PaymentStatusRefunded {
			return nil
		}

		from := payment.Status
		s.refund(ctx, payment)
		payment.Status = models.PaymentStatusRefunded

		err = s.payments.UpdatePayment(ctx, payment, from)
		if errors.Is(err, models.ErrStaleState) {
			continue
		}
		if err != nil {
			return err
		}

		s.logger.Info("Payment refunded",
			zap.String("order_id", order.ID),
			zap.String("payment_id", payment.ID),
			zap.String("refund_status", string(payment.RefundStatus)))
		s.publishPayment(ctx, models.EventTypePaymentRefunded, payment, payment.RefundRef, order.CancellationReason)
		return nil
	}
	return models.ErrStaleState
}

// refund issues the gateway refund for collected online payments and records the outcome
func (s *PaymentService) refund(ctx context.Context, payment *models.Payment) {
	collected := payment.Status == models.PaymentStatusCompleted &&
		payment.PaymentMethod.IsOnline() &&
		payment.GatewayPaymentRef != ""

	switch {
	case !collected:
		payment.RefundStatus = models.RefundStatusNotRequired
	case !s.settings.RefundOnCancel:
		s.logger.Warn("Gateway refund disabled, refund must be issued manually", zap.String("payment_id", payment.ID))
		payment.RefundStatus = models.RefundStatusNone
	default:
		refund, err := s.gateway.Refund(ctx, payment.GatewayPaymentRef, payment.Amount)
		if err != nil {
			s.logger.Error("Gateway refund failed", zap.String("payment_id", payment.ID), zap.Error(err))
			payment.RefundStatus = models.RefundStatusFailed
		} else {
			payment.RefundRef = refund.ID
			payment.RefundStatus = models.RefundStatusProcessed
		}
	}
	util.PaymentRefundsTotal.WithLabelValues(string(payment.RefundStatus)).Inc()
}

func (s *PaymentService) markFailed(ctx context.Context, payment *models.Payment, reason string, raw json.RawMessage) error {
	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = reason
	payment.GatewayResponse = types.JSONText(raw)
	if err := s.payments.UpdatePayment(ctx, payment, models.PaymentSourcesFor(models.PaymentStatusFailed)...); err != nil {
		if errors.Is(err, models.ErrStaleState) {
			return apperr.Conflict("payment %s is already settled", payment.ID)
		}
		return apperr.Internal(err, "failed to record payment failure")
	}

	s.logger.Warn("Payment failed", zap.String("payment_id", payment.ID), zap.String("reason", reason))
	s.publishPayment(ctx, models.EventTypePaymentFailed, payment, payment.GatewayPaymentRef, reason)
	return nil
}

// paymentForOrder returns the order's payment, creating it for orders that predate one
func (s *PaymentService) paymentForOrder(ctx context.Context, order *models.Order) (*models.Payment, error) {
	payment, err := s.payments.GetPaymentByOrderID(ctx, order.ID)
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, apperr.Internal(err, "failed to load payment for order %s", order.ID)
	}

	payment = newPayment(order, s.settings.Currency, s.now().UTC())
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		if errors.Is(err, models.ErrDuplicateKey) {
			existing, err := s.payments.GetPaymentByOrderID(ctx, order.ID)
			if err != nil {
				return nil, loadErr(err, "payment for order", order.ID)
			}
			return existing, nil
		}
		return nil, apperr.Internal(err, "failed to create payment for order %s", order.ID)
	}
	if err := s.orders.SetOrderPayment(ctx, order.ID, payment.ID); err != nil {
		s.logger.Error("Failed to link payment to order", zap.String("order_id", order.ID), zap.Error(err))
	}
	return payment, nil
}

func (s *PaymentService) publishPayment(ctx context.Context, eventType string, payment *models.Payment, reference, reason string) {
	err := s.events.PublishPayment(ctx, eventType, &models.PaymentEvent{
		OrderID:   payment.OrderID,
		PaymentID: payment.ID,
		Amount:    payment.Amount,
		Reference: reference,
		Reason:    reason,
	})
	if err != nil {
		s.logger.Error("Failed to publish payment event", zap.String("type", eventType), zap.Error(err))
	}
}

// payableState rejects payments that can no longer be paid
func payableState(payment *models.Payment) error {
	switch payment.Status {
	case models.PaymentStatusCompleted:
		return apperr.Conflict("payment %s is already completed", payment.ID).WithCode(apperr.CodePaymentAlreadyCompleted)
	case models.PaymentStatusRefunded:
		return apperr.Conflict("payment %s has been refunded", payment.ID)
	}
	return nil
}

func newPayment(order *models.Order, currency string, now time.Time) *models.Payment {
	return &models.Payment{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		TransactionID: "TXN-" + ulid.Make().String(),
		Amount:        order.FinalAmount,
		Currency:      currency,
		PaymentMethod: order.PaymentMethod,
		Status:        models.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// remoteMismatch names the first field where the gateway record disagrees
// with the payment it is supposed to settle.
func remoteMismatch(payment *models.Payment, remote *gateway.RemotePayment) string {
	switch {
	case remote.OrderID != payment.GatewayOrderRef:
		return fmt.Sprintf("gateway order %q, expected %q", remote.OrderID, payment.GatewayOrderRef)
	case remote.Amount != payment.Amount:
		return fmt.Sprintf("amount %d, expected %d", remote.Amount, payment.Amount)
	case !strings.EqualFold(remote.Currency, payment.Currency):
		return fmt.Sprintf("currency %q, expected %q", remote.Currency, payment.Currency)
	}
	return ""
}

func failureReason(raw json.RawMessage) string {
	var payload struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &payload) == nil {
		switch {
		case payload.Description != "":
			return payload.Description
		case payload.Reason != "":
			return payload.Reason
		case payload.Code != "":
			return payload.Code
		}
	}
	return "payment failed at gateway"
}
