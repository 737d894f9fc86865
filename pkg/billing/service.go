package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mindfulmate/mindful/pkg/observability"
	"github.com/mindfulmate/mindful/pkg/payments"
	"github.com/mindfulmate/mindful/pkg/storage"
)

// BalanceInvalidator drops a cached balance after it changes
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, userID int64)
}

// Service sells credits and settles purchases
type Service struct {
	store   storage.Store
	gateway payments.Gateway
	config  Config
	cache   BalanceInvalidator
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

// NewService creates a billing service. cache and metrics may be nil.
func NewService(store storage.Store, gateway payments.Gateway, config Config, cache BalanceInvalidator, metrics *observability.Metrics) *Service {
	if config.SweepWorkers <= 0 {
		config.SweepWorkers = 4
	}
	if config.SweepBatch <= 0 {
		config.SweepBatch = 100
	}
	if config.SweepAge <= 0 {
		config.SweepAge = 10 * time.Minute
	}
	return &Service{
		store:   store,
		gateway: gateway,
		config:  config,
		cache:   cache,
		metrics: metrics,
		logger:  observability.NewLogger(observability.ErrorLevel, io.Discard),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets the logger used outside of request scope
func (s *Service) WithLogger(logger *observability.Logger) *Service {
	if logger != nil {
		s.logger = logger.WithField("component", "billing")
	}
	return s
}

// Config returns the service configuration
func (s *Service) Config() Config {
	return s.config
}

// Initiate validates a purchase request, records a pending purchase and
// registers it with the gateway
func (s *Service) Initiate(ctx context.Context, userID int64, credits int, amountPaisa int64) (*Checkout, error) {
	if credits <= 0 {
		return nil, &ValidationError{Field: "chat_credits", Message: "must be a positive whole number"}
	}
	if s.config.MaxCredits > 0 && credits > s.config.MaxCredits {
		return nil, &ValidationError{Field: "chat_credits", Message: fmt.Sprintf("must be at most %d", s.config.MaxCredits)}
	}
	if want := s.config.AmountPaisa(credits); amountPaisa != want {
		return nil, &ValidationError{Field: "amount", Message: fmt.Sprintf("must be %d paisa for %d credits", want, credits)}
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	purchase := &storage.Purchase{
		UserID:      userID,
		OrderID:     uuid.NewString(),
		Credits:     credits,
		AmountPaisa: amountPaisa,
	}
	if err := s.store.CreatePurchase(ctx, purchase); err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"purchase_id": purchase.ID,
		"order_id":    purchase.OrderID,
		"credits":     credits,
	})

	resp, err := s.gateway.Initiate(ctx, payments.InitiateRequest{
		ReturnURL:         s.config.ReturnURL,
		WebsiteURL:        s.config.WebsiteURL,
		Amount:            amountPaisa,
		PurchaseOrderID:   purchase.OrderID,
		PurchaseOrderName: strconv.Itoa(credits) + " message credits",
		CustomerInfo: &payments.CustomerInfo{
			Name:  user.Name,
			Email: user.Email,
		},
	})
	if err != nil {
		logger.WithError(err).Warn("payment initiation failed")
		return nil, &InitiationError{Err: err}
	}

	if err := s.store.SetPurchasePidx(ctx, purchase.ID, resp.Pidx); err != nil {
		return nil, err
	}

	s.metrics.PurchaseInitiated()
	logger.WithField("pidx", resp.Pidx).Info("payment initiated")

	return &Checkout{
		PurchaseID: purchase.ID,
		OrderID:    purchase.OrderID,
		Pidx:       resp.Pidx,
		PaymentURL: resp.PaymentURL,
	}, nil
}

// Settle finalizes a purchase from the gateway's view of its payment.
// Purchases already settled are returned as they are.
func (s *Service) Settle(ctx context.Context, pidx string) (*Settlement, error) {
	ctx, span := observability.Tracer("billing").Start(ctx, "billing.Settle",
		trace.WithAttributes(attribute.String("payment.pidx", pidx)))
	defer span.End()

	result, err := s.settle(ctx, pidx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("payment.credited", result.Credited))
	if result.Purchase != nil {
		span.SetAttributes(attribute.String("purchase.status", string(result.Purchase.Status)))
	}
	return result, nil
}

func (s *Service) settle(ctx context.Context, pidx string) (*Settlement, error) {
	purchase, err := s.store.GetPurchaseByPidx(ctx, pidx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPayment, pidx)
	}
	if err != nil {
		return nil, err
	}
	if purchase.Status != storage.PurchasePending {
		return &Settlement{Purchase: purchase}, nil
	}

	lookup, err := s.gateway.Lookup(ctx, pidx)
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment: %w", err)
	}

	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"pidx":           pidx,
		"purchase_id":    purchase.ID,
		"gateway_status": string(lookup.Status),
	})

	switch lookup.Status {
	case payments.StatusCompleted:
		if lookup.TotalAmount != purchase.AmountPaisa {
			logger.WithField("total_amount", lookup.TotalAmount).Error("paid amount does not match purchase")
			return s.fail(ctx, pidx, "amount mismatch")
		}
		settled, err := s.store.CompletePurchase(ctx, pidx, lookup.Transaction())
		if errors.Is(err, storage.ErrAlreadySettled) {
			return &Settlement{Purchase: settled}, nil
		}
		if err != nil {
			return nil, err
		}
		s.invalidate(ctx, settled.UserID)
		s.metrics.PurchaseSettled(string(storage.PurchaseCompleted), settled.Credits)
		logger.WithField("credits", settled.Credits).Info("purchase completed")
		return &Settlement{Purchase: settled, Credited: true}, nil

	case payments.StatusExpired, payments.StatusUserCanceled, payments.StatusRefunded, payments.StatusPartialRefund:
		logger.Info("purchase failed")
		return s.fail(ctx, pidx, string(lookup.Status))

	default:
		logger.Debug("payment not final yet")
		return &Settlement{Purchase: purchase}, nil
	}
}

func (s *Service) fail(ctx context.Context, pidx, gatewayStatus string) (*Settlement, error) {
	failed, err := s.store.FailPurchase(ctx, pidx, gatewayStatus)
	if errors.Is(err, storage.ErrAlreadySettled) {
		return &Settlement{Purchase: failed}, nil
	}
	if err != nil {
		return nil, err
	}
	s.metrics.PurchaseSettled(string(storage.PurchaseFailed), 0)
	return &Settlement{Purchase: failed}, nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}
