package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mindfulmate/mindful/pkg/payments"
	"github.com/mindfulmate/mindful/pkg/storage"
)

// fakeGateway hands out sequential pidx values and reports whatever status
// the test assigns to each
type fakeGateway struct {
	mu          sync.Mutex
	initiated   []payments.InitiateRequest
	lookups     map[string]int
	statuses    map[string]*payments.LookupResponse
	initiateErr error
	lookupErr   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		lookups:  make(map[string]int),
		statuses: make(map[string]*payments.LookupResponse),
	}
}

func (g *fakeGateway) Initiate(_ context.Context, req payments.InitiateRequest) (*payments.InitiateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	g.initiated = append(g.initiated, req)
	pidx := fmt.Sprintf("pidx-%d", len(g.initiated))
	g.statuses[pidx] = &payments.LookupResponse{Pidx: pidx, TotalAmount: req.Amount, Status: payments.StatusInitiated}
	return &payments.InitiateResponse{Pidx: pidx, PaymentURL: "https://pay.khalti.test/?pidx=" + pidx}, nil
}

func (g *fakeGateway) Lookup(_ context.Context, pidx string) (*payments.LookupResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups[pidx]++
	if g.lookupErr != nil {
		return nil, g.lookupErr
	}
	resp, ok := g.statuses[pidx]
	if !ok {
		return nil, &payments.GatewayError{StatusCode: 404, Detail: "Not found."}
	}
	out := *resp
	return &out, nil
}

func (g *fakeGateway) set(pidx string, status payments.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[pidx].Status = status
	if status == payments.StatusCompleted {
		txn := "txn-" + pidx
		g.statuses[pidx].TransactionID = &txn
	}
}

func (g *fakeGateway) lookupCount(pidx string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookups[pidx]
}

type recordingInvalidator struct {
	mu    sync.Mutex
	users []int64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

type fixture struct {
	store   *storage.SQLStore
	gateway *fakeGateway
	cache   *recordingInvalidator
	service *Service
	user    *storage.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := storage.Open(ctx, storage.Options{
		Driver: "sqlite3",
		URL:    fmt.Sprintf("file:billing_%s?mode=memory&cache=shared&_foreign_keys=on", name),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.NewSQLStore(db, "sqlite3")
	require.NoError(t, store.Migrate(ctx))

	user := &storage.User{Email: "asha@example.com", Name: "Asha", ChatCount: 3}
	require.NoError(t, store.CreateUser(ctx, user))

	gateway := newFakeGateway()
	inv := &recordingInvalidator{}
	svc := NewService(store, gateway, Config{
		UnitPrice:    25,
		MaxCredits:   500,
		ReturnURL:    "http://localhost:8080/api/payments/khalti/return",
		WebsiteURL:   "http://localhost:5173",
		SweepAge:     time.Minute,
		SweepWorkers: 2,
	}, inv, nil)

	return &fixture{store: store, gateway: gateway, cache: inv, service: svc, user: user}
}

func (f *fixture) balance(t *testing.T) int {
	t.Helper()
	n, err := f.store.ChatCount(context.Background(), f.user.ID)
	require.NoError(t, err)
	return n
}

func TestConfig_AmountPaisa(t *testing.T) {
	cfg := Config{UnitPrice: 25}
	assert.Equal(t, int64(2500), cfg.AmountPaisa(1))
	assert.Equal(t, int64(25000), cfg.AmountPaisa(10))
}

func TestInitiate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		credits int
		amount  int64
		field   string
	}{
		{"zero credits", 0, 0, "chat_credits"},
		{"negative credits", -2, -5000, "chat_credits"},
		{"over max", 501, 501 * 2500, "chat_credits"},
		{"amount in rupees", 10, 250, "amount"},
		{"amount mismatch", 10, 24900, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Initiate(ctx, f.user.ID, tt.credits, tt.amount)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
	assert.Empty(t, f.gateway.initiated)
}

func TestInitiate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checkout, err := f.service.Initiate(ctx, f.user.ID, 10, 25000)
	require.NoError(t, err)
	assert.Equal(t, "pidx-1", checkout.Pidx)
	assert.Equal(t, "https://pay.khalti.test/?pidx=pidx-1", checkout.PaymentURL)
	assert.NotEmpty(t, checkout.OrderID)

	require.Len(t, f.gateway.initiated, 1)
	req := f.gateway.initiated[0]
	assert.Equal(t, int64(25000), req.Amount)
	assert.Equal(t, checkout.OrderID, req.PurchaseOrderID)
	assert.Equal(t, "10 message credits", req.PurchaseOrderName)
	assert.Equal(t, "http://localhost:8080/api/payments/khalti/return", req.ReturnURL)
	require.NotNil(t, req.CustomerInfo)
	assert.Equal(t, "asha@example.com", req.CustomerInfo.Email)

	p, err := f.store.GetPurchaseByPidx(ctx, "pidx-1")
	require.NoError(t, err)
	assert.Equal(t, storage.PurchasePending, p.Status)
	assert.Equal(t, 10, p.Credits)
	assert.Equal(t, 3, f.balance(t))
}

func TestInitiate_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Initiate(context.Background(), 9999, 1, 2500)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, f.gateway.initiated)
}

func TestInitiate_GatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.initiateErr = &payments.GatewayError{StatusCode: 401, Detail: "Invalid token."}

	_, err := f.service.Initiate(context.Background(), f.user.ID, 1, 2500)
	var initErr *InitiationError
	require.ErrorAs(t, err, &initErr)
	var gwErr *payments.GatewayError
	assert.ErrorAs(t, err, &gwErr)
}

func TestSettle_CompletedCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checkout, err := f.service.Initiate(ctx, f.user.ID, 10, 25000)
	require.NoError(t, err)
	f.gateway.set(checkout.Pidx, payments.StatusCompleted)

	first, err := f.service.Settle(ctx, checkout.Pidx)
	require.NoError(t, err)
	assert.True(t, first.Credited)
	assert.Equal(t, storage.PurchaseCompleted, first.Purchase.Status)
	assert.Equal(t, "txn-"+checkout.Pidx, first.Purchase.TransactionID)
	assert.Equal(t, 13, f.balance(t))
	assert.Equal(t, []int64{f.user.ID}, f.cache.users)

	second, err := f.service.Settle(ctx, checkout.Pidx)
	require.NoError(t, err)
	assert.False(t, second.Credited)
	assert.Equal(t, 13, f.balance(t))
	assert.Equal(t, 1, f.gateway.lookupCount(checkout.Pidx))
}

func TestSettle_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	f := newFixture(t)
	ctx := context.Background()

	checkout, err := f.service.Initiate(ctx, f.user.ID, 2, 5000)
	require.NoError(t, err)
	f.gateway.set(checkout.Pidx, payments.StatusCompleted)

	_, err = f.service.Settle(ctx, checkout.Pidx)
	require.NoError(t, err)
	_, err = f.service.Settle(ctx, "missing")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "billing.Settle", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("payment.pidx", checkout.Pidx))
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("payment.credited", true))
	assert.Contains(t, spans[0].Attributes(), attribute.String("purchase.status", "completed"))

	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestSettle_ConcurrentReturns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checkout, err := f.service.Initiate(ctx, f.user.ID, 5, 12500)
	require.NoError(t, err)
	f.gateway.set(checkout.Pidx, payments.StatusCompleted)

	var wg sync.WaitGroup
	var mu sync.Mutex
	credited := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := f.service.Settle(ctx, checkout.Pidx)
			if err == nil && s.Credited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited)
	assert.Equal(t, 8, f.balance(t))
}

func TestSettle_NonFinalStatuses(t *testing.T) {
	for _, status := range []payments.Status{payments.StatusPending, payments.StatusInitiated} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			checkout, err := f.service.Initiate(ctx, f.user.ID, 2, 5000)
			require.NoError(t, err)
			f.gateway.set(checkout.Pidx, status)

			s, err := f.service.Settle(ctx, checkout.Pidx)
			require.NoError(t, err)
			assert.False(t, s.Credited)
			assert.Equal(t, storage.PurchasePending, s.Purchase.Status)
			assert.Equal(t, 3, f.balance(t))
		})
	}
}

func TestSettle_FailedStatuses(t *testing.T) {
	for _, status := range []payments.Status{payments.StatusExpired, payments.StatusUserCanceled, payments.StatusRefunded} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			checkout, err := f.service.Initiate(ctx, f.user.ID, 2, 5000)
			require.NoError(t, err)
			f.gateway.set(checkout.Pidx, status)

			s, err := f.service.Settle(ctx, checkout.Pidx)
			require.NoError(t, err)
			assert.False(t, s.Credited)
			assert.Equal(t, storage.PurchaseFailed, s.Purchase.Status)
			assert.Equal(t, string(status), s.Purchase.GatewayStatus)
			assert.Equal(t, 3, f.balance(t))
			assert.Empty(t, f.cache.users)
		})
	}
}

func TestSettle_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checkout, err := f.service.Initiate(ctx, f.user.ID, 2, 5000)
	require.NoError(t, err)
	f.gateway.set(checkout.Pidx, payments.StatusCompleted)
	f.gateway.statuses[checkout.Pidx].TotalAmount = 1000

	s, err := f.service.Settle(ctx, checkout.Pidx)
	require.NoError(t, err)
	assert.False(t, s.Credited)
	assert.Equal(t, storage.PurchaseFailed, s.Purchase.Status)
	assert.Equal(t, 3, f.balance(t))
}

func TestSettle_UnknownPidx(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Settle(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownPayment)
	assert.Zero(t, f.gateway.lookupCount("nope"))
}

func TestSettle_LookupError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checkout, err := f.service.Initiate(ctx, f.user.ID, 1, 2500)
	require.NoError(t, err)
	f.gateway.lookupErr = errors.New("connection reset")

	_, err = f.service.Settle(ctx, checkout.Pidx)
	require.Error(t, err)

	p, err := f.store.GetPurchaseByPidx(ctx, checkout.Pidx)
	require.NoError(t, err)
	assert.Equal(t, storage.PurchasePending, p.Status)
}

func TestSweepPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var pidxs []string
	for i := 0; i < 4; i++ {
		checkout, err := f.service.Initiate(ctx, f.user.ID, 1, 2500)
		require.NoError(t, err)
		pidxs = append(pidxs, checkout.Pidx)
	}
	f.gateway.set(pidxs[0], payments.StatusCompleted)
	f.gateway.set(pidxs[1], payments.StatusCompleted)
	f.gateway.set(pidxs[2], payments.StatusExpired)
	// pidxs[3] stays Initiated

	result, err := f.service.SweepPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Checked, "fresh purchases are left alone")

	f.service.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	result, err = f.service.SweepPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SweepResult{Checked: 4, Completed: 2, Failed: 1}, result)
	assert.Equal(t, 5, f.balance(t))

	result, err = f.service.SweepPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 5, f.balance(t))
}

func TestSweepPending_CountsErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Initiate(ctx, f.user.ID, 1, 2500)
	require.NoError(t, err)
	f.gateway.lookupErr = errors.New("timeout")
	f.service.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }

	result, err := f.service.SweepPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
}

func TestSchedule(t *testing.T) {
	f := newFixture(t)
	c := cron.New()

	id, err := f.service.Schedule(c, "@every 5m")
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)

	_, err = f.service.Schedule(c, "not a schedule")
	assert.Error(t, err)
}
