package statemachine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/escrow-settlement/internal/config"
	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/domain/outbox"
	"github.com/escrow-settlement/internal/platform/gateway"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memoryStore is an in-memory escrow.Repository with the same conditional
// update rule as the postgres repository
type memoryStore struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]escrow.Transaction
	updateErr error
	// interleave lets a test slip in a competing write before the next unit of work
	interleave func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byID: map[uuid.UUID]escrow.Transaction{}}
}

func (m *memoryStore) WithTx(pgx.Tx) escrow.Repository { return m }

func (m *memoryStore) Create(_ context.Context, t *escrow.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.TxRef == t.TxRef {
			return escrow.ErrDuplicateTxRef{TxRef: t.TxRef}
		}
	}
	m.byID[t.ID] = *t
	return nil
}

func (m *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*escrow.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return nil, &escrow.NotFoundError{TxRef: id.String()}
	}
	return &t, nil
}

func (m *memoryStore) GetByTxRef(_ context.Context, txRef string) (*escrow.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byID {
		if t.TxRef == txRef {
			t := t
			return &t, nil
		}
	}
	return nil, &escrow.NotFoundError{TxRef: txRef}
}

func (m *memoryStore) ListByPayee(_ context.Context, payeeID string) ([]*escrow.Transaction, error) {
	return m.filter(func(t escrow.Transaction) bool { return t.Payee.ID == payeeID }, func(a, b escrow.Transaction) bool {
		return a.CreatedAt.After(b.CreatedAt)
	}, 0), nil
}

func (m *memoryStore) ListSettleable(_ context.Context, now time.Time, maxAttempts, limit int) ([]*escrow.Transaction, error) {
	return m.filter(func(t escrow.Transaction) bool { return t.IsSettleable(now, maxAttempts) }, func(a, b escrow.Transaction) bool {
		return a.HoldUntil.Before(b.HoldUntil)
	}, limit), nil
}

func (m *memoryStore) ListExpiredPending(_ context.Context, createdBefore time.Time, limit int) ([]*escrow.Transaction, error) {
	return m.filter(func(t escrow.Transaction) bool {
		return t.Status == escrow.StatusPending && t.CreatedAt.Before(createdBefore)
	}, func(a, b escrow.Transaction) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	}, limit), nil
}

func (m *memoryStore) Update(_ context.Context, t *escrow.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.byID[t.ID]
	if !ok || stored.Version != t.Version-1 {
		return escrow.ErrConcurrentModification{TransactionID: t.ID}
	}
	m.byID[t.ID] = *t
	return nil
}

func (m *memoryStore) filter(keep func(escrow.Transaction) bool, less func(a, b escrow.Transaction) bool, limit int) []*escrow.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*escrow.Transaction
	for _, t := range m.byID {
		if keep(t) {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(*out[i], *out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// bump applies a competing write straight to the store
func (m *memoryStore) bump(id uuid.UUID, mutate func(t *escrow.Transaction)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byID[id]
	mutate(&t)
	t.Version++
	m.byID[id] = t
}

type memoryOutbox struct {
	mu       sync.Mutex
	messages []*outbox.Message
	err      error
}

func (o *memoryOutbox) WithTx(pgx.Tx) outbox.Repository { return o }

func (o *memoryOutbox) Create(_ context.Context, message *outbox.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	message.ID = int64(len(o.messages) + 1)
	o.messages = append(o.messages, message)
	return nil
}

func (o *memoryOutbox) GetPending(context.Context, int) ([]*outbox.Message, error) {
	return nil, errors.New("not used")
}

func (o *memoryOutbox) UpdateStatus(context.Context, int64, outbox.Status) error { return nil }

func (o *memoryOutbox) IncrementAttempts(context.Context, int64) error { return nil }

func (o *memoryOutbox) eventTypes() []escrow.EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	types := make([]escrow.EventType, 0, len(o.messages))
	for _, m := range o.messages {
		types = append(types, m.EventType)
	}
	return types
}

// memoryTx runs the unit of work directly. A failed unit of work restores
// the store snapshot taken before it ran.
type memoryTx struct {
	store  *memoryStore
	outbox *memoryOutbox
}

func (x *memoryTx) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	if hook := x.store.interleave; hook != nil {
		x.store.interleave = nil
		hook()
	}

	x.store.mu.Lock()
	snapshot := make(map[uuid.UUID]escrow.Transaction, len(x.store.byID))
	for k, v := range x.store.byID {
		snapshot[k] = v
	}
	x.store.mu.Unlock()

	x.outbox.mu.Lock()
	sent := len(x.outbox.messages)
	x.outbox.mu.Unlock()

	if err := fn(nil); err != nil {
		x.store.mu.Lock()
		x.store.byID = snapshot
		x.store.mu.Unlock()
		x.outbox.mu.Lock()
		x.outbox.messages = x.outbox.messages[:sent]
		x.outbox.mu.Unlock()
		return err
	}
	return nil
}

type fakeGateway struct {
	mu           sync.Mutex
	initErr      error
	verification *gateway.Verification
	verifyErr    error
	initCalls    []gateway.PaymentRequest
	verifyCalls  []string
}

func (g *fakeGateway) InitializePayment(_ context.Context, req gateway.PaymentRequest) (*gateway.PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls = append(g.initCalls, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &gateway.PaymentSession{Status: "success", Message: "Hosted Link", Link: "https://checkout.example/" + req.TxRef}, nil
}

func (g *fakeGateway) VerifyPayment(_ context.Context, externalID string) (*gateway.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls = append(g.verifyCalls, externalID)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verification, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testSecret = "whsec-test"

type harness struct {
	svc     *Service
	store   *memoryStore
	outbox  *memoryOutbox
	gateway *fakeGateway
	clock   *clock
	logs    *bytes.Buffer
}

func testConfig() *config.Config {
	return &config.Config{
		Escrow: config.EscrowConfig{
			HoldPeriod:    72 * time.Hour,
			Currency:      "NGN",
			WebhookSecret: testSecret,
		},
		Settlement: config.SettlementConfig{MaxTransferAttempts: 3},
	}
}

func newHarness(cfg *config.Config) *harness {
	store := newMemoryStore()
	ob := &memoryOutbox{}
	gw := &fakeGateway{}
	clk := &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	svc := NewService(logger, &memoryTx{store: store, outbox: ob}, store, ob, gw, cfg)
	svc.now = clk.Now

	return &harness{svc: svc, store: store, outbox: ob, gateway: gw, clock: clk, logs: logs}
}

func (h *harness) initialize(amount int64, payeeID string) string {
	res, err := h.svc.Initialize(context.Background(), InitializeRequest{
		Amount: amount,
		Client: escrow.Client{Name: "Ada Obi", Email: "ada@example.com", Phone: "08000000000"},
		Payee:  escrow.Payee{ID: payeeID, ExternalAccountID: "MERCH-" + payeeID},
	})
	if err != nil {
		panic(err)
	}
	return res.TxRef
}

// logLine returns the first JSON log record with the given message
func (h *harness) logLine(msg string) map[string]interface{} {
	for _, line := range bytes.Split(bytes.TrimSpace(h.logs.Bytes()), []byte("\n")) {
		var entry map[string]interface{}
		if err := json.Unmarshal(line, &entry); err == nil && entry["msg"] == msg {
			return entry
		}
	}
	return nil
}
