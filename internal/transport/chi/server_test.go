package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Jikima/VBot/internal/domain"
	domledger "github.com/Jikima/VBot/internal/domain/ledger"
	"github.com/Jikima/VBot/internal/domain/pricing"
	"github.com/Jikima/VBot/internal/domain/usage"
	budgetuc "github.com/Jikima/VBot/internal/usecase/budget"
	dedupuc "github.com/Jikima/VBot/internal/usecase/dedup"
	healthuc "github.com/Jikima/VBot/internal/usecase/health"
	uledger "github.com/Jikima/VBot/internal/usecase/ledger"
	meteruc "github.com/Jikima/VBot/internal/usecase/meter"
	relayuc "github.com/Jikima/VBot/internal/usecase/relay"
)

// --- Mocks ---

type mockLedgerStore struct {
	mu      sync.Mutex
	records map[string]*domledger.Ledger
	saveErr error
}

func newMockLedgerStore() *mockLedgerStore {
	return &mockLedgerStore{records: make(map[string]*domledger.Ledger)}
}

func (m *mockLedgerStore) Load(_ context.Context, identity string) (*domledger.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.records[identity]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockLedgerStore) Save(_ context.Context, l *domledger.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *l
	m.records[l.Identity] = &cp
	return nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

type fakeChat struct {
	completion domain.ChatCompletion
	err        error
}

func (f *fakeChat) Complete(_ context.Context, _ []domain.ChatMessage) (domain.ChatCompletion, error) {
	if f.err != nil {
		return domain.ChatCompletion{}, f.err
	}
	return f.completion, nil
}

type fakeTranscriber struct {
	transcript domain.Transcript
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ domain.AudioInput) (domain.Transcript, error) {
	return f.transcript, nil
}

type fakeImages struct {
	image domain.GeneratedImage
}

func (f *fakeImages) GenerateImage(_ context.Context, _, _ string) (domain.GeneratedImage, error) {
	return f.image, nil
}

type mockKV struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *mockKV) SetNX(_ context.Context, key string, _ []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

// --- Fixture ---

type fixture struct {
	router http.Handler
	server *Server
	store  *mockLedgerStore
	pinger *fakePinger
	chat   *fakeChat
}

func defaultPolicy() budgetuc.Policy {
	return budgetuc.Policy{
		Period:         usage.PeriodDay,
		AdminIDs:       []string{"1"},
		AllowedIDs:     []string{"42"},
		Allowances:     []float64{10},
		GuestAllowance: 2,
	}
}

func newFixture(policy budgetuc.Policy) *fixture {
	logger := zap.NewNop()
	store := newMockLedgerStore()

	day, _ := time.Parse("2006-01-02", "2025-07-14")
	prices := pricing.Table{
		ChatPerThousandTokens:  0.002,
		TranscriptionPerMinute: 0.006,
		Image:                  [pricing.TierCount]float64{0.016, 0.018, 0.02},
	}
	registry := uledger.NewRegistry(store, prices, logger).
		WithClock(func() time.Time { return day })

	gate := budgetuc.New(policy, registry, logger)
	meter := meteruc.New(registry, gate, logger)

	chat := &fakeChat{completion: domain.ChatCompletion{Content: "hi there", TotalTokens: 1000}}
	relay := relayuc.New(relayuc.Providers{
		Chat:        chat,
		Transcriber: &fakeTranscriber{transcript: domain.Transcript{Text: "hello", DurationSeconds: 100}},
		Images:      &fakeImages{image: domain.GeneratedImage{URL: "https://img.example/1.png"}},
	}, gate, meter, logger)

	pinger := &fakePinger{}
	server := NewServer(meter, relay, gate, healthuc.New(pinger, nil), logger)

	r := chi.NewRouter()
	server.Register(r)

	return &fixture{router: r, server: server, store: store, pinger: pinger, chat: chat}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeAs[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// --- Events ---

func TestRecordEvent_BillsAndReports(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "POST", "/api/v1/events",
		`{"identity":"42","display_name":"john_doe","kind":"chat_tokens","tokens":1000}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	receipt := decodeAs[receiptResponse](t, rr)
	if !almost(receipt.Cost, 0.002) {
		t.Errorf("cost = %v, want 0.002", receipt.Cost)
	}
	if receipt.Remaining == nil || !almost(*receipt.Remaining, 9.998) {
		t.Errorf("remaining = %v, want 9.998", receipt.Remaining)
	}

	rr = f.do(t, "GET", "/api/v1/identities/42/usage", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("usage status = %d, body %s", rr.Code, rr.Body.String())
	}
	report := decodeAs[usageResponse](t, rr)
	if report.Identity != "42" || report.DisplayName != "john_doe" {
		t.Errorf("identity = %s/%s", report.Identity, report.DisplayName)
	}
	if report.Today.ChatTokens != 1000 {
		t.Errorf("today chat tokens = %d, want 1000", report.Today.ChatTokens)
	}
	if !almost(report.Costs.Day, 0.002) {
		t.Errorf("day cost = %v, want 0.002", report.Costs.Day)
	}
	if !almost(report.Budget.Spent, 0.002) {
		t.Errorf("budget spent = %v, want 0.002", report.Budget.Spent)
	}

	rr = f.do(t, "GET", "/api/v1/identities/42/budget", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("budget status = %d", rr.Code)
	}
	b := decodeAs[budgetResponse](t, rr)
	if !b.WithinBudget {
		t.Errorf("within_budget = false, want true")
	}
	if b.Remaining == nil || !almost(*b.Remaining, 9.998) {
		t.Errorf("remaining = %v, want 9.998", b.Remaining)
	}
	if b.Period != "day" {
		t.Errorf("period = %q, want day", b.Period)
	}
}

func TestRecordEvent_InvalidKind(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "POST", "/api/v1/events", `{"identity":"42","kind":"bogus"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	errResp := decodeAs[errorResponse](t, rr)
	if errResp.Code != codeValidationFailed {
		t.Errorf("code = %s, want %s", errResp.Code, codeValidationFailed)
	}
}

func TestRecordEvent_MalformedBody(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "POST", "/api/v1/events", `{broken`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	errResp := decodeAs[errorResponse](t, rr)
	if errResp.Code != codeBadRequest {
		t.Errorf("code = %s, want %s", errResp.Code, codeBadRequest)
	}
}

func TestRecordEvent_MissingIdentity(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "POST", "/api/v1/events", `{"kind":"chat_tokens","tokens":10}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestRecordEvent_StorageError(t *testing.T) {
	f := newFixture(defaultPolicy())
	f.store.saveErr = &domain.StorageError{Op: "save", Err: errors.New("disk full")}

	rr := f.do(t, "POST", "/api/v1/events", `{"identity":"42","kind":"chat_tokens","tokens":1000}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (body %s)", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Errorf("Retry-After header missing")
	}
	errResp := decodeAs[errorResponse](t, rr)
	if errResp.Code != codeStorageUnavailable {
		t.Errorf("code = %s, want %s", errResp.Code, codeStorageUnavailable)
	}
}

func TestRecordEvent_IdempotencyReplay(t *testing.T) {
	f := newFixture(defaultPolicy())
	f.server.WithDedup(dedupuc.New(&mockKV{}, time.Hour))

	body := `{"identity":"42","kind":"chat_tokens","tokens":1000}`

	req := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "evt-1")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("first status = %d", rr.Code)
	}

	req = httptest.NewRequest("POST", "/api/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "evt-1")
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("replay status = %d", rr.Code)
	}
	receipt := decodeAs[receiptResponse](t, rr)
	if !receipt.Duplicate {
		t.Errorf("replay did not report duplicate")
	}

	rr = f.do(t, "GET", "/api/v1/identities/42/usage", "")
	report := decodeAs[usageResponse](t, rr)
	if report.Today.ChatTokens != 1000 {
		t.Errorf("tokens = %d after replay, want 1000 (single billing)", report.Today.ChatTokens)
	}
}

// --- Budget ---

func TestGetBudget_AdminUnlimited(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "GET", "/api/v1/identities/1/budget", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	b := decodeAs[budgetResponse](t, rr)
	if !b.Unlimited {
		t.Errorf("unlimited = false for an admin")
	}
	if b.Allowance != nil || b.Remaining != nil {
		t.Errorf("unlimited budget should omit allowance and remaining")
	}
	if !b.WithinBudget {
		t.Errorf("within_budget = false for an admin")
	}
}

func TestGetBudget_UnknownIdentity(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "GET", "/api/v1/identities/13/budget", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	errResp := decodeAs[errorResponse](t, rr)
	if errResp.Code != codeNoAllowance {
		t.Errorf("code = %s, want %s", errResp.Code, codeNoAllowance)
	}
}

func TestGetBudget_GuestPool(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "GET", "/api/v1/identities/13/budget?group=true", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	b := decodeAs[budgetResponse](t, rr)
	if b.Allowance == nil || !almost(*b.Allowance, 2) {
		t.Errorf("allowance = %v, want the 2.00 guest pool", b.Allowance)
	}
}

func TestGetUsage_InvalidGroupParam(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "GET", "/api/v1/identities/42/usage?group=banana", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

// --- Relay ---

func TestRelayChat_Success(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "POST", "/api/v1/relay/chat",
		`{"identity":"42","display_name":"john_doe","messages":[{"role":"user","content":"hello"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeAs[chatRelayResponse](t, rr)
	if resp.Content != "hi there" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.TotalTokens != 1000 {
		t.Errorf("total tokens = %d, want 1000", resp.TotalTokens)
	}
	if got := rr.Header().Get("X-Usage-Cost"); got != "0.002" {
		t.Errorf("X-Usage-Cost = %q, want 0.002", got)
	}
	if got := rr.Header().Get("X-Budget-Remaining"); got != "9.998" {
		t.Errorf("X-Budget-Remaining = %q, want 9.998", got)
	}
}

func TestRelayChat_NotAllowed(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "POST", "/api/v1/relay/chat",
		`{"identity":"13","messages":[{"role":"user","content":"hello"}]}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	errResp := decodeAs[errorResponse](t, rr)
	if errResp.Code != codeNotAllowed {
		t.Errorf("code = %s, want %s", errResp.Code, codeNotAllowed)
	}
}

func TestRelayChat_BudgetExhausted(t *testing.T) {
	policy := defaultPolicy()
	policy.Allowances = []float64{0}
	f := newFixture(policy)

	rr := f.do(t, "POST", "/api/v1/relay/chat",
		`{"identity":"42","messages":[{"role":"user","content":"hello"}]}`)
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rr.Code)
	}
	errResp := decodeAs[errorResponse](t, rr)
	if errResp.Code != codeBudgetExceeded {
		t.Errorf("code = %s, want %s", errResp.Code, codeBudgetExceeded)
	}
}

func TestRelayChat_ProviderDown(t *testing.T) {
	f := newFixture(defaultPolicy())
	f.chat.err = domain.ErrProviderError

	rr := f.do(t, "POST", "/api/v1/relay/chat",
		`{"identity":"42","messages":[{"role":"user","content":"hello"}]}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestRelayTranscription_Success(t *testing.T) {
	f := newFixture(defaultPolicy())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "note.ogg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("fake voice bytes")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = mw.WriteField("identity", "42")
	_ = mw.WriteField("display_name", "john_doe")
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/relay/transcriptions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeAs[transcriptResponse](t, rr)
	if resp.Text != "hello" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.DurationSeconds != 100 {
		t.Errorf("duration = %v, want 100", resp.DurationSeconds)
	}
	if got := rr.Header().Get("X-Usage-Cost"); got != "0.01" {
		t.Errorf("X-Usage-Cost = %q, want 0.01", got)
	}
}

func TestRelayImage_Success(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "POST", "/api/v1/relay/images",
		`{"identity":"42","prompt":"a red cat","size":"512x512"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	resp := decodeAs[imageRelayResponse](t, rr)
	if resp.URL != "https://img.example/1.png" {
		t.Errorf("url = %q", resp.URL)
	}
	if got := rr.Header().Get("X-Usage-Cost"); got != "0.018" {
		t.Errorf("X-Usage-Cost = %q, want the exact 512x512 price", got)
	}
}

func TestRelayImage_UnknownSize(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "POST", "/api/v1/relay/images",
		`{"identity":"42","prompt":"a red cat","size":"640x480"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	rr = f.do(t, "GET", "/api/v1/identities/42/usage", "")
	report := decodeAs[usageResponse](t, rr)
	for _, n := range report.Today.Images {
		if n != 0 {
			t.Errorf("image billed for a rejected size: %v", report.Today.Images)
		}
	}
}

func TestRelayChat_NoProvider(t *testing.T) {
	logger := zap.NewNop()

	// Rebuild the relay with no providers configured.
	store := newMockLedgerStore()
	registry := uledger.NewRegistry(store, pricing.Table{}, logger)
	gate := budgetuc.New(defaultPolicy(), registry, logger)
	meter := meteruc.New(registry, gate, logger)
	relay := relayuc.New(relayuc.Providers{}, gate, meter, logger)
	server := NewServer(meter, relay, gate, healthuc.New(&fakePinger{}, nil), logger)
	r := chi.NewRouter()
	server.Register(r)

	req := httptest.NewRequest("POST", "/api/v1/relay/chat",
		strings.NewReader(`{"identity":"42","messages":[{"role":"user","content":"hello"}]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rr.Code)
	}
}

// --- Health and metrics ---

func TestHealth_OK(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decodeAs[healthResponse](t, rr)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Checks["storage"] != "ok" {
		t.Errorf("storage check = %q", resp.Checks["storage"])
	}
}

func TestHealth_StoreDown(t *testing.T) {
	f := newFixture(defaultPolicy())
	f.pinger.err = errors.New("read-only fs")

	rr := f.do(t, "GET", "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	resp := decodeAs[healthResponse](t, rr)
	if resp.Status != "error" {
		t.Errorf("status = %q, want error", resp.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(defaultPolicy())

	rr := f.do(t, "GET", "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}
