package endpoints_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"git.sr.ht/~aondrejcak/payout-api/claims"
	"git.sr.ht/~aondrejcak/payout-api/endpoints"
	"git.sr.ht/~aondrejcak/payout-api/endpoints/payments"
	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/ledger"
	"git.sr.ht/~aondrejcak/payout-api/ledger/ledgertest"
	"git.sr.ht/~aondrejcak/payout-api/models"
	"git.sr.ht/~aondrejcak/payout-api/orchestrator"
	"git.sr.ht/~aondrejcak/payout-api/rates"
	"git.sr.ht/~aondrejcak/payout-api/settlement"
	"git.sr.ht/~aondrejcak/payout-api/webhooks"
	"git.sr.ht/~aondrejcak/payout-api/workqueue"
)

const webhookSecret = "whsec_router"

type server struct {
	t      *testing.T
	router *gin.Engine
	store  *ledger.Store
	pool   *workqueue.Pool
	apiKey string
}

func newServer(t *testing.T, apiKey string) *server {
	t.Helper()
	return newServerWithEnv(t, apiKey, nil)
}

func newServerWithEnv(t *testing.T, apiKey string, extra map[string]string) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := map[string]string{
		"DATABASE_DRIVER": "sqlite",
		"LOG_LEVEL":       "disabled",
		"WEBHOOK_SECRET":  webhookSecret,
	}
	for k, v := range extra {
		env[k] = v
	}
	if apiKey != "" {
		env["API_KEY_HASH"] = kernel.Sha512(apiKey)
	}
	art, err := kernel.FromEnv(func(k string) string { return env[k] })
	if err != nil {
		t.Fatal(err)
	}

	store := ledgertest.Open(t)
	art.DatabaseClient = store.DB()

	pool := workqueue.New(2, 32, zerolog.Nop())
	pool.Start(context.Background())
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	svc := orchestrator.New(orchestrator.ConfigFrom(art), orchestrator.Deps{
		Store:      store,
		Rates:      rates.Default(),
		Settlement: settlement.NewFake(),
		Pool:       pool,
		Diagnostic: art.Diagnostic,
		Logger:     zerolog.Nop(),
	})
	rec := webhooks.New(webhooks.Config{Secret: webhookSecret}, store, claims.NewMemory(), art.Diagnostic, zerolog.Nop())

	r, err := endpoints.NewRouter(art, endpoints.Services{Store: store, Payments: svc, Reconciler: rec})
	if err != nil {
		t.Fatal(err)
	}
	return &server{t: t, router: r, store: store, pool: pool, apiKey: apiKey}
}

func (s *server) do(method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	default:
		var err error
		if raw, err = json.Marshal(b); err != nil {
			s.t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *server) drain() {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.pool.Stop(ctx); err != nil {
		s.t.Fatal(err)
	}
}

func vendorBody(email string) map[string]any {
	return map[string]any{
		"name":  "Acme Supplies",
		"email": email,
		"bankAccount": map[string]any{
			"accountNumber": "123456789012",
			"routingNumber": "021000021",
			"bankName":      "First Bank",
			"accountHolder": "Acme Supplies Pte Ltd",
		},
	}
}

func (s *server) createVendor(email string) string {
	s.t.Helper()
	w, out := s.do(http.MethodPost, "/api/v1/vendors", vendorBody(email), nil)
	if w.Code != http.StatusCreated {
		s.t.Fatalf("create vendor: %d %s", w.Code, w.Body)
	}
	return out["id"].(string)
}

func TestVendorCreation(t *testing.T) {
	s := newServer(t, "")

	w, out := s.do(http.MethodPost, "/api/v1/vendors", vendorBody("AP@Acme.test"), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	bank := out["bankAccount"].(map[string]any)
	if bank["accountNumber"] != "****9012" || bank["currency"] != "USD" {
		t.Fatalf("bank account = %v", bank)
	}
	if out["status"] != "ACTIVE" || out["email"] != "ap@acme.test" {
		t.Fatalf("vendor = %v", out)
	}

	if w, out := s.do(http.MethodPost, "/api/v1/vendors", vendorBody("ap@acme.test"), nil); w.Code != http.StatusConflict || out["code"] != "DuplicateEmail" {
		t.Fatalf("duplicate email: %d %v", w.Code, out)
	}

	invalid := map[string]func(map[string]any){
		"email":   func(b map[string]any) { b["email"] = "not-an-email" },
		"name":    func(b map[string]any) { delete(b, "name") },
		"bank":    func(b map[string]any) { delete(b, "bankAccount") },
		"account": func(b map[string]any) { b["bankAccount"].(map[string]any)["accountNumber"] = "1234567" },
		"letters": func(b map[string]any) { b["bankAccount"].(map[string]any)["accountNumber"] = "12345678901a" },
		"routing": func(b map[string]any) { b["bankAccount"].(map[string]any)["routingNumber"] = "12345678" },
		"holder":  func(b map[string]any) { delete(b["bankAccount"].(map[string]any), "accountHolder") },
	}
	for name, mutate := range invalid {
		b := vendorBody(name + "@acme.test")
		mutate(b)
		if w, out := s.do(http.MethodPost, "/api/v1/vendors", b, nil); w.Code != http.StatusBadRequest || out["code"] != "ValidationError" {
			t.Errorf("%s: %d %v", name, w.Code, out)
		}
	}
	if w, _ := s.do(http.MethodPost, "/api/v1/vendors", []byte(`{"name":`), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", w.Code)
	}
}

func TestVendorReadAndStatus(t *testing.T) {
	s := newServer(t, "")
	id := s.createVendor("ap@acme.test")
	s.createVendor("billing@globex.test")

	w, out := s.do(http.MethodGet, "/api/v1/vendors/"+id, nil, nil)
	if w.Code != http.StatusOK || out["id"] != id {
		t.Fatalf("get: %d %v", w.Code, out)
	}
	if recent, ok := out["recentPayments"].([]any); !ok || len(recent) != 0 {
		t.Fatalf("recent payments = %v", out["recentPayments"])
	}
	if w, out := s.do(http.MethodGet, "/api/v1/vendors/"+ledger.NewID(), nil, nil); w.Code != http.StatusNotFound || out["code"] != "VendorNotFound" {
		t.Fatalf("unknown vendor: %d %v", w.Code, out)
	}

	w, out = s.do(http.MethodGet, "/api/v1/vendors?page=1&limit=1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body)
	}
	pg := out["pagination"].(map[string]any)
	if len(out["data"].([]any)) != 1 || pg["total"].(float64) != 2 || pg["totalPages"].(float64) != 2 {
		t.Fatalf("list = %v", out)
	}
	for _, q := range []string{"page=0", "limit=0", "limit=101", "page=x"} {
		if w, _ := s.do(http.MethodGet, "/api/v1/vendors?"+q, nil, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: %d", q, w.Code)
		}
	}

	path := "/api/v1/vendors/" + id + "/status"
	if w, _ := s.do(http.MethodPatch, path, map[string]any{"status": "CLOSED"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid status: %d", w.Code)
	}
	if w, _ := s.do(http.MethodPatch, "/api/v1/vendors/"+ledger.NewID()+"/status", map[string]any{"status": "INACTIVE"}, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown vendor: %d", w.Code)
	}
	w, out = s.do(http.MethodPatch, path, map[string]any{"status": "SUSPENDED"}, nil)
	if w.Code != http.StatusOK || out["status"] != "SUSPENDED" {
		t.Fatalf("update: %d %v", w.Code, out)
	}
}

func TestPaymentLifecycleOverHTTP(t *testing.T) {
	s := newServer(t, "")
	vendorID := s.createVendor("ap@acme.test")

	w, _ := s.do(http.MethodPost, "/api/v1/payments/generate-idempotency-key", nil, nil)
	var keyOut map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &keyOut)
	key := keyOut["idempotencyKey"]
	if w.Code != http.StatusOK || !kernel.IsUUID(key) {
		t.Fatalf("generate key: %d %s", w.Code, w.Body)
	}

	body := map[string]any{"vendorId": vendorID, "amountSgd": 1000.00, "customerReference": "INV-1"}
	headers := map[string]string{"Idempotency-Key": key}
	w, created := s.do(http.MethodPost, "/api/v1/payments", body, headers)
	if w.Code != http.StatusCreated {
		t.Fatalf("initiate: %d %s", w.Code, w.Body)
	}
	if created["status"] != "PENDING" || created["idempotencyKey"] != key || created["estimatedAmountUsd"] != "740" {
		t.Fatalf("initiate = %v", created)
	}
	paymentID := created["paymentId"].(string)

	w, replay := s.do(http.MethodPost, "/api/v1/payments", body, headers)
	if w.Code != http.StatusOK || replay["paymentId"] != paymentID {
		t.Fatalf("replay: %d %v", w.Code, replay)
	}

	s.drain()

	w, view := s.do(http.MethodGet, "/api/v1/payments/"+paymentID, nil, nil)
	if w.Code != http.StatusOK || view["status"] != "COMPLETED" {
		t.Fatalf("status: %d %v", w.Code, view)
	}
	txs := view["transactions"].([]any)
	if len(txs) != 4 {
		t.Fatalf("transactions = %d", len(txs))
	}
	for i, want := range models.SettlementSequence {
		if txs[i].(map[string]any)["type"] != string(want) {
			t.Fatalf("tx %d = %v", i, txs[i])
		}
	}
	if view["actualSettlementTime"] == nil || view["vendor"].(map[string]any)["id"] != vendorID {
		t.Fatalf("view = %v", view)
	}

	w, vendor := s.do(http.MethodGet, "/api/v1/vendors/"+vendorID, nil, nil)
	if w.Code != http.StatusOK || len(vendor["recentPayments"].([]any)) != 1 {
		t.Fatalf("vendor recent payments: %d %v", w.Code, vendor["recentPayments"])
	}

	if w, out := s.do(http.MethodGet, "/api/v1/payments/"+ledger.NewID(), nil, nil); w.Code != http.StatusNotFound || out["code"] != "PaymentNotFound" || out["traceId"] == nil {
		t.Fatalf("unknown payment: %d %v", w.Code, out)
	}
}

func TestPaymentRejections(t *testing.T) {
	s := newServer(t, "")
	vendorID := s.createVendor("ap@acme.test")

	cases := []struct {
		name   string
		body   map[string]any
		key    string
		status int
		code   string
	}{
		{"zero amount", map[string]any{"vendorId": vendorID, "amountSgd": 0}, "", 400, "ValidationError"},
		{"above ceiling", map[string]any{"vendorId": vendorID, "amountSgd": "1000000.01"}, "", 400, "ValidationError"},
		{"missing vendor", map[string]any{"amountSgd": 10}, "", 400, "ValidationError"},
		{"unknown vendor", map[string]any{"vendorId": ledger.NewID(), "amountSgd": 10}, "", 400, "VendorUnavailable"},
		{"malformed key", map[string]any{"vendorId": vendorID, "amountSgd": 10}, "abc-123", 400, "ValidationError"},
		{"ceiling accepted", map[string]any{"vendorId": vendorID, "amountSgd": "1000000"}, "", 201, ""},
	}
	for _, tc := range cases {
		headers := map[string]string{}
		if tc.key != "" {
			headers["Idempotency-Key"] = tc.key
		}
		w, out := s.do(http.MethodPost, "/api/v1/payments", tc.body, headers)
		if w.Code != tc.status || (tc.code != "" && out["code"] != tc.code) {
			t.Errorf("%s: %d %v", tc.name, w.Code, out)
		}
	}

	if w, _ := s.do(http.MethodPatch, "/api/v1/vendors/"+vendorID+"/status", map[string]any{"status": "INACTIVE"}, nil); w.Code != http.StatusOK {
		t.Fatal(w.Body)
	}
	w, out := s.do(http.MethodPost, "/api/v1/payments", map[string]any{"vendorId": vendorID, "amountSgd": 10}, nil)
	if w.Code != http.StatusBadRequest || out["code"] != "VendorUnavailable" {
		t.Fatalf("inactive vendor: %d %v", w.Code, out)
	}
}

func TestProviderWebhook(t *testing.T) {
	s := newServer(t, "")
	raw := []byte(`{"Type":"transfer.completed","Id":"evt_1","Data":{"id":"tr_missing"}}`)
	path := "/api/v1/webhooks/provider"

	w, out := s.do(http.MethodPost, path, raw, map[string]string{endpoints.SignatureHeader: "deadbeef"})
	if w.Code != http.StatusUnauthorized || out["code"] != "InvalidSignature" {
		t.Fatalf("bad signature: %d %v", w.Code, out)
	}
	if n, _ := s.store.CountWebhookEvents(context.Background()); n != 0 {
		t.Fatalf("%d events stored after a bad signature", n)
	}

	sig := map[string]string{endpoints.SignatureHeader: "sha256=" + kernel.HmacSha256(webhookSecret, raw)}
	if w, out := s.do(http.MethodPost, path, raw, sig); w.Code != http.StatusOK || out["status"] != "processed" {
		t.Fatalf("first delivery: %d %v", w.Code, out)
	}
	if w, out := s.do(http.MethodPost, path, raw, sig); w.Code != http.StatusOK || out["status"] != "already_processed" {
		t.Fatalf("replay: %d %v", w.Code, out)
	}

	bad := []byte(`{"Type":"transfer.completed"}`)
	if w, _ := s.do(http.MethodPost, path, bad, map[string]string{endpoints.SignatureHeader: kernel.HmacSha256(webhookSecret, bad)}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing id: %d", w.Code)
	}
}

func TestApiKeyRequiredWhenConfigured(t *testing.T) {
	s := newServer(t, "k3y")

	if w, _ := s.do(http.MethodGet, "/api/v1/vendors", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("valid key: %d %s", w.Code, w.Body)
	}
	for _, key := range []string{"", "wrong"} {
		if w, _ := s.do(http.MethodGet, "/api/v1/vendors", nil, map[string]string{"X-Api-Key": key}); w.Code != http.StatusUnauthorized {
			t.Errorf("key %q: %d", key, w.Code)
		}
	}
	// health and webhooks authenticate differently
	if w, _ := s.do(http.MethodGet, "/health", nil, map[string]string{"X-Api-Key": ""}); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
}

func TestHealthReportsDatabaseOutage(t *testing.T) {
	s := newServer(t, "")
	if w, out := s.do(http.MethodGet, "/api/v1/health", nil, nil); w.Code != http.StatusOK || out["database"] != "up" {
		t.Fatalf("healthy: %d %v", w.Code, out)
	}

	sqlDB, err := s.store.DB().DB()
	if err != nil {
		t.Fatal(err)
	}
	_ = sqlDB.Close()
	if w, _ := s.do(http.MethodGet, "/health", nil, nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("after close: %d", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t, "")
	if w, _ := s.do(http.MethodGet, "/api/v1/nope", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestReplayedInitiateAnswersOriginalPayment(t *testing.T) {
	s := newServer(t, "")
	vendorID := s.createVendor("replay@acme.test")
	key := kernel.IdempotencyKey()
	body := map[string]any{"vendorId": vendorID, "amountSgd": 250.50}
	headers := map[string]string{payments.IdempotencyHeader: key}

	w, first := s.do(http.MethodPost, "/api/v1/payments", body, headers)
	if w.Code != http.StatusCreated || w.Header().Get(payments.IdempotencyHeader) != key {
		t.Fatalf("initiate: %d %s", w.Code, w.Body)
	}

	// A different amount under the same key still answers the stored payment.
	body["amountSgd"] = 999
	w, replay := s.do(http.MethodPost, "/api/v1/payments", body, headers)
	if w.Code != http.StatusOK || w.Header().Get(payments.IdempotencyHeader) != key {
		t.Fatalf("replay: %d %s", w.Code, w.Body)
	}
	if replay["paymentId"] != first["paymentId"] || replay["idempotencyKey"] != key {
		t.Fatalf("replay = %v, first answer %v", replay, first)
	}
	if got := decimal.RequireFromString(replay["amountSgd"].(string)); !got.Equal(decimal.RequireFromString("250.50")) {
		t.Fatalf("replay amountSgd = %s", got)
	}
	s.drain()

	n, err := s.store.CountPayments(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("%d payments stored, err %v", n, err)
	}
}

func TestCorsOriginsFromConfig(t *testing.T) {
	preflight := func(s *server, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/payments", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	s := newServerWithEnv(t, "", map[string]string{"CORS_ORIGINS": "https://ops.example.test"})
	w := preflight(s, "https://ops.example.test")
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "https://ops.example.test" {
		t.Fatalf("allowed origin: %d %v", w.Code, w.Header())
	}
	if w := preflight(s, "https://evil.example.test"); w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin allowed: %v", w.Header())
	}

	plain := newServer(t, "")
	if w := preflight(plain, "https://ops.example.test"); w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("cors enabled without CORS_ORIGINS: %v", w.Header())
	}
}
