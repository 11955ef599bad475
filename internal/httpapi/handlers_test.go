package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ekameshwar10/Laundry-track/internal/domain"
	"github.com/ekameshwar10/Laundry-track/internal/ledger/memory"
	"github.com/ekameshwar10/Laundry-track/internal/service"
)

// newTestAPI builds a full API with an in-memory ledger, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	store := memory.NewSeeded()
	svc := service.New(store, nil, nil, time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, store)

	return New(svc, auth, "*")
}

func login(t *testing.T, api *API, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login as %s failed, status %d (body: %s)", username, res.Code, res.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

// doJSON fires an authenticated JSON request through the full handler stack,
// attaching a CSRF token for mutating methods.
func doJSON(t *testing.T, api *API, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func submitPayload(typ, customer string, items ...domain.ItemLine) domain.SubmitRecordRequest {
	return domain.SubmitRecordRequest{
		Customer:  customer,
		Type:      typ,
		Items:     items,
		InCharge:  "Front Desk",
		Signature: "data:image/png;base64,abc",
	}
}

func submitRecord(t *testing.T, api *API, token string, payload domain.SubmitRecordRequest) domain.Record {
	t.Helper()
	res := doJSON(t, api, http.MethodPost, "/api/v1/records", token, payload)
	if res.Code != http.StatusCreated {
		t.Fatalf("submit failed: %d %s", res.Code, res.Body.String())
	}
	var resp domain.RecordResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode record response: %v", err)
	}
	return resp.Record
}

func verifyRecord(t *testing.T, api *API, token, id string, payload domain.VerifyRecordRequest) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, api, http.MethodPost, "/api/v1/records/"+id+"/verify", token, payload)
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	body, _ := json.Marshal(domain.LoginRequest{Username: "collector1", Password: "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleRecords_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSubmitAndFetchRecord(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "collector1", "collect123")

	created := submitRecord(t, api, token, submitPayload(domain.TypeCollection, "abc",
		domain.ItemLine{Name: "Shirt", Qty: 5}))
	if created.VerificationStatus != domain.StatusPending {
		t.Fatalf("expected pending record, got %s", created.VerificationStatus)
	}
	if created.CollectorID != "collector1" {
		t.Fatalf("collector not stamped from token: %+v", created)
	}

	res := doJSON(t, api, http.MethodGet, "/api/v1/records/"+created.ID, token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("get record failed: %d %s", res.Code, res.Body.String())
	}
}

func TestSubmitRecord_ReceiverForbidden(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "factory", "factory123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/records", token,
		submitPayload(domain.TypeCollection, "abc", domain.ItemLine{Name: "Shirt", Qty: 1}))
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for receiver submit, got %d", res.Code)
	}
}

func TestVerifyRecord_CollectorForbidden(t *testing.T) {
	api := newTestAPI(t)
	collector := login(t, api, "collector1", "collect123")

	created := submitRecord(t, api, collector, submitPayload(domain.TypeCollection, "abc",
		domain.ItemLine{Name: "Shirt", Qty: 5}))

	res := verifyRecord(t, api, collector, created.ID, domain.VerifyRecordRequest{
		VerifiedItems: []domain.ItemLine{{Name: "Shirt", Qty: 5}},
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for collector verify, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestVerifyRecord_FullFlow(t *testing.T) {
	api := newTestAPI(t)
	collector := login(t, api, "collector1", "collect123")
	receiver := login(t, api, "factory", "factory123")

	created := submitRecord(t, api, collector, submitPayload(domain.TypeCollection, "abc",
		domain.ItemLine{Name: "Shirt", Qty: 5}))

	res := verifyRecord(t, api, receiver, created.ID, domain.VerifyRecordRequest{
		VerifiedItems: []domain.ItemLine{{Name: "Shirt", Qty: 3}},
		Remark:        "two missing",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %s", res.Code, res.Body.String())
	}
	var resp domain.RecordResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if resp.Record.VerificationStatus != domain.StatusDeviated {
		t.Fatalf("expected deviated, got %s", resp.Record.VerificationStatus)
	}

	// Second verification must conflict.
	res = verifyRecord(t, api, receiver, created.ID, domain.VerifyRecordRequest{
		VerifiedItems: []domain.ItemLine{{Name: "Shirt", Qty: 5}},
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double verification, got %d", res.Code)
	}
}

func TestVerifyRecord_MissingRemarkIs400(t *testing.T) {
	api := newTestAPI(t)
	collector := login(t, api, "collector1", "collect123")
	receiver := login(t, api, "factory", "factory123")

	created := submitRecord(t, api, collector, submitPayload(domain.TypeCollection, "abc",
		domain.ItemLine{Name: "Shirt", Qty: 5}))

	res := verifyRecord(t, api, receiver, created.ID, domain.VerifyRecordRequest{
		VerifiedItems: []domain.ItemLine{{Name: "Shirt", Qty: 4}},
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for deviation without remark, got %d", res.Code)
	}
}

func TestVerifyRecord_UnknownIDIs404(t *testing.T) {
	api := newTestAPI(t)
	receiver := login(t, api, "factory", "factory123")

	res := verifyRecord(t, api, receiver, "rec-missing", domain.VerifyRecordRequest{})
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDeliveryOverdraftIs400(t *testing.T) {
	api := newTestAPI(t)
	collector := login(t, api, "collector1", "collect123")

	submitRecord(t, api, collector, submitPayload(domain.TypeCollection, "abc",
		domain.ItemLine{Name: "Shirt", Qty: 10}))

	// The collection is still pending, so the pool funds nothing.
	res := doJSON(t, api, http.MethodPost, "/api/v1/records", collector,
		submitPayload(domain.TypeDelivery, "abc", domain.ItemLine{Name: "Shirt", Qty: 1}))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for overdraft delivery, got %d (body: %s)", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), "available 0") {
		t.Fatalf("expected available quantity in error body, got %s", res.Body.String())
	}
}

func TestListRecords_CollectorScope(t *testing.T) {
	api := newTestAPI(t)
	collector1 := login(t, api, "collector1", "collect123")
	collector2 := login(t, api, "collector2", "collect456")
	receiver := login(t, api, "factory", "factory123")

	submitRecord(t, api, collector1, submitPayload(domain.TypeCollection, "abc", domain.ItemLine{Name: "Shirt", Qty: 1}))
	submitRecord(t, api, collector2, submitPayload(domain.TypeCollection, "efg", domain.ItemLine{Name: "Blanket", Qty: 2}))

	res := doJSON(t, api, http.MethodGet, "/api/v1/records", collector1, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("list failed: %d", res.Code)
	}
	var own domain.RecordListResponse
	if err := json.NewDecoder(res.Body).Decode(&own); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if own.Total != 1 || own.Records[0].CollectorID != "collector1" {
		t.Fatalf("collector must see own records only: %+v", own)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/records", receiver, nil)
	var all domain.RecordListResponse
	if err := json.NewDecoder(res.Body).Decode(&all); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if all.Total != 2 {
		t.Fatalf("receiver must see all records, got %d", all.Total)
	}
}

func TestHandlePool(t *testing.T) {
	api := newTestAPI(t)
	collector := login(t, api, "collector1", "collect123")
	receiver := login(t, api, "factory", "factory123")

	created := submitRecord(t, api, collector, submitPayload(domain.TypeCollection, "abc",
		domain.ItemLine{Name: "Shirt", Qty: 10}))
	verifyRecord(t, api, receiver, created.ID, domain.VerifyRecordRequest{
		VerifiedItems: []domain.ItemLine{{Name: "Shirt", Qty: 10}},
	})

	res := doJSON(t, api, http.MethodGet, "/api/v1/pool?customer=abc&item=Shirt", collector, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("pool failed: %d %s", res.Code, res.Body.String())
	}
	var pool domain.PoolResponse
	if err := json.NewDecoder(res.Body).Decode(&pool); err != nil {
		t.Fatalf("decode pool: %v", err)
	}
	if pool.Available != 10 {
		t.Fatalf("expected pool 10, got %d", pool.Available)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/pool?customer=abc&item=Sock", collector, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown item, got %d", res.Code)
	}
}

func TestReports_ReceiverOnly(t *testing.T) {
	api := newTestAPI(t)
	collector := login(t, api, "collector1", "collect123")

	for _, path := range []string{
		"/api/v1/reports/summary",
		"/api/v1/reports/pre-verification",
		"/api/v1/reports/management",
	} {
		res := doJSON(t, api, http.MethodGet, path, collector, nil)
		if res.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for collector, got %d", path, res.Code)
		}
	}
}

func TestReports_EndToEnd(t *testing.T) {
	api := newTestAPI(t)
	collector := login(t, api, "collector1", "collect123")
	receiver := login(t, api, "factory", "factory123")

	first := submitRecord(t, api, collector, submitPayload(domain.TypeCollection, "abc",
		domain.ItemLine{Name: "Shirt", Qty: 10}))
	submitRecord(t, api, collector, submitPayload(domain.TypeCollection, "efg",
		domain.ItemLine{Name: "Blanket", Qty: 4}))
	verifyRecord(t, api, receiver, first.ID, domain.VerifyRecordRequest{
		VerifiedItems: []domain.ItemLine{{Name: "Shirt", Qty: 8}},
		Remark:        "recount",
	})

	res := doJSON(t, api, http.MethodGet, "/api/v1/reports/summary?group_by=item", receiver, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("summary failed: %d %s", res.Code, res.Body.String())
	}
	var summary domain.SummaryReport
	if err := json.NewDecoder(res.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.TotalCollected != 8 {
		t.Fatalf("verified summary must use effective quantities, got %d", summary.TotalCollected)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/reports/pre-verification", receiver, nil)
	var pending domain.SummaryReport
	if err := json.NewDecoder(res.Body).Decode(&pending); err != nil {
		t.Fatalf("decode pre-verification: %v", err)
	}
	if pending.TotalCollected != 4 {
		t.Fatalf("pending regime wrong: %d", pending.TotalCollected)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/reports/management", receiver, nil)
	var mgmt domain.ManagementReport
	if err := json.NewDecoder(res.Body).Decode(&mgmt); err != nil {
		t.Fatalf("decode management: %v", err)
	}
	if mgmt.TotalRecords != 2 || mgmt.Deviated != 1 || mgmt.Pending != 1 {
		t.Fatalf("management report wrong: %+v", mgmt)
	}
}

func TestReports_RejectUnknownGroupBy(t *testing.T) {
	api := newTestAPI(t)
	receiver := login(t, api, "factory", "factory123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/reports/summary?group_by=weekday", receiver, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown group_by, got %d", res.Code)
	}
}

func TestReports_RejectInvalidDate(t *testing.T) {
	api := newTestAPI(t)
	receiver := login(t, api, "factory", "factory123")

	res := doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/reports/summary?from=%s", "03-2026"), receiver, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid date, got %d", res.Code)
	}
}
