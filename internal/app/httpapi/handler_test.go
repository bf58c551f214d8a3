package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/mintline/edition_layer/internal/app"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/trade"
	"github.com/mintline/edition_layer/internal/app/storage/memory"
	"github.com/mintline/edition_layer/internal/httputil"
	"github.com/mintline/edition_layer/internal/middleware"
	"github.com/mintline/edition_layer/pkg/logger"
)

var testSecret = []byte("httpapi-test-secret")

// blockingTransfers fails every commit that hands an edition to blocked.
type blockingTransfers struct {
	*memory.Store
	blocked string
}

func (b blockingTransfers) CommitTransfer(ctx context.Context, e edition.Edition, rec *trade.Record) (edition.Edition, error) {
	if e.Owner == b.blocked {
		return edition.Edition{}, errors.New("ledger unavailable")
	}
	return b.Store.CommitTransfer(ctx, e, rec)
}

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := memory.New()
	stores := app.Stores{
		Collections:  mem,
		Editions:     mem,
		Transfers:    blockingTransfers{Store: mem, blocked: "blocked"},
		Boxes:        mem,
		Trades:       mem,
		Reservations: mem,
	}
	log := logger.NewDefault("httpapi-test")
	application, err := app.New(stores, app.Options{ReservationTTL: time.Minute, SweepSchedule: "@every 1h", AllocatorSeed: 1}, log)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(ctx) })

	h := NewHandler(application, Options{
		Auth:   middleware.NewAuthMiddleware(testSecret, "", log, nil),
		CORS:   middleware.NewCORSMiddleware([]string{"*"}),
		Logger: log,
	})
	return &testServer{t: t, handler: h}
}

func (s *testServer) do(method, path, user, role string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		token, err := middleware.SignToken(testSecret, "", user, role, time.Hour)
		if err != nil {
			s.t.Fatalf("sign token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorBody
	decode(t, rec, &body)
	return body.Error.Code
}

func (s *testServer) createNFT(owner string, total int) collectionView {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/collections", owner, "owner", map[string]interface{}{
		"kind":           1,
		"name":           "Genesis",
		"price":          "10",
		"total_quantity": total,
	})
	if rec.Code != http.StatusCreated {
		s.t.Fatalf("create collection: status %d body %s", rec.Code, rec.Body.String())
	}
	var c collectionView
	decode(s.t, rec, &c)
	return c
}

func TestHealthzWithoutToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(middleware.TraceHeader) == "" {
		t.Fatalf("expected trace header on response")
	}
	var body struct {
		Status   string `json:"status"`
		Services []struct {
			Name   string `json:"name"`
			Domain string `json:"domain"`
		} `json:"services"`
	}
	decode(t, rec, &body)
	if body.Status != "ok" || len(body.Services) != 2 || body.Services[0].Domain != "inventory" {
		t.Fatalf("unexpected health body %+v", body)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/collections", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "UNAUTHENTICATED" {
		t.Fatalf("expected UNAUTHENTICATED, got %s", code)
	}
}

func TestCreatePublishPurchaseFlow(t *testing.T) {
	s := newTestServer(t)
	c := s.createNFT("creator", 3)
	if c.TypeLabel != "NFT" || c.StatusLabel != "draft" || c.Remaining != 3 {
		t.Fatalf("unexpected collection view %+v", c)
	}

	rec := s.do(http.MethodPost, "/collections/"+c.ID+"/editions/001/purchase", "buyer", "user", nil)
	if code := errorCode(t, rec); code != "NOT_PUBLISHED" {
		t.Fatalf("expected NOT_PUBLISHED before publishing, got %s", code)
	}

	rec = s.do(http.MethodPut, "/collections/"+c.ID+"/status", "creator", "owner", map[string]int{"status": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("set status: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/collections/"+c.ID+"/editions?status=available", "buyer", "user", nil)
	var available []editionView
	decode(t, rec, &available)
	if len(available) != 3 || available[0].StatusLabel != "published" {
		t.Fatalf("expected 3 published editions, got %+v", available)
	}

	rec = s.do(http.MethodPost, "/collections/"+c.ID+"/editions/001/purchase", "buyer", "user", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("purchase: %d %s", rec.Code, rec.Body.String())
	}
	var bought editionView
	decode(t, rec, &bought)
	if bought.Owner != "buyer" || bought.StatusLabel != "sold" || len(bought.History) != 1 {
		t.Fatalf("unexpected edition after purchase %+v", bought)
	}
	if bought.History[0].Type != "purchase" || bought.History[0].Price != "10" {
		t.Fatalf("unexpected history %+v", bought.History[0])
	}

	rec = s.do(http.MethodGet, "/collections/"+c.ID, "buyer", "user", nil)
	var after collectionView
	decode(t, rec, &after)
	if after.SoldQuantity != 1 || after.Remaining != 2 {
		t.Fatalf("expected sold 1 remaining 2, got %+v", after)
	}

	rec = s.do(http.MethodGet, "/me/purchases", "buyer", "user", nil)
	var purchases []tradeView
	decode(t, rec, &purchases)
	if len(purchases) != 1 || purchases[0].Seller != "creator" {
		t.Fatalf("unexpected purchases %+v", purchases)
	}

	rec = s.do(http.MethodPost, "/collections/"+c.ID+"/editions/001/purchase", "buyer", "user", nil)
	if code := errorCode(t, rec); code != "NOT_PUBLISHED" {
		t.Fatalf("expected NOT_PUBLISHED on resale attempt, got %s", code)
	}
}

func TestSelfPurchaseRejected(t *testing.T) {
	s := newTestServer(t)
	c := s.createNFT("creator", 1)
	s.do(http.MethodPut, "/collections/"+c.ID+"/status", "creator", "owner", map[string]int{"status": 2})

	rec := s.do(http.MethodPost, "/collections/"+c.ID+"/editions/001/purchase", "creator", "owner", nil)
	if code := errorCode(t, rec); code != "SELF_TRANSACTION" {
		t.Fatalf("expected SELF_TRANSACTION, got %s (%d)", code, rec.Code)
	}
}

func TestUnknownCollectionIsNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/collections/missing", "u", "user", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestCreateRejectsUnknownFields(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/collections", "creator", "owner", map[string]interface{}{
		"kind": 1, "name": "x", "price": "1", "total_quantity": 1, "colour": "red",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAuditRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	s.createNFT("creator", 1)

	rec := s.do(http.MethodGet, "/admin/audit", "creator", "owner", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/admin/audit?limit=5", "root", "admin", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entries []auditEntry
	decode(t, rec, &entries)
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	if entries[0].Route != "/collections" || entries[0].User != "creator" || entries[0].Status != http.StatusCreated {
		t.Fatalf("unexpected audit entry %+v", entries[0])
	}
}

func TestOperationsDispatch(t *testing.T) {
	s := newTestServer(t)
	c := s.createNFT("creator", 2)

	rec := s.do(http.MethodPost, "/operations", "creator", "owner", map[string]interface{}{
		"op": "publish", "collection_id": c.ID, "sub_ids": []string{"002"}, "price": "4.5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("publish op: %d %s", rec.Code, rec.Body.String())
	}
	var published []editionView
	decode(t, rec, &published)
	if len(published) != 1 || published[0].Price != "4.5" {
		t.Fatalf("unexpected publish result %+v", published)
	}

	rec = s.do(http.MethodPost, "/operations", "creator", "owner", map[string]interface{}{
		"op": "set_status", "collection_id": c.ID, "status": 5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("set_status op: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/operations", "fan", "user", map[string]interface{}{
		"op": "purchase", "collection_id": c.ID, "sub_id": "002",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("purchase op: %d %s", rec.Code, rec.Body.String())
	}
	var bought editionView
	decode(t, rec, &bought)
	if bought.Owner != "fan" || bought.History[0].Price != "4.5" {
		t.Fatalf("unexpected purchase result %+v", bought)
	}
}

func TestOperationsRejectsBadEnvelopes(t *testing.T) {
	s := newTestServer(t)
	cases := []interface{}{
		map[string]interface{}{"collection_id": "x"},
		map[string]interface{}{"op": 3},
		map[string]interface{}{"op": "mint"},
		map[string]interface{}{"op": "purchase", "collection_id": "x", "sub_id": "001", "extra": true},
	}
	for i, body := range cases {
		rec := s.do(http.MethodPost, "/operations", "u", "user", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d %s", i, rec.Code, rec.Body.String())
		}
	}
}

func TestAirdropPartialIsMultiStatus(t *testing.T) {
	s := newTestServer(t)
	c := s.createNFT("creator", 3)

	rec := s.do(http.MethodPost, "/collections/"+c.ID+"/airdrop", "creator", "owner", map[string]interface{}{
		"recipients": []string{"alice", "blocked"},
	})
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d %s", rec.Code, rec.Body.String())
	}
	var report airdropView
	decode(t, rec, &report)
	if len(report.Delivered) != 1 || report.Delivered[0].Recipient != "alice" {
		t.Fatalf("unexpected deliveries %+v", report.Delivered)
	}
	if len(report.Failed) != 1 || report.Failed[0].Recipient != "blocked" || report.Failed[0].Code != "INTERNAL" {
		t.Fatalf("unexpected failures %+v", report.Failed)
	}

	rec = s.do(http.MethodPost, "/collections/"+c.ID+"/airdrop", "creator", "owner", map[string]interface{}{
		"recipients": []string{"carol"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for full delivery, got %d", rec.Code)
	}
}

func TestMysteryBoxPurchaseAndOpen(t *testing.T) {
	s := newTestServer(t)
	target := s.createNFT("creator", 2)
	s.do(http.MethodPut, "/collections/"+target.ID+"/status", "creator", "owner", map[string]int{"status": 2})

	rec := s.do(http.MethodPost, "/collections", "creator", "owner", map[string]interface{}{
		"kind": 2, "name": "Box", "price": "3", "total_quantity": 2,
		"items": []map[string]interface{}{{"collection_id": target.ID, "weight": 1, "quantity": 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create box: %d %s", rec.Code, rec.Body.String())
	}
	var box collectionView
	decode(t, rec, &box)
	s.do(http.MethodPut, "/collections/"+box.ID+"/status", "creator", "owner", map[string]int{"status": 2})

	rec = s.do(http.MethodPost, "/boxes/"+box.ID+"/purchase", "fan", "user", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("purchase box: %d %s", rec.Code, rec.Body.String())
	}
	var inst instanceView
	decode(t, rec, &inst)
	if inst.State != "unopened" {
		t.Fatalf("expected unopened instance, got %+v", inst)
	}

	rec = s.do(http.MethodPost, fmt.Sprintf("/boxes/instances/%s/open", inst.ID), "fan", "user", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("open box: %d %s", rec.Code, rec.Body.String())
	}
	var opened openResultView
	decode(t, rec, &opened)
	if opened.Instance.State != "opened" || opened.Edition.Owner != "fan" || opened.Collection.ID != target.ID {
		t.Fatalf("unexpected open result %+v", opened)
	}

	rec = s.do(http.MethodPost, fmt.Sprintf("/boxes/instances/%s/open", inst.ID), "fan", "user", nil)
	if code := errorCode(t, rec); code != "ALREADY_OPENED" {
		t.Fatalf("expected ALREADY_OPENED, got %s", code)
	}

	rec = s.do(http.MethodGet, "/me/boxes", "fan", "user", nil)
	var mine []instanceView
	decode(t, rec, &mine)
	if len(mine) != 1 {
		t.Fatalf("expected one box, got %d", len(mine))
	}
}
