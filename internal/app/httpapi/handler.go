// Package httpapi exposes the inventory engine over REST.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/mintline/edition_layer/internal/app"
	"github.com/mintline/edition_layer/internal/app/metrics"
	"github.com/mintline/edition_layer/internal/app/services/allocation"
	apperrors "github.com/mintline/edition_layer/internal/errors"
	"github.com/mintline/edition_layer/internal/httputil"
	"github.com/mintline/edition_layer/internal/middleware"
	"github.com/mintline/edition_layer/pkg/logger"
)

// Options configures the HTTP surface. Nil middleware is skipped, except
// Auth: without it every API route answers 401.
type Options struct {
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	CORS        *middleware.CORSMiddleware
	AuditSink   AuditSink
	AuditSize   int
	Logger      *logger.Logger
}

// handler bundles HTTP endpoints for the allocation service.
type handler struct {
	app   *app.Application
	svc   *allocation.Service
	audit *auditLog
	log   *logger.Logger
}

// NewHandler returns a router exposing the REST API.
func NewHandler(application *app.Application, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		app:   application,
		svc:   application.Allocation,
		audit: newAuditLog(opts.AuditSize, opts.AuditSink, log),
		log:   log,
	}

	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware())
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	if opts.Auth != nil {
		api.Use(opts.Auth.Handler)
	} else {
		api.Use(middleware.RequireUserID)
	}
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.Handler)
	}
	api.Use(h.audit.middleware)

	api.HandleFunc("/collections", h.listCollections).Methods(http.MethodGet)
	api.HandleFunc("/collections", h.createCollection).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}", h.getCollection).Methods(http.MethodGet)
	api.HandleFunc("/collections/{id}/status", h.setStatus).Methods(http.MethodPut)
	api.HandleFunc("/collections/{id}/editions", h.listEditions).Methods(http.MethodGet)
	api.HandleFunc("/collections/{id}/editions/{subId}", h.getEdition).Methods(http.MethodGet)
	api.HandleFunc("/collections/{id}/publish", h.publish).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}/airdrop", h.airdrop).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}/synthesize", h.synthesize).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}/editions/{subId}/purchase", h.purchase).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}/editions/{subId}/consign", h.consign).Methods(http.MethodPost)
	api.HandleFunc("/collections/{id}/editions/{subId}/transfer", h.transfer).Methods(http.MethodPost)
	api.HandleFunc("/boxes/{id}/purchase", h.purchaseBox).Methods(http.MethodPost)
	api.HandleFunc("/boxes/instances/{instanceId}/open", h.openBox).Methods(http.MethodPost)
	api.HandleFunc("/me/boxes", h.myBoxes).Methods(http.MethodGet)
	api.HandleFunc("/me/purchases", h.myPurchases).Methods(http.MethodGet)
	api.HandleFunc("/me/sales", h.mySales).Methods(http.MethodGet)
	api.HandleFunc("/operations", h.operations).Methods(http.MethodPost)
	api.HandleFunc("/admin/audit", h.auditEntries).Methods(http.MethodGet)

	var out http.Handler = r
	out = middleware.NewTracingMiddleware(log).Handler(out)
	if opts.CORS != nil {
		out = opts.CORS.Handler(out)
	}
	return out
}

func callerFrom(r *http.Request) allocation.Caller {
	ctx := r.Context()
	return allocation.Caller{
		ID:   middleware.GetUserID(ctx),
		Role: allocation.ParseRole(middleware.GetUserRole(ctx)),
	}
}

// fail writes the error envelope and logs server-side failures.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := httputil.WriteError(w, err)
	if svcErr.HTTPStatus >= http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
	}
}

// decodeOptional decodes a JSON body when one was sent.
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return httputil.DecodeJSON(w, r, v)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"services": h.app.Descriptors(),
	})
}

func (h *handler) listCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.svc.ListCollections(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]collectionView, 0, len(cols))
	for _, c := range cols {
		out = append(out, newCollectionView(c))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *handler) createCollection(w http.ResponseWriter, r *http.Request) {
	var req allocation.CreateCollectionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.CreateCollection(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newCollectionView(c))
}

func (h *handler) getCollection(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCollection(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newCollectionView(c))
}

func (h *handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req allocation.SetStatusRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.CollectionID = mux.Vars(r)["id"]
	c, err := h.svc.SetCollectionStatus(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newCollectionView(c))
}

func (h *handler) listEditions(w http.ResponseWriter, r *http.Request) {
	availableOnly := false
	switch r.URL.Query().Get("status") {
	case "", "all":
	case "available":
		availableOnly = true
	default:
		h.fail(w, r, apperrors.Validation("status filter must be available or all"))
		return
	}
	eds, err := h.svc.ListEditions(r.Context(), mux.Vars(r)["id"], availableOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newEditionViews(eds))
}

func (h *handler) getEdition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	e, err := h.svc.GetEdition(r.Context(), vars["id"], vars["subId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newEditionView(e))
}

func (h *handler) publish(w http.ResponseWriter, r *http.Request) {
	var req allocation.PublishRequest
	if err := decodeOptional(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.CollectionID = mux.Vars(r)["id"]
	h.writePublish(w, r, req)
}

func (h *handler) writePublish(w http.ResponseWriter, r *http.Request, req allocation.PublishRequest) {
	eds, err := h.svc.Publish(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newEditionViews(eds))
}

func (h *handler) airdrop(w http.ResponseWriter, r *http.Request) {
	var req allocation.AirdropRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.CollectionID = mux.Vars(r)["id"]
	h.writeAirdrop(w, r, req)
}

func (h *handler) writeAirdrop(w http.ResponseWriter, r *http.Request, req allocation.AirdropRequest) {
	report, err := h.svc.Airdrop(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if report.Partial() {
		status = http.StatusMultiStatus
	}
	httputil.WriteJSON(w, status, newAirdropView(report))
}

func (h *handler) synthesize(w http.ResponseWriter, r *http.Request) {
	var req allocation.SynthesizeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.CollectionID = mux.Vars(r)["id"]
	h.writeSynthesize(w, r, req)
}

func (h *handler) writeSynthesize(w http.ResponseWriter, r *http.Request, req allocation.SynthesizeRequest) {
	eds, err := h.svc.Synthesize(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newEditionViews(eds))
}

func (h *handler) purchase(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	h.writePurchase(w, r, allocation.PurchaseRequest{CollectionID: vars["id"], SubID: vars["subId"]})
}

func (h *handler) writePurchase(w http.ResponseWriter, r *http.Request, req allocation.PurchaseRequest) {
	e, err := h.svc.Purchase(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newEditionView(e))
}

func (h *handler) consign(w http.ResponseWriter, r *http.Request) {
	var req allocation.ConsignRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	req.CollectionID, req.SubID = vars["id"], vars["subId"]
	h.writeConsign(w, r, req)
}

func (h *handler) writeConsign(w http.ResponseWriter, r *http.Request, req allocation.ConsignRequest) {
	e, err := h.svc.Consign(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newEditionView(e))
}

func (h *handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req allocation.TransferRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	req.CollectionID, req.SubID = vars["id"], vars["subId"]
	h.writeTransfer(w, r, req)
}

func (h *handler) writeTransfer(w http.ResponseWriter, r *http.Request, req allocation.TransferRequest) {
	e, err := h.svc.Transfer(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newEditionView(e))
}

func (h *handler) purchaseBox(w http.ResponseWriter, r *http.Request) {
	h.writePurchaseBox(w, r, allocation.PurchaseBoxRequest{CollectionID: mux.Vars(r)["id"]})
}

func (h *handler) writePurchaseBox(w http.ResponseWriter, r *http.Request, req allocation.PurchaseBoxRequest) {
	inst, err := h.svc.PurchaseBox(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newInstanceView(inst))
}

func (h *handler) openBox(w http.ResponseWriter, r *http.Request) {
	h.writeOpenBox(w, r, allocation.OpenBoxRequest{InstanceID: mux.Vars(r)["instanceId"]})
}

func (h *handler) writeOpenBox(w http.ResponseWriter, r *http.Request, req allocation.OpenBoxRequest) {
	res, err := h.svc.OpenBox(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, openResultView{
		Instance:   newInstanceView(res.Instance),
		Collection: newCollectionView(res.Target),
		Edition:    newEditionView(res.Edition),
	})
}

func (h *handler) myBoxes(w http.ResponseWriter, r *http.Request) {
	insts, err := h.svc.MyBoxes(r.Context(), callerFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]instanceView, 0, len(insts))
	for _, inst := range insts {
		out = append(out, newInstanceView(inst))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *handler) myPurchases(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.MyPurchases(r.Context(), callerFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newTradeViews(recs))
}

func (h *handler) mySales(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.MySales(r.Context(), callerFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newTradeViews(recs))
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	if !callerFrom(r).IsAdmin() {
		h.fail(w, r, apperrors.Unauthorized("audit log requires the admin role"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(w, r, apperrors.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	httputil.WriteJSON(w, http.StatusOK, h.audit.listLimit(limit))
}
