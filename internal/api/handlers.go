package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stockwatch/stockwatch/internal/catalog"
	"github.com/stockwatch/stockwatch/internal/coordinator"
	"github.com/stockwatch/stockwatch/internal/models"
	"github.com/stockwatch/stockwatch/internal/probe"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Catalog, Ledger and Registry are the service surfaces the handlers
// consume; the concrete services in internal/ satisfy them.
type Catalog interface {
	Add(ctx context.Context, name string, price decimal.Decimal, globalLink, auLink string) (*models.Product, error)
	Update(ctx context.Context, id int64, params catalog.UpdateParams) (*models.Product, error)
	Get(ctx context.Context, id int64) (*models.Product, error)
	List(ctx context.Context) ([]models.Product, error)
}

type Ledger interface {
	CreateUser(ctx context.Context, username string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	AddBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	SetBalance(ctx context.Context, userID int64, balance decimal.Decimal) (decimal.Decimal, error)
}

type Registry interface {
	Subscribe(ctx context.Context, userID, productID int64, expiry time.Time) (*models.MonitorSubscription, error)
	Cancel(ctx context.Context, monitorID int64) error
	ActiveForUser(ctx context.Context, userID int64) ([]models.MonitorSubscription, error)
	ListDetails(ctx context.Context) ([]models.MonitorDetail, error)
}

// StateSource exposes the coordinator's per-pair state to the admin UI.
type StateSource interface {
	States() []coordinator.StateSnapshot
}

// LogSource exposes recent coordinator activity lines.
type LogSource interface {
	Lines() []string
}

// ResultCache reads the latest cached probe result per product/region.
type ResultCache interface {
	GetLastResult(ctx context.Context, productID int64, region models.Region) (models.StockResult, bool, error)
}

// Auth issues and verifies admin tokens.
type Auth interface {
	Login(username, password string) (string, error)
	VerifyToken(token string) (string, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Catalog  Catalog
	Ledger   Ledger
	Registry Registry
	Prober   probe.Prober
	States   StateSource
	Logs     LogSource
	Cache    ResultCache
	Auth     Auth
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the shared error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInsufficientBalance):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrProbeTimeout), errors.Is(err, models.ErrProbe), errors.Is(err, models.ErrParse):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func idParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// Login handles admin login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	token, err := h.Auth.Login(req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// AuthMiddleware verifies admin JWTs
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization header required"})
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")

		if _, err := h.Auth.VerifyToken(token); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListProducts returns the full catalog
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

type productRequest struct {
	Name       *string          `json:"name"`
	Price      *decimal.Decimal `json:"price"`
	GlobalLink *string          `json:"global_link"`
	AULink     *string          `json:"au_link"`
}

// CreateProduct adds a product to the catalog
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var name string
	if req.Name != nil {
		name = *req.Name
	}
	var price decimal.Decimal
	if req.Price != nil {
		price = *req.Price
	}
	var globalLink, auLink string
	if req.GlobalLink != nil {
		globalLink = *req.GlobalLink
	}
	if req.AULink != nil {
		auLink = *req.AULink
	}

	product, err := h.Catalog.Add(r.Context(), name, price, globalLink, auLink)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// GetProduct returns one product together with the last cached probe
// result per configured region, when one is available.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id"})
		return
	}
	product, err := h.Catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	last := make(map[models.Region]models.StockResult)
	if h.Cache != nil {
		for _, region := range models.Regions {
			if product.Link(region) == "" {
				continue
			}
			res, ok, err := h.Cache.GetLastResult(r.Context(), id, region)
			if err != nil || !ok {
				continue
			}
			last[region] = res
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"product":      product,
		"last_results": last,
	})
}

// UpdateProduct applies a partial edit to a product
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id"})
		return
	}
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	product, err := h.Catalog.Update(r.Context(), id, catalog.UpdateParams{
		Name:       req.Name,
		Price:      req.Price,
		GlobalLink: req.GlobalLink,
		AULink:     req.AULink,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// CheckProduct runs an on-demand stock check for every configured region
// link of a product. A timed-out region is reported as Out of Stock with
// the unknown flag set, alongside the failure reason.
func (h *Handler) CheckProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id"})
		return
	}
	product, err := h.Catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	results := make(map[models.Region]models.StockResult)
	failures := make(map[models.Region]string)
	for _, region := range models.Regions {
		link := product.Link(region)
		if link == "" {
			continue
		}
		res, err := h.Prober.Check(r.Context(), region, link)
		if err != nil {
			failures[region] = err.Error()
			if errors.Is(err, models.ErrProbeTimeout) {
				results[region] = models.StockResult{
					Region:    region,
					Status:    models.StatusOutOfStock,
					Unknown:   true,
					Link:      link,
					CheckedAt: time.Now(),
				}
			}
			continue
		}
		results[region] = res
	}

	if len(results) == 0 && len(failures) == 0 {
		writeError(w, models.Validationf("product has no region links"))
		return
	}

	// Every configured region failed: a bad gateway, not a clean answer.
	// Partial success still reports 200 with the per-region failures.
	status := http.StatusOK
	if len(results) == 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{
		"product_id":   product.ID,
		"product_name": product.Name,
		"results":      results,
		"failures":     failures,
	})
}

// ListUsers returns all users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Ledger.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// CreateUser registers a user
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	user, err := h.Ledger.CreateUser(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// GetUser returns one user together with their active monitors
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	user, err := h.Ledger.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	monitors, err := h.Registry.ActiveForUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"monitors": monitors,
	})
}

// AddBalance credits a user's balance
func (h *Handler) AddBalance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	balance, err := h.Ledger.AddBalance(r.Context(), id, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "balance": balance})
}

// SetBalance overwrites a user's balance
func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	var req struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	balance, err := h.Ledger.SetBalance(r.Context(), id, req.Balance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "balance": balance})
}

// ListMonitors returns every active subscription with user/product names
func (h *Handler) ListMonitors(w http.ResponseWriter, r *http.Request) {
	details, err := h.Registry.ListDetails(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// Subscribe opens a monitoring subscription
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     int64      `json:"user_id"`
		ProductID  int64      `json:"product_id"`
		ExpiryDate *time.Time `json:"expiry_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var expiry time.Time
	if req.ExpiryDate != nil {
		expiry = *req.ExpiryDate
	}
	monitor, err := h.Registry.Subscribe(r.Context(), req.UserID, req.ProductID, expiry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, monitor)
}

// CancelMonitor cancels a subscription
func (h *Handler) CancelMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid monitor id"})
		return
	}
	if err := h.Registry.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "monitor cancelled"})
}

// CoordinatorState returns the tracked stock state per product/region
func (h *Handler) CoordinatorState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.States.States())
}

// GetLogs returns recent coordinator activity, oldest line first
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"lines": h.Logs.Lines()})
}
