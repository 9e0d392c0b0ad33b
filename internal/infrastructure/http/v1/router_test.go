package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/catalogs/location"
	"stockwise/internal/domain/catalogs/uom"
	"stockwise/internal/domain/costing"
	"stockwise/internal/domain/movements"
	"stockwise/internal/domain/registers/stock"
	"stockwise/internal/infrastructure/http/v1/handlers"
	"stockwise/internal/infrastructure/storage/memory"
	"stockwise/internal/infrastructure/storage/postgres"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeUnits is a map-backed unit catalog.
type fakeUnits struct {
	mu    sync.Mutex
	units map[id.ID]*uom.UnitOfMeasure
}

func (f *fakeUnits) Create(ctx context.Context, u *uom.UnitOfMeasure) error {
	if err := u.Validate(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.units {
		if existing.Code == u.Code {
			return apperror.NewDuplicate("uom", "code", u.Code)
		}
	}
	f.units[u.ID] = u
	return nil
}

func (f *fakeUnits) GetByID(_ context.Context, uomID id.ID) (*uom.UnitOfMeasure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[uomID]
	if !ok {
		return nil, apperror.NewNotFound("uom", uomID.String())
	}
	return u, nil
}

func (f *fakeUnits) Update(ctx context.Context, u *uom.UnitOfMeasure) error {
	if err := u.Validate(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units[u.ID] = u
	return nil
}

func (f *fakeUnits) SetActive(_ context.Context, uomID id.ID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[uomID]
	if !ok {
		return apperror.NewNotFound("uom", uomID.String())
	}
	u.IsActive = active
	return nil
}

func (f *fakeUnits) List(context.Context, domain.ListFilter) (domain.ListResult[*uom.UnitOfMeasure], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := domain.ListResult[*uom.UnitOfMeasure]{Limit: 50}
	for _, u := range f.units {
		res.Items = append(res.Items, u)
	}
	res.TotalCount = int64(len(res.Items))
	return res, nil
}

type apiEnv struct {
	router  *gin.Engine
	units   *fakeUnits
	kg      id.ID
	main    id.ID
	kitchen id.ID
	variant id.ID
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	store := memory.New()
	kg := uom.NewUnitOfMeasure("KG", "Kilogram", "kg", 3)
	store.PutUnit(kg)

	ou := id.New()
	main := location.NewLocation(ou, "MAIN", "Main store", location.TypeMain)
	kitchen := location.NewLocation(ou, "KITCHEN", "Kitchen", location.TypeKitchen)
	store.PutLocation(main)
	store.PutLocation(kitchen)

	v := item.NewVariant(id.New(), "TOM-1KG", "Tomato", kg.ID)
	store.PutVariant(v)

	engine := costing.NewEngine()
	ledger := stock.NewLedger(store.Stocks(), store, engine)
	converter := uom.NewConverter(store.Units(), store.Units())
	processor := movements.NewProcessor(movements.Config{
		TxManager: store,
		Movements: store.Movements(),
		Ledger:    ledger,
		Costing:   engine,
		Converter: converter,
		Variants:  store.Variants(),
		Locations: store.Locations(),
		Numbers:   store,
		Events:    store,
	})

	units := &fakeUnits{units: map[id.ID]*uom.UnitOfMeasure{kg.ID: kg}}
	router := NewRouter(RouterConfig{
		Units:     units,
		Converter: converter,
		Movements: processor,
		Stock:     ledger,
	})

	return &apiEnv{router: router, units: units, kg: kg.ID, main: main.ID, kitchen: kitchen.ID, variant: v.ID}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (e *apiEnv) movement(typ, reason string, loc id.ID, qty string) map[string]any {
	return map[string]any{
		"type":        typ,
		"reason":      reason,
		"location_id": loc,
		"variant_id":  e.variant,
		"quantity":    qty,
		"uom_id":      e.kg,
	}
}

func (e *apiEnv) withReference(m map[string]any, n int) map[string]any {
	m["reference"] = strings.Repeat("r", n)
	return m
}

func decField(t *testing.T, m map[string]any, key string) decimal.Decimal {
	t.Helper()
	raw, ok := m[key].(string)
	require.Truef(t, ok, "field %s missing in %v", key, m)
	return decimal.RequireFromString(raw)
}

func TestMovementLifecycle(t *testing.T) {
	e := newAPIEnv(t)

	receipt := e.movement("IN", "PURCHASE", e.main, "10")
	receipt["unit_cost"] = "2.50"
	w, body := e.do(t, http.MethodPost, "/api/v1/movements/register", receipt)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	mv := body["movement"].(map[string]any)
	assert.Equal(t, "COMPLETED", mv["status"])
	assert.NotEmpty(t, mv["number"])

	w, row := e.do(t, http.MethodGet, "/api/v1/stock/"+e.main.String()+"/"+e.variant.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decField(t, row, "on_hand").Equal(decimal.NewFromInt(10)))
	assert.True(t, decField(t, row, "weighted_avg_cost").Equal(decimal.RequireFromString("2.5")))
	assert.True(t, decField(t, row, "value").Equal(decimal.NewFromInt(25)))

	t.Run("oversell is rejected", func(t *testing.T) {
		w, body := e.do(t, http.MethodPost, "/api/v1/movements/register", e.movement("OUT", "SALE", e.main, "11"))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, apperror.CodeInsufficientStock, body["code"])
	})

	t.Run("draft then cancel", func(t *testing.T) {
		w, draft := e.do(t, http.MethodPost, "/api/v1/movements", e.movement("OUT", "CONSUMPTION", e.main, "1"))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "DRAFT", draft["status"])
		draftID := draft["id"].(string)

		w, cancelled := e.do(t, http.MethodPost, "/api/v1/movements/"+draftID+"/cancel", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "CANCELLED", cancelled["status"])

		w, body := e.do(t, http.MethodPost, "/api/v1/movements/"+draftID+"/post", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apperror.CodeInvalidTransition, body["code"])
	})

	t.Run("transfer and reverse", func(t *testing.T) {
		tr := e.movement("TRANSFER", "TRANSFER", e.main, "4")
		tr["target_location_id"] = e.kitchen
		w, body := e.do(t, http.MethodPost, "/api/v1/movements/register", tr)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		transferID := body["movement"].(map[string]any)["id"].(string)

		w, body = e.do(t, http.MethodPost, "/api/v1/movements/"+transferID+"/reverse", map[string]any{"notes": "wrong shelf"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, transferID, body["movement"].(map[string]any)["reversal_of_id"])

		_, row := e.do(t, http.MethodGet, "/api/v1/stock/"+e.kitchen.String()+"/"+e.variant.String(), nil)
		assert.True(t, decField(t, row, "on_hand").IsZero())
	})

	t.Run("list journal", func(t *testing.T) {
		w, body := e.do(t, http.MethodGet, "/api/v1/movements?status=COMPLETED", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 3, body["total_count"])
	})
}

func TestReservations(t *testing.T) {
	e := newAPIEnv(t)

	receipt := e.movement("IN", "OPENING_BALANCE", e.main, "5")
	receipt["unit_cost"] = "1"
	w, _ := e.do(t, http.MethodPost, "/api/v1/movements/register", receipt)
	require.Equal(t, http.StatusCreated, w.Code)

	res := map[string]any{"location_id": e.main, "variant_id": e.variant, "quantity": "3", "uom_id": e.kg}
	w, row := e.do(t, http.MethodPost, "/api/v1/stock/reserve", res)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decField(t, row, "available").Equal(decimal.NewFromInt(2)))

	w, body := e.do(t, http.MethodPost, "/api/v1/stock/reserve", res)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeInsufficientAvailable, body["code"])

	w, row = e.do(t, http.MethodPost, "/api/v1/stock/release", res)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decField(t, row, "reserved").IsZero())
}

func TestRegisterInboundContract(t *testing.T) {
	e := newAPIEnv(t)

	w, body := e.do(t, http.MethodPost, "/api/v1/movements/register", map[string]any{
		"inventory_location_id": e.main,
		"item_variant_id":       e.variant,
		"quantity":              "8",
		"uom_id":                e.kg,
		"reason":                "OPENING_BALANCE",
		"unit_cost":             "3.00",
		"reference":             "INV-42",
		"notes":                 "initial count",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	mv := body["movement"].(map[string]any)
	assert.Equal(t, "IN", mv["type"])
	assert.Equal(t, "COMPLETED", mv["status"])

	w, body = e.do(t, http.MethodPost, "/api/v1/movements/register", map[string]any{
		"inventory_location_id": e.main,
		"item_variant_id":       e.variant,
		"quantity":              "2",
		"uom_id":                e.kg,
		"reason":                "SALE",
		"sale_price":            "9.99",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "OUT", body["movement"].(map[string]any)["type"])

	w, body = e.do(t, http.MethodPost, "/api/v1/movements/register", map[string]any{
		"inventory_location_id": e.main,
		"item_variant_id":       e.variant,
		"quantity":              "1",
		"uom_id":                e.kg,
		"reason":                "ADJUSTMENT",
		"direction":             "DECREASE",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "ADJUSTMENT", body["movement"].(map[string]any)["type"])

	w, row := e.do(t, http.MethodGet, "/api/v1/stock/"+e.main.String()+"/"+e.variant.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decField(t, row, "on_hand").Equal(decimal.NewFromInt(5)))
}

func TestRequestValidation(t *testing.T) {
	e := newAPIEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"zero quantity", http.MethodPost, "/api/v1/movements/register", e.movement("IN", "PURCHASE", e.main, "0"), http.StatusBadRequest},
		{"unknown type", http.MethodPost, "/api/v1/movements", e.movement("GIFT", "PURCHASE", e.main, "1"), http.StatusBadRequest},
		{"unknown reason without type", http.MethodPost, "/api/v1/movements", e.movement("", "GIFT", e.main, "1"), http.StatusBadRequest},
		{"missing location", http.MethodPost, "/api/v1/movements", e.movement("OUT", "SALE", id.Nil(), "1"), http.StatusBadRequest},
		{"reference too long", http.MethodPost, "/api/v1/movements", e.withReference(e.movement("OUT", "SALE", e.main, "1"), 101), http.StatusBadRequest},
		{"bad movement id", http.MethodGet, "/api/v1/movements/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown movement", http.MethodGet, "/api/v1/movements/" + id.New().String(), nil, http.StatusNotFound},
		{"bad group_by", http.MethodGet, "/api/v1/stock/summary?group_by=shelf", nil, http.StatusBadRequest},
		{"bad stock filter", http.MethodGet, "/api/v1/stock?location_id=x", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := e.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, body["code"])
		})
	}
}

func TestUOMRoutes(t *testing.T) {
	e := newAPIEnv(t)

	w, created := e.do(t, http.MethodPost, "/api/v1/uoms", map[string]any{
		"code": "L", "name": "Litre", "symbol": "l", "precision": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	uomID := created["id"].(string)

	w, _ = e.do(t, http.MethodPost, "/api/v1/uoms", map[string]any{
		"code": "L", "name": "Litre again", "symbol": "l",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, updated := e.do(t, http.MethodPatch, "/api/v1/uoms/"+uomID, map[string]any{"name": "Liter"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Liter", updated["name"])

	w, body := e.do(t, http.MethodPost, "/api/v1/uoms/"+uomID+"/active", map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["is_active"])

	w, list := e.do(t, http.MethodGet, "/api/v1/uoms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, list["total_count"])

	w, _ = e.do(t, http.MethodGet, "/api/v1/uoms?filter=notjson", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, conv := e.do(t, http.MethodGet, "/api/v1/uom-convert?from="+e.kg.String()+"&to="+e.kg.String()+"&quantity=1.5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decField(t, conv, "quantity").Equal(decimal.RequireFromString("1.5")))
}

type fakeAudit struct {
	entityType string
	limit      int
}

func (f *fakeAudit) GetEntityHistory(_ context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error) {
	f.entityType, f.limit = entityType, limit
	return []postgres.AuditEntry{{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     postgres.AuditActionUpdate,
		Changes:    json.RawMessage(`{"name":{"old":"Kilo","new":"Kilogram"}}`),
	}}, nil
}

func TestAuditHistory(t *testing.T) {
	audit := &fakeAudit{}
	router := NewRouter(RouterConfig{Audit: audit})
	entityID := id.New()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"history", "/api/v1/audit/unit_of_measure/" + entityID.String() + "?limit=5", http.StatusOK},
		{"unknown entity", "/api/v1/audit/stock/" + entityID.String(), http.StatusBadRequest},
		{"bad id", "/api/v1/audit/item/nope", http.StatusBadRequest},
		{"limit too large", "/api/v1/audit/item/" + entityID.String() + "?limit=1000", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, "unit_of_measure", audit.entityType)
	assert.Equal(t, 5, audit.limit)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit/item/"+entityID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "update", body.Items[0]["action"])
	assert.NotContains(t, body.Items[0], "changes_compressed")
	assert.Equal(t, 50, audit.limit)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		checks map[string]handlers.Pinger
		path   string
		status int
	}{
		{"ready", map[string]handlers.Pinger{"postgres": ok}, "/health", http.StatusOK},
		{"not ready", map[string]handlers.Pinger{"postgres": down}, "/health/ready", http.StatusServiceUnavailable},
		{"live ignores checks", map[string]handlers.Pinger{"postgres": down}, "/health/live", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(RouterConfig{HealthChecks: tt.checks})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}
