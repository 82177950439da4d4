package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gl-apps/glsync/internal/config"
	"github.com/gl-apps/glsync/internal/db"
	"github.com/gl-apps/glsync/internal/glide"
	"github.com/gl-apps/glsync/internal/ledger"
	"github.com/gl-apps/glsync/internal/models"
	"github.com/gl-apps/glsync/internal/sync"
	"gorm.io/gorm"
)

type stubGlide struct {
	rows     []map[string]any
	probeErr error
	fetchErr error
}

func (s *stubGlide) Probe(ctx context.Context, creds glide.Credentials) error {
	return s.probeErr
}

func (s *stubGlide) FetchRows(ctx context.Context, creds glide.Credentials, tableName string, limit int) ([]map[string]any, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.rows, nil
}

func (s *stubGlide) TableColumns(ctx context.Context, creds glide.Credentials, tableName string) ([]glide.Column, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if len(s.rows) == 0 {
		return nil, nil
	}
	columns := make([]glide.Column, 0, len(s.rows[0]))
	for id := range s.rows[0] {
		if id == glide.RowIDField {
			continue
		}
		columns = append(columns, glide.Column{ID: id, Name: id, Type: "string"})
	}
	return columns, nil
}

type stubResolver struct{ err error }

func (r *stubResolver) MapRelationships(ctx context.Context, table string) error {
	return r.err
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	glide  *stubGlide
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := conn.Exec("CREATE TABLE products (glide_row_id TEXT PRIMARY KEY, name TEXT, cost REAL)").Error; err != nil {
		t.Fatalf("create destination table: %v", err)
	}

	api := &stubGlide{}
	led := ledger.New(conn)
	resolver := &stubResolver{}
	orchestrator := sync.NewOrchestrator(conn, led, sync.NewGormDestination(conn), api, resolver, config.SyncConfig{FetchLimit: 1000, BatchSize: 100})

	r := gin.New()
	RegisterRoutes(r, Deps{
		DB:           conn,
		Ledger:       led,
		Orchestrator: orchestrator,
		Connections:  sync.NewConnectionManager(conn, api),
		Retry:        sync.NewRetryCoordinator(led),
		Resolver:     resolver,
		Glide:        api,
	})
	return &testEnv{router: r, db: conn, glide: api}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	decoded := map[string]any{}
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

func (e *testEnv) createConnection(t *testing.T) string {
	t.Helper()
	w, resp := e.do(t, http.MethodPost, "/v0/connections", gin.H{
		"app_id": "app-1", "api_key": "key-1", "app_name": "Inventory",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create connection: status %d body %v", w.Code, resp)
	}
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatal("create connection: missing id")
	}
	return id
}

func (e *testEnv) createMapping(t *testing.T, connectionID string) string {
	t.Helper()
	w, resp := e.do(t, http.MethodPost, "/v0/mappings", gin.H{
		"connection_id":  connectionID,
		"glide_table":    "native-table-1",
		"supabase_table": "products",
		"column_mappings": gin.H{
			"colName": gin.H{"glide_column_name": "Name", "supabase_column_name": "name", "data_type": "string"},
			"colCost": gin.H{"glide_column_name": "Cost", "supabase_column_name": "cost", "data_type": "number"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create mapping: status %d body %v", w.Code, resp)
	}
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatal("create mapping: missing id")
	}
	return id
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.do(t, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestConnectionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPost, "/v0/connections", gin.H{"app_id": "app-1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing api_key: status %d body %v", w.Code, resp)
	}

	id := env.createConnection(t)

	w, resp = env.do(t, http.MethodGet, "/v0/connections/"+id, nil)
	if w.Code != http.StatusOK || resp["app_name"] != "Inventory" {
		t.Fatalf("get: status %d body %v", w.Code, resp)
	}

	w, resp = env.do(t, http.MethodPut, "/v0/connections/"+id, gin.H{"app_name": "Warehouse"})
	if w.Code != http.StatusOK || resp["app_name"] != "Warehouse" {
		t.Fatalf("update: status %d body %v", w.Code, resp)
	}

	w, _ = env.do(t, http.MethodDelete, "/v0/connections/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}
	w, _ = env.do(t, http.MethodGet, "/v0/connections/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", w.Code)
	}
}

func TestMappingCreateSynthesizesRowIDEntry(t *testing.T) {
	env := newTestEnv(t)
	connectionID := env.createConnection(t)
	mappingID := env.createMapping(t, connectionID)

	w, resp := env.do(t, http.MethodGet, "/v0/mappings/"+mappingID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get mapping: status %d", w.Code)
	}
	cm, ok := resp["column_mappings"].(map[string]any)
	if !ok {
		t.Fatalf("column_mappings = %v, want object", resp["column_mappings"])
	}
	entry, ok := cm[glide.RowIDField].(map[string]any)
	if !ok {
		t.Fatalf("row id entry missing from %v", cm)
	}
	if entry["supabase_column_name"] != "glide_row_id" {
		t.Fatalf("row id entry = %v, want glide_row_id destination", entry)
	}
}

func TestMappingCreateRejectsDuplicateDestination(t *testing.T) {
	env := newTestEnv(t)
	connectionID := env.createConnection(t)

	w, resp := env.do(t, http.MethodPost, "/v0/mappings", gin.H{
		"connection_id":  connectionID,
		"glide_table":    "native-table-1",
		"supabase_table": "products",
		"column_mappings": gin.H{
			"colA": gin.H{"glide_column_name": "A", "supabase_column_name": "name", "data_type": "string"},
			"colB": gin.H{"glide_column_name": "B", "supabase_column_name": "name", "data_type": "string"},
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body %v, want 400", w.Code, resp)
	}
}

func TestMappingCreateDisabledPersists(t *testing.T) {
	env := newTestEnv(t)
	connectionID := env.createConnection(t)

	w, resp := env.do(t, http.MethodPost, "/v0/mappings", gin.H{
		"connection_id":  connectionID,
		"glide_table":    "native-table-1",
		"supabase_table": "products",
		"enabled":        false,
		"column_mappings": gin.H{
			"colName": gin.H{"glide_column_name": "Name", "supabase_column_name": "name", "data_type": "string"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %v", w.Code, resp)
	}
	mappingID, _ := resp["id"].(string)

	var stored models.Mapping
	if err := env.db.Where("id = ?", mappingID).First(&stored).Error; err != nil {
		t.Fatalf("load mapping: %v", err)
	}
	if stored.Enabled {
		t.Fatal("mapping created with enabled=false was stored enabled")
	}

	w, resp = env.do(t, http.MethodGet, "/v0/mappings/"+mappingID, nil)
	if w.Code != http.StatusOK || resp["enabled"] != false {
		t.Fatalf("get: status %d body %v, want enabled=false", w.Code, resp)
	}
}

func TestDispatchSyncData(t *testing.T) {
	env := newTestEnv(t)
	connectionID := env.createConnection(t)
	mappingID := env.createMapping(t, connectionID)
	env.glide.rows = []map[string]any{
		{"$rowID": "row-1", "colName": "Widget", "colCost": 9.5},
		{"$rowID": "row-2", "colName": "Gadget", "colCost": 3.0},
	}

	w, resp := env.do(t, http.MethodPost, "/v0/glsync", gin.H{
		"action": "syncData", "connectionId": connectionID, "mappingId": mappingID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %v", w.Code, resp)
	}
	if resp["success"] != true || resp["recordsProcessed"] != float64(2) {
		t.Fatalf("body = %v, want success with 2 records", resp)
	}

	var n int64
	if err := env.db.Table("products").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("destination rows = %d, want 2", n)
	}
}

func TestDispatchSyncDataFailureKeepsStatusOK(t *testing.T) {
	env := newTestEnv(t)
	connectionID := env.createConnection(t)
	mappingID := env.createMapping(t, connectionID)
	env.glide.fetchErr = errors.New("glide: api returned 401")

	w, resp := env.do(t, http.MethodPost, "/v0/glsync", gin.H{
		"action": "syncData", "connectionId": connectionID, "mappingId": mappingID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with success=false", w.Code)
	}
	if resp["success"] != false || resp["error"] == "" {
		t.Fatalf("body = %v, want failure envelope", resp)
	}
}

func TestDispatchSyncMappingResolvesConnection(t *testing.T) {
	env := newTestEnv(t)
	connectionID := env.createConnection(t)
	mappingID := env.createMapping(t, connectionID)
	env.glide.rows = []map[string]any{{"$rowID": "row-1", "colName": "Widget"}}

	w, resp := env.do(t, http.MethodPost, "/v0/glsync", gin.H{
		"action": "syncMapping", "mappingId": mappingID,
	})
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("status %d body %v", w.Code, resp)
	}
}

func TestDispatchTestConnection(t *testing.T) {
	env := newTestEnv(t)
	connectionID := env.createConnection(t)

	w, resp := env.do(t, http.MethodPost, "/v0/glsync", gin.H{
		"action": "testConnection", "connectionId": connectionID,
	})
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("status %d body %v", w.Code, resp)
	}

	env.glide.probeErr = errors.New("glide: api returned 403")
	w, resp = env.do(t, http.MethodPost, "/v0/glsync", gin.H{
		"action": "testConnection", "connectionId": connectionID,
	})
	if w.Code != http.StatusOK || resp["success"] != false {
		t.Fatalf("status %d body %v, want 200 with success=false", w.Code, resp)
	}
}

func TestDispatchGetTableNamesDeduplicates(t *testing.T) {
	env := newTestEnv(t)
	connectionID := env.createConnection(t)
	env.createMapping(t, connectionID)
	env.createMapping(t, connectionID)

	w, resp := env.do(t, http.MethodPost, "/v0/glsync", gin.H{"action": "getTableNames"})
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("status %d body %v", w.Code, resp)
	}
	tables, ok := resp["tables"].([]any)
	if !ok || len(tables) != 1 {
		t.Fatalf("tables = %v, want one deduplicated entry", resp["tables"])
	}
}

func TestDispatchUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	w, resp := env.do(t, http.MethodPost, "/v0/glsync", gin.H{"action": "dropEverything"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body %v, want 400", w.Code, resp)
	}
}

func TestRetryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	connectionID := env.createConnection(t)
	mappingID := env.createMapping(t, connectionID)

	// Nothing has run yet.
	w, resp := env.do(t, http.MethodPost, "/v0/mappings/"+mappingID+"/retry", nil)
	if w.Code != http.StatusOK || resp["success"] != false {
		t.Fatalf("status %d body %v, want success=false", w.Code, resp)
	}

	// A failed run makes the mapping retryable.
	env.glide.fetchErr = errors.New("glide: api returned 500")
	env.do(t, http.MethodPost, "/v0/glsync", gin.H{
		"action": "syncData", "connectionId": connectionID, "mappingId": mappingID,
	})

	w, resp = env.do(t, http.MethodPost, "/v0/mappings/"+mappingID+"/retry", nil)
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("status %d body %v, want success=true", w.Code, resp)
	}
	if logID, _ := resp["log_id"].(string); logID == "" {
		t.Fatal("retry response missing log_id")
	}
}

func TestSyncLogsAndErrorsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	connectionID := env.createConnection(t)
	mappingID := env.createMapping(t, connectionID)
	env.glide.rows = []map[string]any{
		{"$rowID": "row-1", "colName": "Widget", "colCost": "not-a-number"},
	}

	env.do(t, http.MethodPost, "/v0/glsync", gin.H{
		"action": "syncData", "connectionId": connectionID, "mappingId": mappingID,
	})

	w, resp := env.do(t, http.MethodGet, "/v0/sync-logs?mapping_id="+mappingID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync-logs: status %d", w.Code)
	}
	logs, _ := resp["logs"].([]any)
	if len(logs) != 1 {
		t.Fatalf("logs = %v, want one run", resp["logs"])
	}
	logEntry := logs[0].(map[string]any)
	if logEntry["status"] != models.SyncStatusCompletedWithErrors {
		t.Fatalf("log status = %v, want completed_with_errors", logEntry["status"])
	}

	w, resp = env.do(t, http.MethodGet, "/v0/sync-errors?mapping_id="+mappingID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync-errors: status %d", w.Code)
	}
	syncErrors, _ := resp["errors"].([]any)
	if len(syncErrors) != 1 {
		t.Fatalf("errors = %v, want one entry", resp["errors"])
	}
	errEntry := syncErrors[0].(map[string]any)
	if errEntry["error_type"] != models.ErrorTypeValidation {
		t.Fatalf("error type = %v, want VALIDATION_ERROR", errEntry["error_type"])
	}

	// The field filter matches on the destination column in the snapshot.
	_, resp = env.do(t, http.MethodGet, "/v0/sync-errors?mapping_id="+mappingID+"&field=cost", nil)
	if matched, _ := resp["errors"].([]any); len(matched) != 1 {
		t.Fatalf("field=cost errors = %v, want one entry", resp["errors"])
	}
	_, resp = env.do(t, http.MethodGet, "/v0/sync-errors?mapping_id="+mappingID+"&field=name", nil)
	if matched, _ := resp["errors"].([]any); len(matched) != 0 {
		t.Fatalf("field=name errors = %v, want none", resp["errors"])
	}

	// Resolve it, then the default listing is empty.
	errID, _ := errEntry["id"].(string)
	w, _ = env.do(t, http.MethodPost, "/v0/sync-errors/"+errID+"/resolve", gin.H{"notes": "fixed upstream"})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: status %d", w.Code)
	}
	w, _ = env.do(t, http.MethodPost, "/v0/sync-errors/"+errID+"/resolve", gin.H{"notes": "again"})
	if w.Code != http.StatusConflict {
		t.Fatalf("double resolve: status %d, want 409", w.Code)
	}

	_, resp = env.do(t, http.MethodGet, "/v0/sync-errors?mapping_id="+mappingID, nil)
	if remaining, _ := resp["errors"].([]any); len(remaining) != 0 {
		t.Fatalf("unresolved errors = %v, want none", resp["errors"])
	}
	_, resp = env.do(t, http.MethodGet, "/v0/sync-errors?mapping_id="+mappingID+"&include_resolved=true", nil)
	if all, _ := resp["errors"].([]any); len(all) != 1 {
		t.Fatalf("all errors = %v, want the resolved entry", resp["errors"])
	}
}
