package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sqlsage/sqlsage/internal/auth"
	"github.com/sqlsage/sqlsage/internal/config"
	"github.com/sqlsage/sqlsage/internal/execute"
	"github.com/sqlsage/sqlsage/internal/index"
	"github.com/sqlsage/sqlsage/internal/repair"
	"github.com/sqlsage/sqlsage/internal/schema"
	"github.com/sqlsage/sqlsage/internal/session"
)

func TestHealthEndpoint(t *testing.T) {
	cfg, err := config.Load("sqlsage-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg, err := config.Load("sqlsage-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		Readiness: func(_ context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg, err := config.Load("sqlsage-api", mapLookup(map[string]string{
		"SQLSAGE_AUTH_REQUIRED": "true",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	validator, err := auth.NewStaticAPIKeyValidator("k1:analyst")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Loop:           &fakeLoop{outcome: successfulOutcome()},
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodPost, "/v1/ask", askBody(t, askRequest{Question: "how many users"})))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodPost, "/v1/ask", askBody(t, askRequest{Question: "how many users"}))
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body=%s", authResp.Code, authResp.Body.String())
	}
}

func TestRebuildRequiresAdminRole(t *testing.T) {
	cfg, err := config.Load("sqlsage-api", mapLookup(map[string]string{
		"SQLSAGE_AUTH_REQUIRED": "true",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	validator, err := auth.NewStaticAPIKeyValidator("k1:analyst,k2:admin")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Schema:         &fakeSchemaSource{current: sampleSchema()},
		Index:          &fakeIndexAdmin{},
	})

	analystReq := httptest.NewRequest(http.MethodPost, "/v1/index/rebuild", nil)
	analystReq.Header.Set("X-API-Key", "k1")
	analystResp := httptest.NewRecorder()
	h.ServeHTTP(analystResp, analystReq)
	if analystResp.Code != http.StatusForbidden {
		t.Fatalf("analyst status = %d", analystResp.Code)
	}

	adminReq := httptest.NewRequest(http.MethodPost, "/v1/index/rebuild", nil)
	adminReq.Header.Set("X-API-Key", "k2")
	adminResp := httptest.NewRecorder()
	h.ServeHTTP(adminResp, adminReq)
	if adminResp.Code != http.StatusOK {
		t.Fatalf("admin status = %d, body=%s", adminResp.Code, adminResp.Body.String())
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckAIConfigRequiresKeyForOpenAIEmbeddings(t *testing.T) {
	cfg, err := config.Load("sqlsage-api", mapLookup(map[string]string{
		"SQLSAGE_AI_EMBED_PROVIDER": "openai",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	if err := CheckAIConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected readiness failure without api key")
	}

	cfg.AI.APIKey = "sk-test"
	if err := CheckAIConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckAIConfig() error = %v", err)
	}
}

type fakeLoop struct {
	outcome repair.Outcome
	err     error
	calls   int
}

func (f *fakeLoop) Run(_ context.Context, _ string, _ *session.State) (repair.Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

type fakeSchemaSource struct {
	current schema.Schema
	err     error
}

func (f *fakeSchemaSource) Discover(_ context.Context) (schema.Schema, error) {
	return f.current, f.err
}

type fakeIndexAdmin struct {
	rebuilds  int
	fragments []index.Fragment
	err       error
}

func (f *fakeIndexAdmin) Rebuild(_ context.Context, _ schema.Schema) error {
	if f.err != nil {
		return f.err
	}
	f.rebuilds++
	return nil
}

func (f *fakeIndexAdmin) Fragments() []index.Fragment {
	return f.fragments
}

func successfulOutcome() repair.Outcome {
	result := execute.Result{
		Columns: []string{"count"},
		Rows:    [][]any{{int64(42)}},
	}
	return repair.Outcome{
		State:    repair.StateSucceeded,
		FinalSQL: "SELECT COUNT(*) FROM users",
		Result:   result,
		Attempts: []repair.Attempt{{Number: 1, SQL: "SELECT COUNT(*) FROM users", Result: &result}},
	}
}

func sampleSchema() schema.Schema {
	return schema.Schema{Tables: []schema.Table{
		{
			Name: "users",
			Columns: []schema.Column{
				{Name: "id", Type: "bigint"},
				{Name: "email", Type: "text"},
			},
		},
	}}
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
