package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/overclock/pkg/catalog"
	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/pipeline"
	"github.com/matzehuels/overclock/pkg/recipe"
)

const ironPlan = `{
  "name": "plates",
  "fixed_clocks": {"Iron Plate": 100},
  "power": {"fixed_buildings": {"Iron Plate": 1, "Iron Ingot": 1, "Iron Ore": 1}}
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cat, err := recipe.NewCatalog(
		&recipe.Recipe{Name: "Iron Ore", Building: "Miner Mk.1", Kind: recipe.Ore, Time: 1, BasePower: 5e6,
			Rates: []recipe.Rate{{Resource: "Iron Ore", Quantity: 1, Time: 1}}},
		&recipe.Recipe{Name: "Iron Ingot", Building: "Smelter", Time: 2, BasePower: 4e6,
			Rates: []recipe.Rate{
				{Resource: "Iron Ingot", Quantity: 1, Time: 2},
				{Resource: "Iron Ore", Quantity: -1, Time: 2},
			}},
		&recipe.Recipe{Name: "Iron Plate", Building: "Constructor", Time: 6, BasePower: 4e6,
			Rates: []recipe.Rate{
				{Resource: "Iron Plate", Quantity: 2, Time: 6},
				{Resource: "Iron Ingot", Quantity: -3, Time: 6},
			}},
	)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	logger := log.New(io.Discard)
	srv := New(Config{
		Repository: catalog.NewMemory("iron", cat),
		Runner:     pipeline.NewRunner(nil, nil, logger),
		Logger:     logger,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func postPlan(t *testing.T, ts *httptest.Server, contentType, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/plans", contentType, strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/plans: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body := decode[healthResponse](t, resp)
	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %+v", resp.StatusCode, body)
	}
	if body.Catalog != "memory:iron" {
		t.Errorf("Catalog = %q, want memory:iron", body.Catalog)
	}
}

func TestRecipes(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Iron Ingot", "Iron Ore", "Iron Plate"}},
		{"?building=Smelter", []string{"Iron Ingot"}},
		{"?produces=Iron+Plate", []string{"Iron Plate"}},
		{"?building=Refinery", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/v1/recipes" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			body := decode[recipesResponse](t, resp)
			if body.Count != len(tt.want) {
				t.Fatalf("Count = %d, want %d", body.Count, len(tt.want))
			}
			for i, r := range body.Recipes {
				if r.Name != tt.want[i] {
					t.Errorf("Recipes[%d] = %q, want %q", i, r.Name, tt.want[i])
				}
			}
		})
	}
}

func TestGetRecipe(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/recipes/Iron%20Plate")
	if err != nil {
		t.Fatal(err)
	}
	rec := decode[recipe.Recipe](t, resp)
	if rec.Name != "Iron Plate" || rec.Building != "Constructor" {
		t.Errorf("recipe = %+v", rec)
	}

	resp, err = http.Get(ts.URL + "/v1/recipes/Steel%20Beam")
	if err != nil {
		t.Fatal(err)
	}
	body := decode[ErrorBody](t, resp)
	if resp.StatusCode != http.StatusNotFound || body.Error.Code != errors.ErrCodeNotFound {
		t.Errorf("missing recipe = %d %+v", resp.StatusCode, body)
	}
}

func TestPlanLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := postPlan(t, ts, "application/json", ironPlan)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	created := decode[map[string]any](t, resp)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("response has no id: %v", created)
	}
	if loc := resp.Header.Get("Location"); loc != "/v1/plans/"+id {
		t.Errorf("Location = %q", loc)
	}

	resp, err := http.Get(ts.URL + "/v1/plans/" + id)
	if err != nil {
		t.Fatal(err)
	}
	fetched := decode[map[string]any](t, resp)
	if fetched["id"] != id || fetched["name"] != "plates" {
		t.Errorf("fetched plan = %v", fetched)
	}

	resp, err = http.Get(ts.URL + "/v1/plans/" + id + "/graph.svg")
	if err != nil {
		t.Fatal(err)
	}
	svg, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(string(svg), "<svg") {
		t.Errorf("graph is not SVG: %.80s", svg)
	}

	resp, err = http.Get(ts.URL + "/v1/plans/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown plan status = %d, want 404", resp.StatusCode)
	}
}

func TestCreatePlanTOML(t *testing.T) {
	ts := newTestServer(t)
	body := `
name = "plates"

[fixed_clocks]
"Iron Plate" = 100

[power.fixed_buildings]
"Iron Plate" = 1
"Iron Ingot" = 1
"Iron Ore" = 1
`
	resp := postPlan(t, ts, "application/toml; charset=utf-8", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
}

func TestCreatePlanErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   errors.Code
	}{
		{"malformed", `{`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"unknown field", `{"fixed_clocks": {"Iron Plate": 100}, "shards": 3}`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"no anchors", `{"name": "empty"}`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"catalog", `{"catalog": "other.toml", "fixed_clocks": {"Iron Plate": 100}}`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"unknown recipe", `{"fixed_clocks": {"Steel Beam": 100}}`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postPlan(t, ts, "application/json", tt.body)
			body := decode[ErrorBody](t, resp)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.code)
			}
			if body.Error.Message == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestCreatePlanConcurrent(t *testing.T) {
	ts := newTestServer(t)

	var wg sync.WaitGroup
	statuses := make([]int, 4)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/v1/plans", "application/json", strings.NewReader(ironPlan))
			if err != nil {
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()
	for i, s := range statuses {
		if s != http.StatusCreated {
			t.Errorf("request %d status = %d, want 201", i, s)
		}
	}
}

func TestPlanStoreEviction(t *testing.T) {
	store := newPlanStore(2, 0)
	for _, id := range []string{"a", "b", "c"} {
		store.Add(id, &pipeline.Result{ID: id})
	}
	if _, ok := store.Get("a"); ok {
		t.Error("oldest plan should be evicted")
	}
	for _, id := range []string{"b", "c"} {
		if _, ok := store.Get(id); !ok {
			t.Errorf("plan %q missing", id)
		}
	}
}

func TestPlanStoreExpiry(t *testing.T) {
	store := newPlanStore(2, 20*time.Millisecond)
	store.Add("a", &pipeline.Result{ID: "a"})
	if _, ok := store.Get("a"); !ok {
		t.Fatal("fresh plan missing")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := store.Get("a"); ok {
		t.Error("expired plan should not be served")
	}
}
