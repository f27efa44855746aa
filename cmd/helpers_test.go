package cmd

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/config"
	"github.com/xkilldash9x/sentinai-cli/internal/store"
)

var fixedNow = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

// -- Fixtures --

func fixtureHistory() []schemas.AnalysisResult {
	return []schemas.AnalysisResult{
		{
			ID: "r1", InputType: schemas.InputCode, Content: "db.Query(q)", RiskScore: 80,
			CreatedAt: "2024-03-01T10:00:00Z", UpdatedAt: "2024-03-01T10:00:00Z",
			Vulnerabilities: []schemas.Vulnerability{
				{ID: "v1", Type: "SQL Injection", Severity: schemas.SeverityHigh, Location: "line 3"},
				{ID: "v2", Type: "Hardcoded API key", Severity: schemas.SeverityLow, Location: "line 9"},
			},
		},
		{
			ID: "r2", InputType: schemas.InputSQL, Content: "SELECT 1", RiskScore: 40,
			CreatedAt: "2024-03-02T09:00:00Z", UpdatedAt: "2024-03-02T09:00:00Z",
			Vulnerabilities: []schemas.Vulnerability{
				{ID: "v3", Type: "Reflected XSS", Severity: schemas.SeverityCritical, Location: "line 1"},
			},
		},
		{
			ID: "r3", InputType: schemas.InputConfig, Content: "debug: true", RiskScore: 10,
			CreatedAt: "not-a-date", UpdatedAt: "not-a-date",
			Vulnerabilities: []schemas.Vulnerability{},
		},
	}
}

var testUser = schemas.User{ID: "u1", Email: "ada@example.com", Name: "Ada"}

// signedToken returns an HS256 token expiring at exp. The CLI never verifies it.
// Valid tokens must expire after the real clock, which the client checks.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testUser.ID,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

// -- Fake analysis service --

type fakeService struct {
	t       *testing.T
	server  *httptest.Server
	token   string
	history []schemas.AnalysisResult
	metrics *schemas.DashboardMetrics
	// analyzeRisk is the riskScore returned by /api/analyze.
	analyzeRisk int

	mu       sync.Mutex
	requests []*http.Request
	analyzed []schemas.AnalysisRequest
	logouts  int
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	fs := &fakeService{
		t:           t,
		token:       signedToken(t, time.Now().Add(24*time.Hour)),
		history:     fixtureHistory(),
		analyzeRisk: 75,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req schemas.AnalysisRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.analyzed = append(fs.analyzed, req)
		risk := fs.analyzeRisk
		fs.mu.Unlock()
		fs.writeJSON(w, http.StatusOK, schemas.AnalysisResult{
			ID: "new1", InputType: req.InputType, Content: req.Content, RiskScore: risk,
			CreatedAt: "2024-03-05T12:00:00Z", UpdatedAt: "2024-03-05T12:00:00Z",
			Vulnerabilities: []schemas.Vulnerability{
				{ID: "nv1", Type: "SQL injection in query builder", Severity: schemas.SeverityHigh, Location: "line 2"},
				{ID: "nv2", Type: "Verbose errors", Severity: schemas.SeverityLow, Location: "line 7"},
			},
		})
	})
	mux.HandleFunc("/api/analyze/history", func(w http.ResponseWriter, r *http.Request) {
		fs.record(r)
		fs.writeJSON(w, http.StatusOK, fs.history)
	})
	mux.HandleFunc("/api/dashboard/metrics", func(w http.ResponseWriter, r *http.Request) {
		fs.record(r)
		if fs.metrics == nil {
			fs.writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "metrics unavailable"})
			return
		}
		fs.writeJSON(w, http.StatusOK, fs.metrics)
	})
	mux.HandleFunc("/auth/google", func(w http.ResponseWriter, r *http.Request) {
		var req schemas.GoogleLoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Token != "google-id-token" {
			fs.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid Google token"})
			return
		}
		fs.writeJSON(w, http.StatusOK, schemas.AuthResponse{Token: fs.token, User: testUser})
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+fs.token {
			fs.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not authenticated"})
			return
		}
		fs.writeJSON(w, http.StatusOK, testUser)
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.logouts++
		fs.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/ethics/check", func(w http.ResponseWriter, r *http.Request) {
		var check schemas.ComplianceCheck
		_ = json.NewDecoder(r.Body).Decode(&check)
		if strings.Contains(check.Purpose, "audit") {
			fs.writeJSON(w, http.StatusOK, schemas.ComplianceVerdict{Compliant: true, Message: "Authorized security review"})
			return
		}
		fs.writeJSON(w, http.StatusOK, schemas.ComplianceVerdict{
			Compliant: false,
			Message:   "Purpose not permitted",
			Warnings:  []string{"Only analyze systems you own or are authorized to test"},
		})
	})
	mux.HandleFunc("/api/ethics/policies", func(w http.ResponseWriter, r *http.Request) {
		fs.writeJSON(w, http.StatusOK, []schemas.EthicalNotice{
			{Title: "Responsible Use", Content: "Analyze only code you are authorized to test.", LastUpdated: "2024-01-01"},
		})
	})

	fs.server = httptest.NewServer(mux)
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeService) record(r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.requests = append(fs.requests, r.Clone(context.Background()))
}

func (fs *fakeService) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(fs.t, json.NewEncoder(w).Encode(v))
}

func (fs *fakeService) analyzedRequests() []schemas.AnalysisRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]schemas.AnalysisRequest(nil), fs.analyzed...)
}

func (fs *fakeService) requestCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.requests)
}

func (fs *fakeService) logoutCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.logouts
}

// -- In-memory cache --

type fakeCache struct {
	mu            sync.Mutex
	results       map[string]schemas.AnalysisResult
	schemaEnsured bool
	saveErr       error
}

func newFakeCache(seed ...schemas.AnalysisResult) *fakeCache {
	c := &fakeCache{results: map[string]schemas.AnalysisResult{}}
	for _, r := range seed {
		c.results[r.ID] = r
	}
	return c
}

func (c *fakeCache) EnsureSchema(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemaEnsured = true
	return nil
}

func (c *fakeCache) SaveResults(ctx context.Context, results []schemas.AnalysisResult) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return 0, c.saveErr
	}
	for _, r := range results {
		c.results[r.ID] = r
	}
	return len(results), nil
}

func (c *fakeCache) ListResults(ctx context.Context, q store.Query) ([]schemas.AnalysisResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []schemas.AnalysisResult{}
	for _, r := range c.results {
		if len(q.InputTypes) > 0 && !containsType(q.InputTypes, r.InputType) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (c *fakeCache) History(ctx context.Context) ([]schemas.AnalysisResult, error) {
	return c.ListResults(ctx, store.Query{})
}

func (c *fakeCache) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results), nil
}

func containsType(types []schemas.InputType, t schemas.InputType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

type fakeStoreProvider struct {
	cache    *fakeCache
	err      error
	cleanups int
}

func (p *fakeStoreProvider) Create(ctx context.Context, cfg config.Interface) (resultCache, func(), error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.cache, func() { p.cleanups++ }, nil
}

var errNoDatabase = errors.New("local cache is not configured")

// -- Command harness --

type testEnv struct {
	t           *testing.T
	deps        *dependencies
	stores      *fakeStoreProvider
	service     *fakeService
	sessionPath string
	stdin       *bytes.Buffer
}

// newTestEnv points the CLI at a fake service with an isolated session file.
// It uses t.Setenv, so tests using it must not run in parallel.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		t:           t,
		stores:      &fakeStoreProvider{cache: newFakeCache()},
		service:     newFakeService(t),
		sessionPath: filepath.Join(t.TempDir(), "session.json"),
		stdin:       &bytes.Buffer{},
	}
	env.deps = &dependencies{
		stores: env.stores,
		listen: net.Listen,
		stdin:  env.stdin,
		now:    func() time.Time { return fixedNow },
	}

	t.Setenv("SENTINAI_SESSION_PATH", env.sessionPath)
	t.Setenv("SENTINAI_API_BASE_URL", env.service.server.URL)
	t.Setenv("SENTINAI_API_MAX_RETRIES", "0")
	t.Setenv("SENTINAI_DASHBOARD_TREND_TIMEZONE", "UTC")
	return env
}

// execute runs the CLI with args and returns what it wrote to stdout.
func (env *testEnv) execute(args ...string) (string, error) {
	env.t.Helper()
	return env.executeContext(context.Background(), args...)
}

func (env *testEnv) executeContext(ctx context.Context, args ...string) (string, error) {
	env.t.Helper()
	root := newRootCommand(env.deps)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

// login stores a valid session for the fake service.
func (env *testEnv) login() {
	env.t.Helper()
	_, err := env.execute("login", "--id-token", "google-id-token")
	require.NoError(env.t, err)
}

// jsonEnvelope is the subset of the JSON report the tests inspect.
type jsonEnvelope struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Results     []struct {
		ID             string         `json:"_id"`
		InputType      string         `json:"inputType"`
		RiskScore      int            `json:"riskScore"`
		CategoryCounts map[string]int `json:"categoryCounts"`
		Findings       []struct {
			ID       string  `json:"_id"`
			Severity string  `json:"severity"`
			Category *string `json:"owaspCategory"`
			CWE      string  `json:"cwe"`
		} `json:"findings"`
	} `json:"results"`
	Metrics *schemas.DashboardMetrics `json:"metrics"`
}

func decodeEnvelope(t *testing.T, out string) jsonEnvelope {
	t.Helper()
	var env jsonEnvelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), "output was: %s", out)
	return env
}

func resultIDs(env jsonEnvelope) []string {
	ids := make([]string, len(env.Results))
	for i, r := range env.Results {
		ids[i] = r.ID
	}
	return ids
}
