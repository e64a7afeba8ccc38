package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/yieldfund/internal/config"
	"github.com/aristath/yieldfund/internal/di"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret-batch-key"

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:      dir,
		Port:         8001,
		DevMode:      true,
		BatchSecret:  testSecret,
		RateLimitRPS: 0,
		Timezone:     time.UTC,
		Accrual: config.AccrualConfig{
			Schedule:       "0 5 0 * * *",
			Mode:           config.AccrualModeDaily,
			MaxCatchUpDays: 7,
			Epsilon:        decimal.RequireFromString("0.01"),
			AmountScale:    2,
		},
		Withdrawal: config.WithdrawalConfig{
			FeeRate:    decimal.RequireFromString("0.05"),
			DailyLimit: 3,
		},
		Consolidation: config.ConsolidationConfig{Workers: 2},
		Backup: config.BackupConfig{
			Prefix:        "fund",
			Schedule:      "0 30 1 * * *",
			LocalDir:      filepath.Join(dir, "backups"),
			RetentionDays: 30,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	log := zerolog.New(nil).Level(zerolog.Disabled)
	container, _, err := di.Wire(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	return New(Config{Log: log, Config: cfg, Container: container})
}

func do(t *testing.T, s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func signedToken(t *testing.T, key string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops-admin",
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/api/system/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SystemStatusResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Data.Status)
	assert.True(t, resp.Data.Database.OK)
	assert.Greater(t, resp.Data.Database.SizeBytes, int64(0))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	do(t, s, http.MethodGet, "/health", "", "")
	w := do(t, s, http.MethodGet, "/metrics", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "fund_http_requests_total")
	assert.Contains(t, body, `route="/health"`)
}

func TestProtectedRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"no credential", "", http.StatusUnauthorized},
		{"wrong secret", "not-the-secret", http.StatusUnauthorized},
		{"shared secret", testSecret, http.StatusOK},
		{"valid jwt", signedToken(t, testSecret, time.Now().Add(time.Hour)), http.StatusOK},
		{"jwt signed with other key", signedToken(t, "other-key", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired jwt", signedToken(t, testSecret, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodGet, "/api/batch/accrual/runs", tt.token, "")
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
			}
		})
	}

	for _, path := range []string{"/api/admin/withdrawals/pending", "/api/batch/accrual"} {
		method := http.MethodGet
		if path == "/api/batch/accrual" {
			method = http.MethodPost
		}
		w := do(t, s, method, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestProtectedRoutes_OpenWithoutSecret(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.BatchSecret = "" })

	w := do(t, s, http.MethodGet, "/api/admin/withdrawals/pending", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPublicRoutesNeedNoCredential(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/api/positions/inv-1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/api/withdrawals/evaluate/inv-1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitRateLimited(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.RateLimitRPS = 1 })

	body := `{"investor_id":"inv-1","product_id":"mining-1","amount":"1"}`
	first := do(t, s, http.MethodPost, "/api/withdrawals", "", body)
	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)

	second := do(t, s, http.MethodPost, "/api/withdrawals", "", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	// reads are not limited
	w := do(t, s, http.MethodGet, "/api/withdrawals/evaluate/inv-1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestImportAccrueAndWithdraw(t *testing.T) {
	s := newTestServer(t, nil)

	importBody := `{"entries":[
		{"investor_id":"inv-1","product_id":"mining-1","principal":"0","units":10,"purchase_date":"2026-01-01T00:00:00Z","contract_signed":true,"approved":true}
	]}`
	w := do(t, s, http.MethodPost, "/api/consolidation/import", testSecret, importBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, s, http.MethodPost, "/api/batch/accrual?manual=true", testSecret, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var trigger struct {
		Success    bool `json:"success"`
		Statistics struct {
			Processed int `json:"processed"`
			Updated   int `json:"updated"`
		} `json:"statistics"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&trigger))
	assert.True(t, trigger.Success)
	assert.Equal(t, 1, trigger.Statistics.Processed)
	assert.Equal(t, 1, trigger.Statistics.Updated)

	w = do(t, s, http.MethodGet, "/api/positions/inv-1", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Data struct {
			Count     int `json:"count"`
			Positions []struct {
				ProductID     string          `json:"product_id"`
				AccruedIncome decimal.Decimal `json:"accrued_income"`
			} `json:"positions"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Equal(t, 1, list.Data.Count)
	assert.Equal(t, "mining-1", list.Data.Positions[0].ProductID)
	assert.True(t, list.Data.Positions[0].AccruedIncome.IsPositive())
}
