package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/api"
	"github.com/ayo6706/transaction-stream-processor/internal/api/handler"
	"github.com/ayo6706/transaction-stream-processor/internal/api/middleware"
	"github.com/ayo6706/transaction-stream-processor/internal/config"
	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/ayo6706/transaction-stream-processor/internal/models"
	"github.com/ayo6706/transaction-stream-processor/internal/observability"
	"github.com/ayo6706/transaction-stream-processor/internal/repository"
	"github.com/ayo6706/transaction-stream-processor/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "transaction-stream-processor-test"
	testJWTAudience = "transaction-api-test"
)

func TestMain(m *testing.M) {
	observability.Init()
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)
	os.Exit(m.Run())
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type testEnv struct {
	router     http.Handler
	store      *repository.MemoryStore
	publisher  *recordingPublisher
	processing *service.ProcessingService
}

func testConfig() *config.Config {
	return &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
	}
}

func setupRouter(checks ...handler.Check) *testEnv {
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{}
	creation := service.NewCreationService(store, pub)
	reader := service.NewTransactionService(store, store)
	router := api.NewRouter(testConfig(), zap.NewNop(), creation, reader, checks...)
	return &testEnv{
		router:     router.Routes(),
		store:      store,
		publisher:  pub,
		processing: service.NewProcessingService(store, pub),
	}
}

func generateTestToken(userID string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"iss":     testJWTIssuer,
		"aud":     testJWTAudience,
		"sub":     userID,
		"iat":     now.Unix(),
		"nbf":     now.Add(-30 * time.Second).Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})
	tokenString, _ := token.SignedString(middleware.JWTSecret())
	return tokenString
}

func validBody(ref string) map[string]interface{} {
	return map[string]interface{}{
		"amount":             "150.00",
		"currency":           "BRL",
		"type":               "CREDIT",
		"occurred_at":        "2024-01-15T10:00:00Z",
		"external_reference": ref,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+generateTestToken(uuid.NewString()))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeTransaction(t *testing.T, w *httptest.ResponseRecorder) models.TransactionResponse {
	t.Helper()
	var resp models.TransactionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateTransaction(t *testing.T) {
	env := setupRouter()

	w := env.do(t, http.MethodPost, "/v1/transactions", validBody("REF-001"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decodeTransaction(t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "CREATED", created.Status)
	assert.Equal(t, "CREDIT", created.Type)
	assert.Equal(t, "BRL", created.Money.Currency)
	assert.Equal(t, "150", created.Money.Amount.String())
	assert.Equal(t, "REF-001", created.ExternalReference)
	assert.Equal(t, "/v1/transactions/"+created.ID, w.Header().Get("Location"))
	assert.Equal(t, 1, env.publisher.count(domain.TopicTransactionCreated))
}

func TestCreateTransactionReplay(t *testing.T) {
	env := setupRouter()

	first := env.do(t, http.MethodPost, "/v1/transactions", validBody("REF-REPLAY"))
	require.Equal(t, http.StatusCreated, first.Code)

	replayBody := validBody("REF-REPLAY")
	replayBody["amount"] = "999.99"
	second := env.do(t, http.MethodPost, "/v1/transactions", replayBody)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	original := decodeTransaction(t, first)
	replayed := decodeTransaction(t, second)
	assert.Equal(t, original.ID, replayed.ID)
	assert.Equal(t, "150", replayed.Money.Amount.String())
	assert.Equal(t, 1, env.store.Count())
	assert.Equal(t, 1, env.publisher.count(domain.TopicTransactionCreated))
}

func TestCreateTransactionValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(body map[string]interface{})
		detail string
	}{
		{"missing amount", func(b map[string]interface{}) { delete(b, "amount") }, "amount is required"},
		{"zero amount", func(b map[string]interface{}) { b["amount"] = "0" }, "amount must be at least 0.01"},
		{"sub-cent amount", func(b map[string]interface{}) { b["amount"] = "0.001" }, "amount must be at least 0.01"},
		{"three decimal places", func(b map[string]interface{}) { b["amount"] = "10.555" }, "at most 2 decimal places"},
		{"negative amount", func(b map[string]interface{}) { b["amount"] = "-5.00" }, "amount must be at least 0.01"},
		{"missing currency", func(b map[string]interface{}) { delete(b, "currency") }, "currency is required"},
		{"unknown currency", func(b map[string]interface{}) { b["currency"] = "JPY" }, "currency must be one of"},
		{"missing type", func(b map[string]interface{}) { b["type"] = " " }, "type is required"},
		{"unknown type", func(b map[string]interface{}) { b["type"] = "REFUND" }, "type must be one of CREDIT, DEBIT"},
		{"missing occurred_at", func(b map[string]interface{}) { delete(b, "occurred_at") }, "occurred_at is required"},
		{"blank reference", func(b map[string]interface{}) { b["external_reference"] = "   " }, "external_reference is required"},
		{"long reference", func(b map[string]interface{}) { b["external_reference"] = strings.Repeat("x", 101) }, "at most 100 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter()
			body := validBody("REF-VALIDATION")
			tt.mutate(body)

			w := env.do(t, http.MethodPost, "/v1/transactions", body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.detail)
			assert.Equal(t, 0, env.store.Count())
			assert.Equal(t, 0, env.publisher.count(domain.TopicTransactionCreated))
		})
	}
}

func TestCreateTransactionRejectsMalformedJSON(t *testing.T) {
	env := setupRouter()
	w := env.do(t, http.MethodPost, "/v1/transactions", `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestCreateTransactionBoundaryInputs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(body map[string]interface{})
		status int
	}{
		{"trailing zeros beyond scale", func(b map[string]interface{}) { b["amount"] = "10.5500" }, http.StatusCreated},
		{"minimum amount", func(b map[string]interface{}) { b["amount"] = "0.01" }, http.StatusCreated},
		{"100 multi-byte characters", func(b map[string]interface{}) { b["external_reference"] = strings.Repeat("é", 100) }, http.StatusCreated},
		{"101 multi-byte characters", func(b map[string]interface{}) { b["external_reference"] = strings.Repeat("é", 101) }, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupRouter()
			body := validBody("REF-BOUNDARY")
			tt.mutate(body)

			w := env.do(t, http.MethodPost, "/v1/transactions", body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestTransactionRoutesRequireAuth(t *testing.T) {
	env := setupRouter()

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"bad token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/transactions/"+uuid.NewString(), nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestGetTransaction(t *testing.T) {
	env := setupRouter()
	created := decodeTransaction(t, env.do(t, http.MethodPost, "/v1/transactions", validBody("REF-GET")))

	w := env.do(t, http.MethodGet, "/v1/transactions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decodeTransaction(t, w).ID)

	w = env.do(t, http.MethodGet, "/v1/transactions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/v1/transactions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransactionHistory(t *testing.T) {
	env := setupRouter()
	created := decodeTransaction(t, env.do(t, http.MethodPost, "/v1/transactions", validBody("REF-HISTORY")))

	id, err := domain.ParseTransactionID(created.ID)
	require.NoError(t, err)
	_, err = env.processing.ProcessByID(context.Background(), id)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/v1/transactions/"+created.ID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.TransactionHistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.TransactionID)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "CREATED", resp.Entries[0].NextState)
	assert.Equal(t, "CREATED", resp.Entries[1].PrevState)
	assert.Equal(t, "PROCESSED", resp.Entries[1].NextState)

	fetched := decodeTransaction(t, env.do(t, http.MethodGet, "/v1/transactions/"+created.ID, nil))
	assert.Equal(t, "PROCESSED", fetched.Status)
	assert.Equal(t, 1, env.publisher.count(domain.TopicTransactionProcessed))

	w = env.do(t, http.MethodGet, "/v1/transactions/"+uuid.NewString()+"/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	healthy := setupRouter(handler.Check{Name: "database", Ping: func(context.Context) error { return nil }})
	unhealthy := setupRouter(
		handler.Check{Name: "database", Ping: func(context.Context) error { return nil }},
		handler.Check{Name: "broker", Ping: func(context.Context) error { return errors.New("connection refused") }},
	)

	tests := []struct {
		name   string
		router http.Handler
		path   string
		status int
	}{
		{"live", healthy.router, "/health/live", http.StatusOK},
		{"ready", healthy.router, "/health/ready", http.StatusOK},
		{"ready with broken dependency", unhealthy.router, "/health/ready", http.StatusServiceUnavailable},
		{"live with broken dependency", unhealthy.router, "/health/live", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestPublicDocumentationRoutes(t *testing.T) {
	env := setupRouter()

	tests := []struct {
		path     string
		contains string
	}{
		{"/openapi.yaml", "/v1/transactions"},
		{"/swagger/index.html", "swagger"},
		{"/metrics", "go_goroutines"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, strings.ToLower(w.Body.String()), tt.contains)
		})
	}
}
