package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CapIot.telemetry/internal/models"
)

type influxStub struct {
	mu      sync.Mutex
	bodies  []string
	query   string
	status  string
	buckets map[string]bool
	created []string
}

func newInfluxStub(t *testing.T, status string) (*influxStub, *httptest.Server) {
	stub := &influxStub{status: status, buckets: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			stub.mu.Lock()
			stub.bodies = append(stub.bodies, string(body))
			stub.query = r.URL.RawQuery
			stub.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/buckets":
			w.Header().Set("Content-Type", "application/json")
			stub.mu.Lock()
			defer stub.mu.Unlock()
			if r.Method == http.MethodPost {
				var req struct {
					Name string `json:"name"`
				}
				_ = json.NewDecoder(r.Body).Decode(&req)
				stub.buckets[req.Name] = true
				stub.created = append(stub.created, req.Name)
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `{"id":"b1","name":"`+req.Name+`","orgID":"o1","retentionRules":[]}`)
				return
			}
			name := r.URL.Query().Get("name")
			if !stub.buckets[name] {
				_, _ = io.WriteString(w, `{"buckets":[]}`)
				return
			}
			_, _ = io.WriteString(w, `{"buckets":[{"id":"b1","name":"`+name+`","orgID":"o1","retentionRules":[]}]}`)
		case "/api/v2/orgs":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"orgs":[{"id":"o1","name":"`+r.URL.Query().Get("org")+`"}]}`)
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"name":"influxdb","message":"ready","status":"`+stub.status+`","checks":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func TestInfluxWriteSample(t *testing.T) {
	stub, srv := newInfluxStub(t, "pass")
	repo := NewInfluxDBRepository(srv.URL, "token", "capiot", "telemetry")
	defer repo.Close()

	sample := models.TelemetrySample{AccountID: 7, Timestamp: 1700000000, Temperature: ptr(21.5), PM25: ptr(0)}
	require.NoError(t, repo.WriteSample(context.Background(), sample))

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.bodies, 1)
	line := stub.bodies[0]
	assert.Contains(t, line, "telemetry,account_id=7 ")
	assert.Contains(t, line, "temperature=21.5")
	assert.Contains(t, line, "pm25=0")
	assert.NotContains(t, line, "humidity")
	assert.Contains(t, line, "1700000000000000000")
	assert.Contains(t, stub.query, "bucket=telemetry")
	assert.Contains(t, stub.query, "org=capiot")
}

func TestInfluxWriteSampleSkipsEmpty(t *testing.T) {
	stub, srv := newInfluxStub(t, "pass")
	repo := NewInfluxDBRepository(srv.URL, "token", "capiot", "telemetry")
	defer repo.Close()

	require.NoError(t, repo.WriteSample(context.Background(), models.TelemetrySample{AccountID: 7, Timestamp: 1}))
	assert.Empty(t, stub.bodies)
}

func TestInfluxHealth(t *testing.T) {
	_, srv := newInfluxStub(t, "pass")
	repo := NewInfluxDBRepository(srv.URL, "token", "capiot", "telemetry")
	defer repo.Close()
	assert.NoError(t, repo.Health(context.Background()))

	_, failing := newInfluxStub(t, "fail")
	bad := NewInfluxDBRepository(failing.URL, "token", "capiot", "telemetry")
	defer bad.Close()
	assert.Error(t, bad.Health(context.Background()))
}

func TestInfluxEnsureBucket(t *testing.T) {
	stub, srv := newInfluxStub(t, "pass")
	repo := NewInfluxDBRepository(srv.URL, "token", "capiot", "telemetry")
	defer repo.Close()

	created, err := repo.EnsureBucket(context.Background())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.EnsureBucket(context.Background())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"telemetry"}, stub.created)
}
