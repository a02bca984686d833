package controlpush

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CapIot.telemetry/internal/models"
)

func newPusher(t *testing.T, handler http.HandlerFunc) *HTTPPusher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	host := strings.TrimPrefix(srv.URL, "http://")
	return NewHTTPPusher("http", host, time.Second)
}

func TestPushAttribute(t *testing.T) {
	var gotPath, gotType string
	var gotBody map[string]any
	p := newPusher(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	err := p.PushAttribute(context.Background(), "A1", models.AttrFanSpeed, 50)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/A1/attributes", gotPath)
	assert.Contains(t, gotType, "application/json")
	assert.Equal(t, map[string]any{"fanSpeed": float64(50)}, gotBody)
}

func TestPushAttributeNon2xxFails(t *testing.T) {
	p := newPusher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := p.PushAttribute(context.Background(), "A1", models.AttrLedState, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestPushAttributeTransportFailure(t *testing.T) {
	p := NewHTTPPusher("http", "127.0.0.1:1", 200*time.Millisecond)
	assert.Error(t, p.PushAttribute(context.Background(), "A1", models.AttrLedState, true))
}

func TestFetchClientAttributes(t *testing.T) {
	var gotKeys string
	p := newPusher(t, func(w http.ResponseWriter, r *http.Request) {
		gotKeys = r.URL.Query().Get("clientKeys")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"client":{"fanSpeed":30,"ledState":true,"timeInterval":"15"}}`))
	})

	attrs, err := p.FetchClientAttributes(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "fanSpeed,ledState,timeInterval", gotKeys)
	assert.Equal(t, float64(30), attrs["fanSpeed"])
	assert.Equal(t, true, attrs["ledState"])
	assert.Equal(t, "15", attrs["timeInterval"])
}

func TestFetchClientAttributesEmpty(t *testing.T) {
	p := newPusher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	attrs, err := p.FetchClientAttributes(context.Background(), "A1")
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestFetchClientAttributesError(t *testing.T) {
	p := newPusher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := p.FetchClientAttributes(context.Background(), "A1")
	assert.Error(t, err)
}
