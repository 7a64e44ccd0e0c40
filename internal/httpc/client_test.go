package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"running":true}`))
	})
	mux.HandleFunc("POST /api/arm", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["side"] == "up" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"driver: unknown side \"up\""}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"ids":[7]}`))
	})
	mux.HandleFunc("POST /api/abort/arm", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 0)
}

func TestGet(t *testing.T) {
	c := newAPI(t)

	var st struct {
		Running bool `json:"running"`
	}
	require.NoError(t, c.Get(context.Background(), "/api/status", &st))
	assert.True(t, st.Running)
}

func TestPost(t *testing.T) {
	c := newAPI(t)

	var out struct {
		IDs []uint16 `json:"ids"`
	}
	require.NoError(t, c.Post(context.Background(), "/api/arm", map[string]any{"side": "left"}, &out))
	assert.Equal(t, []uint16{7}, out.IDs)

	require.NoError(t, c.Post(context.Background(), "/api/abort/arm", nil, &out))
}

func TestStatusError(t *testing.T) {
	c := newAPI(t)

	err := c.Post(context.Background(), "/api/arm", map[string]any{"side": "up"}, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Contains(t, se.Message, "unknown side")

	err = c.Get(context.Background(), "/api/missing", nil)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
}
