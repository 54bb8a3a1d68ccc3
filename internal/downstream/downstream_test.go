package downstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-labs/scriptrt/internal/engine/enginerr"
)

func TestRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/store/get", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "acct1", body["account_id"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"balance": 42})
	}))
	defer srv.Close()

	c := New(map[string]string{"store": srv.URL}, nil)
	result, err := c.Request(context.Background(), "store", "get", map[string]any{"account_id": "acct1"}, 0)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"balance": float64(42)}, result)
}

func TestRequestUnknownServiceReturnsInternalError(t *testing.T) {
	c := New(nil, nil)
	_, err := c.Request(context.Background(), "nope", "get", nil, 0)
	require.Error(t, err)
	var ie *enginerr.InternalError
	require.ErrorAs(t, err, &ie)
}

func TestRequestNonSuccessStatusReturnsInternalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := New(map[string]string{"store": srv.URL}, nil)
	_, err := c.Request(context.Background(), "store", "get", nil, 0)
	require.Error(t, err)
	var ie *enginerr.InternalError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, http.StatusBadGateway, ie.Code())
}

func TestRequestEmptyBodyReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(map[string]string{"store": srv.URL}, nil)
	result, err := c.Request(context.Background(), "store", "get", nil, 0)
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestPublisherPublishesTopicAndPayload(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewPublisher(srv.URL, nil)
	err := p.Publish(context.Background(), "accounts.deleted", map[string]any{"account_id": "a1"})
	require.NoError(t, err)
	require.Equal(t, "accounts.deleted", gotBody["topic"])
}

func TestPublisherNoURLIsNoop(t *testing.T) {
	p := NewPublisher("", nil)
	require.NoError(t, p.Publish(context.Background(), "x", nil))
}

func TestConfigSourceDelegatesToConfigService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/config/get", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "myapp", body["app_name"])
		_ = json.NewEncoder(w).Encode(map[string]any{"feature_flag": true})
	}))
	defer srv.Close()

	cs := &ConfigSource{Client: New(map[string]string{"config": srv.URL}, nil)}
	result, err := cs.GetConfig(context.Background(), "myapp", "v1")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"feature_flag": true}, result)
}
