package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

const feedResponse = `{
	"parsed": [{
		"id": "feed-sol",
		"price": {"price": "15025", "expo": -2, "publish_time": 1735689600}
	}]
}`

func TestClient_GetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "feed-sol")
		w.Write([]byte(feedResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, map[domain.Asset]string{"SOL": "feed-sol"})

	quote, err := c.GetPrice(context.Background(), "SOL")
	require.NoError(t, err)

	// mantisa 15025, expo -2 → 150.25
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("150.25")), "got %s", quote.Price)
	assert.Equal(t, time.Unix(1735689600, 0), quote.PublishedAt)
	assert.Equal(t, domain.Asset("SOL"), quote.Asset)
}

func TestClient_UnknownAsset(t *testing.T) {
	c := NewClient("http://unused", nil)
	_, err := c.GetPrice(context.Background(), "DOGE")
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(feedResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, map[domain.Asset]string{"SOL": "feed-sol"})

	_, err := c.GetPrice(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, map[domain.Asset]string{"SOL": "feed-sol"})

	_, err := c.GetPrice(context.Background(), "SOL")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_EmptyUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"parsed": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, map[domain.Asset]string{"SOL": "feed-sol"})

	_, err := c.GetPrice(context.Background(), "SOL")
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}
