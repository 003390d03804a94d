package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

const (
	// Hermes publica cada ~400ms; 10 req/s por asset sobra y no nos banean.
	priceRatePerSec = 10

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client del price feed (API estilo Pyth Hermes) con rate
// limiting y retries. Cada asset soportado mapea a un feed ID hex.
type Client struct {
	http    *http.Client
	base    string
	feeds   map[domain.Asset]string
	limiter *rate.Limiter
}

// NewClient crea un Client para el endpoint dado. feeds mapea asset → feed ID.
func NewClient(base string, feeds map[domain.Asset]string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		feeds:   feeds,
		limiter: rate.NewLimiter(priceRatePerSec, 5),
	}
}

// priceUpdate es la respuesta del endpoint latest. El feed publica el precio
// como mantisa entera más exponente decimal.
type priceUpdate struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// GetPrice obtiene la última cotización del feed del asset.
func (c *Client) GetPrice(ctx context.Context, asset domain.Asset) (domain.PriceQuote, error) {
	feedID, ok := c.feeds[asset]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("oracle.GetPrice: no feed for %s: %w", asset, domain.ErrInvalidPrice)
	}

	endpoint := fmt.Sprintf("%s/v2/updates/price/latest?ids[]=%s", c.base, url.QueryEscape(feedID))

	var update priceUpdate
	if err := c.get(ctx, endpoint, &update); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle.GetPrice: %s: %w", asset, err)
	}
	if len(update.Parsed) == 0 {
		return domain.PriceQuote{}, fmt.Errorf("oracle.GetPrice: empty update for %s: %w", asset, domain.ErrInvalidPrice)
	}

	raw := update.Parsed[0].Price
	mantissa, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle.GetPrice: parse price %q: %w", raw.Price, domain.ErrInvalidPrice)
	}

	return domain.PriceQuote{
		Asset:       asset,
		Price:       mantissa.Shift(raw.Expo),
		PublishedAt: time.Unix(raw.PublishTime, 0),
	}, nil
}

// get hace un GET con rate limiting, backoff exponencial y jitter de retry.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("price feed retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
