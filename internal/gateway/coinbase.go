package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CoinbaseGateway fetches L2 depth from the Coinbase Exchange REST API.
type CoinbaseGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinbaseGateway creates a Coinbase adapter with a 10s request timeout.
func NewCoinbaseGateway() *CoinbaseGateway {
	return &CoinbaseGateway{
		baseURL: "https://api.exchange.coinbase.com",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *CoinbaseGateway) Venue() string { return "coinbase" }

type coinbaseBookResponse struct {
	Sequence int64      `json:"sequence"`
	Bids     [][]string `json:"bids"` // [price, size, num_orders]
	Asks     [][]string `json:"asks"`
}

// FetchOrderBook pulls /products/{id}/book. Coinbase level=2 returns the
// top 50 aggregated levels; deeper requests fall back to level 2 and the
// snapshot layer flags the book incomplete.
func (c *CoinbaseGateway) FetchOrderBook(ctx context.Context, symbol string, depthLimit int) (*RawBook, error) {
	url := fmt.Sprintf("%s/products/%s/book?level=2", c.baseURL, toCoinbaseProduct(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "bookpulse/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coinbase API error: %d", resp.StatusCode)
	}

	var book coinbaseBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	bids, err := parseStringLadder(truncateLadder(book.Bids, depthLimit))
	if err != nil {
		return nil, fmt.Errorf("bad bid ladder: %w", err)
	}
	asks, err := parseStringLadder(truncateLadder(book.Asks, depthLimit))
	if err != nil {
		return nil, fmt.Errorf("bad ask ladder: %w", err)
	}

	return &RawBook{
		Venue:     "coinbase",
		Symbol:    symbol,
		Sequence:  book.Sequence,
		Bids:      bids,
		Asks:      asks,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// toCoinbaseProduct converts BTC/USD or BTCUSD to BTC-USD.
func toCoinbaseProduct(symbol string) string {
	s := strings.ToUpper(symbol)
	if strings.Contains(s, "-") {
		return s
	}
	if strings.Contains(s, "/") {
		return strings.ReplaceAll(s, "/", "-")
	}
	for _, quote := range []string{"USDT", "USDC", "USD", "EUR", "BTC"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s[:len(s)-len(quote)] + "-" + quote
		}
	}
	return s
}

func truncateLadder(raw [][]string, limit int) [][]string {
	if limit > 0 && len(raw) > limit {
		return raw[:limit]
	}
	return raw
}
