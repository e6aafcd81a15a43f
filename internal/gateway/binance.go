package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookpulse/engine/internal/domain"
)

// BinanceGateway fetches L2 depth from the Binance spot REST API.
type BinanceGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewBinanceGateway creates a Binance adapter with a 10s request timeout.
func NewBinanceGateway() *BinanceGateway {
	return &BinanceGateway{
		baseURL: "https://api.binance.com/api/v3",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (b *BinanceGateway) Venue() string { return "binance" }

type binanceDepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// FetchOrderBook pulls /depth. Binance caps limit at 5000 and only accepts
// fixed steps; we pass the requested limit through and let normalization
// mark incomplete books.
func (b *BinanceGateway) FetchOrderBook(ctx context.Context, symbol string, depthLimit int) (*RawBook, error) {
	if depthLimit <= 0 {
		depthLimit = 100
	}

	url := fmt.Sprintf("%s/depth?symbol=%s&limit=%d", b.baseURL, toBinanceSymbol(symbol), depthLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance API error: %d", resp.StatusCode)
	}

	var depth binanceDepthResponse
	if err := json.NewDecoder(resp.Body).Decode(&depth); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	bids, err := parseStringLadder(depth.Bids)
	if err != nil {
		return nil, fmt.Errorf("bad bid ladder: %w", err)
	}
	asks, err := parseStringLadder(depth.Asks)
	if err != nil {
		return nil, fmt.Errorf("bad ask ladder: %w", err)
	}

	return &RawBook{
		Venue:     "binance",
		Symbol:    symbol,
		Sequence:  depth.LastUpdateID,
		Bids:      bids,
		Asks:      asks,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// toBinanceSymbol converts BTC-USD / BTC/USD to BTCUSDT.
func toBinanceSymbol(symbol string) string {
	s := strings.NewReplacer("-", "", "/", "").Replace(strings.ToUpper(symbol))
	if strings.HasSuffix(s, "USD") && !strings.HasSuffix(s, "USDT") {
		s += "T"
	}
	return s
}

// parseStringLadder decodes [["price","size"], ...] payloads.
func parseStringLadder(raw [][]string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("short ladder entry: %v", entry)
		}
		price, err := strconv.ParseFloat(entry[0], 64)
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", entry[0], err)
		}
		size, err := strconv.ParseFloat(entry[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad size %q: %w", entry[1], err)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}
