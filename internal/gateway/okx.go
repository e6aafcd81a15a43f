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

// OKXGateway fetches L2 depth from the OKX REST API.
type OKXGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewOKXGateway creates an OKX adapter with a 10s request timeout.
func NewOKXGateway() *OKXGateway {
	return &OKXGateway{
		baseURL: "https://www.okx.com/api/v5",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (o *OKXGateway) Venue() string { return "okx" }

type okxBookResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Bids [][]string `json:"bids"` // [price, size, liquidated, orders]
		Asks [][]string `json:"asks"`
		Ts   string     `json:"ts"`
	} `json:"data"`
}

// FetchOrderBook pulls /market/books. OKX caps sz at 400.
func (o *OKXGateway) FetchOrderBook(ctx context.Context, symbol string, depthLimit int) (*RawBook, error) {
	if depthLimit <= 0 || depthLimit > 400 {
		depthLimit = 400
	}

	url := fmt.Sprintf("%s/market/books?instId=%s&sz=%d", o.baseURL, toOKXInstrument(symbol), depthLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("okx API error: %d", resp.StatusCode)
	}

	var book okxBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if book.Code != "0" || len(book.Data) == 0 {
		return nil, fmt.Errorf("okx API error: code=%s msg=%s", book.Code, book.Msg)
	}

	data := book.Data[0]
	bids, err := parseOKXLadder(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("bad bid ladder: %w", err)
	}
	asks, err := parseOKXLadder(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("bad ask ladder: %w", err)
	}

	seq, _ := strconv.ParseInt(data.Ts, 10, 64)

	return &RawBook{
		Venue:     "okx",
		Symbol:    symbol,
		Sequence:  seq,
		Bids:      bids,
		Asks:      asks,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// toOKXInstrument converts BTC/USD or BTCUSDT to BTC-USDT style ids.
func toOKXInstrument(symbol string) string {
	s := strings.ToUpper(symbol)
	if strings.Contains(s, "-") {
		return s
	}
	if strings.Contains(s, "/") {
		return strings.ReplaceAll(s, "/", "-")
	}
	for _, quote := range []string{"USDT", "USDC", "USD", "BTC", "ETH"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s[:len(s)-len(quote)] + "-" + quote
		}
	}
	return s
}

// parseOKXLadder takes the first two columns of OKX's four-column rows.
func parseOKXLadder(raw [][]string) ([]domain.PriceLevel, error) {
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
