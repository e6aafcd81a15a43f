package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookpulse/engine/internal/domain"
)

type memSink struct {
	mu      sync.Mutex
	batches [][]domain.Trade
}

func (m *memSink) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make([]domain.Trade, len(trades))
	copy(batch, trades)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *memSink) all() []domain.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Trade
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

// tradeServer upgrades one connection and pushes the given frames.
func tradeServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, frame := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamURLUsesCompactLowercaseSymbol(t *testing.T) {
	ts := NewTradeStream(Config{URL: "wss://example/ws"}, "binance", "BTC-USD", &memSink{}, nil)
	assert.Equal(t, "wss://example/ws/btcusd@aggTrade", ts.streamURL())
}

func TestParseAggTrade(t *testing.T) {
	ts := NewTradeStream(Config{}, "binance", "BTC-USD", &memSink{}, nil)

	trade, err := ts.parseAggTrade([]byte(
		`{"e":"aggTrade","s":"BTCUSD","p":"50000.25","q":"0.5","T":1748779200000,"m":true}`))
	require.NoError(t, err)
	assert.Equal(t, "binance", trade.Venue)
	assert.Equal(t, "BTC-USD", trade.Symbol)
	assert.Equal(t, 50000.25, trade.Price)
	assert.Equal(t, 0.5, trade.Size)
	assert.True(t, trade.IsBuyerMaker)
	assert.Equal(t, time.UnixMilli(1748779200000).UTC(), trade.Timestamp)
}

func TestParseAggTradeRejectsGarbage(t *testing.T) {
	ts := NewTradeStream(Config{}, "binance", "BTC-USD", &memSink{}, nil)

	_, err := ts.parseAggTrade([]byte(`{not json`))
	require.Error(t, err)

	_, err = ts.parseAggTrade([]byte(`{"e":"aggTrade","p":"not-a-price","q":"1","T":1}`))
	require.Error(t, err)

	_, err = ts.parseAggTrade([]byte(`{"e":"depthUpdate","p":"1","q":"1","T":1}`))
	require.Error(t, err)
}

func TestConsumeBatchesBySize(t *testing.T) {
	frames := []string{
		`{"e":"aggTrade","p":"100.0","q":"1","T":1748779200000,"m":false}`,
		`{"e":"aggTrade","p":"100.1","q":"2","T":1748779200100,"m":true}`,
		`{"e":"aggTrade","p":"100.2","q":"3","T":1748779200200,"m":false}`,
	}
	srv := tradeServer(t, frames)
	defer srv.Close()

	sink := &memSink{}
	ts := NewTradeStream(Config{
		URL:           wsURL(srv),
		BatchSize:     2,
		FlushInterval: 50 * time.Millisecond,
	}, "binance", "BTC-USD", sink, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// consume returns when the context expires.
	err := ts.consume(ctx, ts.streamURL())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	trades := sink.all()
	require.Len(t, trades, 3)
	assert.Equal(t, 100.0, trades[0].Price)
	assert.True(t, trades[1].IsBuyerMaker)
	assert.Equal(t, 3.0, trades[2].Size)
}

func TestConsumeSkipsMalformedFrames(t *testing.T) {
	frames := []string{
		`definitely not json`,
		`{"e":"aggTrade","p":"100.0","q":"1","T":1748779200000,"m":false}`,
	}
	srv := tradeServer(t, frames)
	defer srv.Close()

	sink := &memSink{}
	ts := NewTradeStream(Config{
		URL:           wsURL(srv),
		BatchSize:     10,
		FlushInterval: 30 * time.Millisecond,
	}, "binance", "BTC-USD", sink, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = ts.consume(ctx, ts.streamURL())

	trades := sink.all()
	require.Len(t, trades, 1)
	assert.Equal(t, 100.0, trades[0].Price)
}
