// Package stream consumes venue trade websockets and feeds trade prints to
// storage for the footprint branch.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/bookpulse/engine/internal/domain"
	"github.com/bookpulse/engine/internal/telemetry"
)

// Sink receives batched trade prints. persistence.TradeRepo satisfies it.
type Sink interface {
	InsertBatch(ctx context.Context, trades []domain.Trade) error
}

// Config tunes the trade stream consumer.
type Config struct {
	// URL is the websocket base, e.g. wss://stream.binance.com:9443/ws.
	URL            string        `yaml:"url" env:"STREAM_URL"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	BatchSize      int           `yaml:"batch_size"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
}

// DefaultConfig targets the Binance combined trade stream.
func DefaultConfig() Config {
	return Config{
		URL:            "wss://stream.binance.com:9443/ws",
		ReconnectDelay: 5 * time.Second,
		BatchSize:      100,
		FlushInterval:  2 * time.Second,
	}
}

// TradeStream consumes one venue/symbol aggregate-trade stream and flushes
// batches to the sink.
type TradeStream struct {
	cfg     Config
	venue   string
	symbol  string
	sink    Sink
	metrics *telemetry.Metrics
}

// NewTradeStream builds a consumer for one venue/symbol. Pass metrics as nil
// to skip instrumentation.
func NewTradeStream(cfg Config, venue, symbol string, sink Sink, metrics *telemetry.Metrics) *TradeStream {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &TradeStream{cfg: cfg, venue: venue, symbol: symbol, sink: sink, metrics: metrics}
}

// streamURL appends the per-symbol aggTrade stream name.
func (ts *TradeStream) streamURL() string {
	compact := strings.NewReplacer("-", "", "/", "").Replace(strings.ToLower(ts.symbol))
	return fmt.Sprintf("%s/%s@aggTrade", ts.cfg.URL, compact)
}

// Run consumes the stream until the context is cancelled, reconnecting with
// a fixed delay on any connection failure.
func (ts *TradeStream) Run(ctx context.Context) error {
	url := ts.streamURL()
	for {
		if err := ts.consume(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if ts.metrics != nil {
				ts.metrics.StreamReconnects.WithLabelValues(ts.venue).Inc()
			}
			log.Warn().Err(err).Str("venue", ts.venue).Str("symbol", ts.symbol).
				Dur("retry_in", ts.cfg.ReconnectDelay).Msg("trade stream dropped")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ts.cfg.ReconnectDelay):
		}
	}
}

// consume runs one websocket session: dial, read, batch, flush.
func (ts *TradeStream) consume(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	log.Debug().Str("venue", ts.venue).Str("symbol", ts.symbol).Msg("trade stream connected")

	msgs := make(chan []byte, 256)
	readErr := make(chan error, 1)
	go func() {
		defer close(msgs)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			msgs <- message
		}
	}()

	batch := make([]domain.Trade, 0, ts.cfg.BatchSize)
	flushTicker := time.NewTicker(ts.cfg.FlushInterval)
	defer flushTicker.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ts.sink.InsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("flush %d trades: %w", len(batch), err)
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			_ = flush()
			return ctx.Err()
		case err := <-readErr:
			if ferr := flush(); ferr != nil {
				log.Warn().Err(ferr).Msg("trade batch lost on disconnect")
			}
			return fmt.Errorf("websocket read: %w", err)
		case <-flushTicker.C:
			if err := flush(); err != nil {
				return err
			}
		case message, ok := <-msgs:
			if !ok {
				// Reader exited; its error arrives on readErr.
				msgs = nil
				continue
			}
			trade, err := ts.parseAggTrade(message)
			if err != nil {
				// Malformed frames are dropped, the session survives.
				log.Debug().Err(err).Msg("unparseable trade frame")
				continue
			}
			if ts.metrics != nil {
				ts.metrics.StreamTrades.WithLabelValues(ts.venue).Inc()
			}
			batch = append(batch, trade)
			if len(batch) >= ts.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// aggTradeEvent is the Binance aggregate trade frame.
type aggTradeEvent struct {
	EventType    string `json:"e"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

func (ts *TradeStream) parseAggTrade(data []byte) (domain.Trade, error) {
	var raw aggTradeEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Trade{}, fmt.Errorf("decode trade frame: %w", err)
	}
	if raw.EventType != "" && raw.EventType != "aggTrade" && raw.EventType != "trade" {
		return domain.Trade{}, fmt.Errorf("unexpected event type %q", raw.EventType)
	}

	price, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse price %q: %w", raw.Price, err)
	}
	size, err := strconv.ParseFloat(raw.Quantity, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse quantity %q: %w", raw.Quantity, err)
	}

	return domain.Trade{
		Venue:        ts.venue,
		Symbol:       ts.symbol,
		Timestamp:    time.UnixMilli(raw.TradeTime).UTC(),
		Price:        price,
		Size:         size,
		IsBuyerMaker: raw.IsBuyerMaker,
	}, nil
}
