package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/syntick/syntick/shared/models"
)

// streamMessage mirrors the server's websocket envelope.
type streamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Subscriber connects to the simulator's websocket stream and prints what
// it receives, reconnecting with exponential backoff on failure.
type Subscriber struct {
	url    string
	format string
}

// NewSubscriber creates a subscriber for the given websocket URL.
func NewSubscriber(url, format string) *Subscriber {
	return &Subscriber{url: url, format: format}
}

// Run connects and consumes until the context is cancelled. Connection
// failures and drops trigger reconnection with backoff.
func (s *Subscriber) Run(ctx context.Context) error {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = time.Second
	strategy.MaxInterval = 30 * time.Second
	strategy.MaxElapsedTime = 0 // keep trying until cancelled

	operation := func() error {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			log.Printf("⚠️ Connection lost, reconnecting: %v", err)
			return err
		}
		return backoff.Permanent(nil) // clean shutdown
	}

	err := backoff.Retry(operation, backoff.WithContext(strategy, ctx))
	if err == ctx.Err() {
		return nil
	}
	return err
}

// consume holds one websocket session, printing messages as they arrive.
func (s *Subscriber) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()
	log.Printf("✅ Connected to %s", s.url)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		s.display(raw)
	}
}

func (s *Subscriber) display(raw []byte) {
	if s.format == "json" {
		fmt.Println(string(raw))
		return
	}

	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("⚠️ Unparseable message: %v", err)
		return
	}

	switch msg.Type {
	case "tick":
		var snap models.LiveSnapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			return
		}
		fmt.Printf("🟡 %s | O:%.4f H:%.4f L:%.4f C:%.4f V:%.2f | %.0fs left\n",
			time.UnixMilli(snap.Timestamp).Format("15:04:05"),
			snap.Open, snap.High, snap.Low, snap.Close, snap.Volume, snap.TimeRemaining)
	case "candle":
		var c models.Candle
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			return
		}
		fmt.Printf("🟢 %s %s | O:%.4f H:%.4f L:%.4f C:%.4f V:%.2f | %s\n",
			c.Symbol, time.UnixMilli(c.Timestamp).Format("15:04:05"),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.Mode)
	case "event":
		var ev models.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		fmt.Printf("⚡ %s regime=%s mode=%s %s\n", ev.Type, ev.Regime, ev.Mode, ev.Detail)
	default:
		fmt.Println(string(raw))
	}
}
