package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// LogEvent is one log delivered by an eth_subscribe("logs") subscription.
type LogEvent struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// Subscription is one live websocket log subscription. Reads use a short
// deadline so the owning loop stays cancellable.
type Subscription struct {
	conn *websocket.Conn
}

type subscribeNotification struct {
	Method string `json:"method"`
	Params struct {
		Result json.RawMessage `json:"result"`
	} `json:"params"`
}

// SubscribeLogs dials the websocket endpoint and subscribes to logs for the
// given addresses. An empty address list subscribes to all logs.
func SubscribeLogs(ctx context.Context, wsURL string, addresses []string) (*Subscription, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	filter := map[string]any{}
	if len(addresses) > 0 {
		filter["address"] = addresses
	}
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []any{"logs", filter},
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe write: %w", err)
	}

	// First frame is the subscription ack.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var ack struct {
		Result string    `json:"result"`
		Error  *rpcError `json:"error"`
	}
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe ack: %w", err)
	}
	if ack.Error != nil {
		conn.Close()
		return nil, ack.Error
	}

	return &Subscription{conn: conn}, nil
}

// ErrReadTimeout marks a deadline expiry with no frame; the caller should
// poll again.
var ErrReadTimeout = fmt.Errorf("subscription read timeout")

// Next reads one log event, waiting at most timeout. Non-log frames return
// (nil, nil).
func (s *Subscription) Next(timeout time.Duration) (*LogEvent, error) {
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return nil, ErrReadTimeout
		}
		return nil, err
	}

	var note subscribeNotification
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, nil
	}
	if note.Method != "eth_subscription" || note.Params.Result == nil {
		return nil, nil
	}
	var ev LogEvent
	if err := json.Unmarshal(note.Params.Result, &ev); err != nil {
		return nil, nil
	}
	return &ev, nil
}

// Close tears down the websocket.
func (s *Subscription) Close() error {
	return s.conn.Close()
}
