package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"conway-token-lab/internal/observability"
)

// TransferFilter selects Transfer logs of one contract. Nil From/To match any
// address.
type TransferFilter struct {
	Contract common.Address
	From     *common.Address
	To       *common.Address
}

// params renders the eth_subscribe("logs", ...) filter object.
func (f TransferFilter) params() map[string]interface{} {
	topics := []interface{}{TransferTopic, nil, nil}
	if f.From != nil {
		topics[1] = addressTopic(*f.From)
	}
	if f.To != nil {
		topics[2] = addressTopic(*f.To)
	}
	return map[string]interface{}{
		"address": f.Contract,
		"topics":  topics,
	}
}

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription id.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// WSClient streams Transfer logs over eth_subscribe using gorilla/websocket.
// Subscriptions survive reconnects; they are re-issued with their original filter.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription id to its channel and filter
	subs   map[string]*wsSubscription
	subsMu sync.RWMutex

	// pendingSubs maps request id to a subscription awaiting confirmation
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

type wsSubscription struct {
	ch     chan TransferEvent
	filter TransferFilter
}

// pendingSub is registered in subs by the read loop when its confirmation
// arrives, before any later notification is dispatched.
type pendingSub struct {
	sub      *wsSubscription
	replaces string
	confirm  chan string
}

// NewWSClient connects to endpoint and starts the read and ping loops.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, logger *zap.Logger) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger,
		subs:        make(map[string]*wsSubscription),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return &ProviderError{Method: "eth_subscribe", Err: fmt.Errorf("websocket dial: %w", err)}
	}

	c.conn = conn
	return nil
}

// SubscribeTransfers subscribes to Transfer logs matching filter.
// The returned channel is closed when the client is closed.
func (c *WSClient) SubscribeTransfers(ctx context.Context, filter TransferFilter) (<-chan TransferEvent, error) {
	// Large buffer absorbs bursts; sends block rather than drop
	sub := &wsSubscription{ch: make(chan TransferEvent, 1024), filter: filter}

	subID, err := c.subscribe(ctx, sub, "")
	if err != nil {
		c.unregister(sub)
		return nil, err
	}

	c.logger.Info("subscribed to transfers",
		zap.String("subscription", subID),
		zap.String("contract", filter.Contract.Hex()))
	return sub.ch, nil
}

// subscribe sends eth_subscribe for sub and waits for the subscription id.
// The read loop stores sub under the new id, dropping replaces, as soon as
// the confirmation is read.
func (c *WSClient) subscribe(ctx context.Context, sub *wsSubscription, replaces string) (string, error) {
	if c.closed.Load() {
		return "", fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []interface{}{"logs", sub.filter.params()},
	}

	confirmCh := make(chan string, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = &pendingSub{sub: sub, replaces: replaces, confirm: confirmCh}
	c.pendingSubsMu.Unlock()

	forget := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		forget()
		return "", &ProviderError{Method: "eth_subscribe", Err: fmt.Errorf("not connected")}
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		forget()
		return "", &ProviderError{Method: "eth_subscribe", Err: fmt.Errorf("write subscribe: %w", err)}
	}

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return "", fmt.Errorf("client closed")
		}
		return subID, nil
	case <-time.After(c.config.SubscribeTimeout):
		forget()
		return "", &ProviderError{Method: "eth_subscribe", Err: fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)}
	case <-c.done:
		return "", fmt.Errorf("client closed")
	case <-ctx.Done():
		forget()
		return "", ctx.Err()
	}
}

// Close closes the connection and all subscription channels.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	return nil
}

// readLoop reads messages and dispatches them; read errors trigger a reconnect.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			c.logger.Warn("websocket read failed", zap.Error(err), zap.Duration("reconnect_in", reconnectDelay))
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// reconnect re-dials and re-issues every active subscription.
func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Warn("websocket reconnect failed", zap.Error(err))
		return
	}
	if c.closed.Load() {
		c.connMu.Lock()
		c.conn.Close()
		c.connMu.Unlock()
		return
	}

	c.resubscribeAll()
}

func (c *WSClient) resubscribeAll() {
	c.subsMu.RLock()
	old := make(map[string]*wsSubscription, len(c.subs))
	for id, sub := range c.subs {
		old[id] = sub
	}
	c.subsMu.RUnlock()

	for oldID, sub := range old {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newID, err := c.subscribe(ctx, sub, oldID)
		cancel()
		if err != nil {
			c.logger.Warn("resubscribe failed", zap.String("subscription", oldID), zap.Error(err))
			continue
		}
		c.logger.Debug("resubscribed",
			zap.String("old", oldID),
			zap.String("subscription", newID))
	}
}

// unregister drops every subs entry pointing at sub.
func (c *WSClient) unregister(sub *wsSubscription) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for id, s := range c.subs {
		if s == sub {
			delete(c.subs, id)
		}
	}
}

// handleMessage routes subscription confirmations and notifications.
func (c *WSClient) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug("ignoring undecodable websocket message", zap.Error(err))
		return
	}

	switch {
	case msg.Method == "eth_subscription" && msg.Params != nil:
		c.handleNotification(msg.Params)
	case msg.Error != nil:
		c.logger.Warn("websocket error response",
			zap.Uint64("id", msg.ID),
			zap.Int("code", msg.Error.Code),
			zap.String("message", msg.Error.Message))
	case msg.ID != 0 && len(msg.Result) > 0:
		var subID string
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return
		}
		c.pendingSubsMu.Lock()
		p, ok := c.pendingSubs[msg.ID]
		if ok {
			delete(c.pendingSubs, msg.ID)
		}
		c.pendingSubsMu.Unlock()
		if !ok {
			return
		}

		c.subsMu.Lock()
		if p.replaces != "" {
			delete(c.subs, p.replaces)
		}
		c.subs[subID] = p.sub
		c.subsMu.Unlock()

		select {
		case p.confirm <- subID:
		default:
		}
	}
}

func (c *WSClient) handleNotification(params *wsNotificationParams) {
	var l types.Log
	if err := json.Unmarshal(params.Result, &l); err != nil {
		c.logger.Debug("ignoring undecodable log", zap.Error(err))
		return
	}
	ev, ok := parseTransferLog(&l)
	if !ok {
		return
	}

	c.subsMu.RLock()
	sub, ok := c.subs[params.Subscription]
	c.subsMu.RUnlock()
	if !ok {
		return
	}

	observability.RecordWSNotification()
	select {
	case sub.ch <- ev:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection surfaces as a read error in readLoop
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// wsMessage covers responses and notifications.
type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id,omitempty"`
	Method  string                `json:"method,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *rpcError             `json:"error,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}
