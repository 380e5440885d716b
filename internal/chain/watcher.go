package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Log Watcher: live StakedTokenCreated detection via eth_subscribe
// ---------------------------------------------------------------------------

// StakingIndex maps deposit tokens to their staking deployment.
type StakingIndex struct {
	mu      sync.RWMutex
	byToken map[common.Address]StakingData
}

// NewStakingIndex creates an empty index.
func NewStakingIndex() *StakingIndex {
	return &StakingIndex{byToken: make(map[common.Address]StakingData)}
}

func (i *StakingIndex) Put(token common.Address, d StakingData) {
	i.mu.Lock()
	i.byToken[token] = d
	i.mu.Unlock()
}

func (i *StakingIndex) Get(token common.Address) (StakingData, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	d, ok := i.byToken[token]
	return d, ok
}

func (i *StakingIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.byToken)
}

// WatcherConfig configures the log watcher.
type WatcherConfig struct {
	WSEndpoint       string
	StakingFactory   common.Address
	ReconnectDelayMs int
	PingIntervalS    int

	// OnEvent, when set, is called for every indexed deployment.
	OnEvent func(token common.Address, d StakingData)
}

// LogWatcher subscribes to the staking factory's StakedTokenCreated logs and
// records every event in a StakingIndex.
type LogWatcher struct {
	config WatcherConfig
	index  *StakingIndex

	mu   sync.Mutex
	conn *websocket.Conn

	nextID atomic.Int64

	// Stats.
	messagesRecv atomic.Int64
	eventsSeen   atomic.Int64
	reconnects   atomic.Int64
	connected    atomic.Bool
}

// NewLogWatcher creates a watcher feeding index.
func NewLogWatcher(config WatcherConfig, index *StakingIndex) *LogWatcher {
	if config.ReconnectDelayMs == 0 {
		config.ReconnectDelayMs = 1000
	}
	if config.PingIntervalS == 0 {
		config.PingIntervalS = 30
	}
	return &LogWatcher{config: config, index: index}
}

// Run connects and re-connects until ctx is cancelled.
func (w *LogWatcher) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("watcher: run panic recovered")
		}
		w.disconnect()
	}()

	baseDelay := time.Duration(w.config.ReconnectDelayMs) * time.Millisecond
	maxDelay := 30 * time.Second
	delay := baseDelay

	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.connect(ctx); err != nil {
			log.Warn().Err(err).Dur("retry_in", delay).Msg("watcher: connection failed")
			w.reconnects.Add(1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}
		delay = baseDelay

		if err := w.subscribe(); err != nil {
			log.Warn().Err(err).Msg("watcher: subscribe failed")
			w.disconnect()
			continue
		}

		w.readLoop(ctx)
		w.disconnect()
	}
}

func (w *LogWatcher) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.config.WSEndpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("watcher: dial: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	w.connected.Store(true)

	log.Info().Str("endpoint", w.config.WSEndpoint).Msg("watcher: connected")
	return nil
}

func (w *LogWatcher) disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected.Store(false)
}

func (w *LogWatcher) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("watcher: not connected")
	}
	return w.conn.WriteJSON(v)
}

// subscribe sends eth_subscribe for the staking factory's event logs.
func (w *LogWatcher) subscribe() error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      w.nextID.Add(1),
		"method":  "eth_subscribe",
		"params": []any{
			"logs",
			map[string]any{
				"address": w.config.StakingFactory.Hex(),
				"topics":  []string{StakedTokenCreatedTopic.Hex()},
			},
		},
	}
	if err := w.write(req); err != nil {
		return fmt.Errorf("watcher: write subscribe: %w", err)
	}
	log.Info().Str("factory", w.config.StakingFactory.Hex()).Msg("watcher: subscribed to staking logs")
	return nil
}

func (w *LogWatcher) readLoop(ctx context.Context) {
	pingInterval := time.Duration(w.config.PingIntervalS) * time.Second

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return
	}

	// Unblock ReadMessage when ctx ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				w.mu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				w.mu.Unlock()
				if err != nil {
					log.Debug().Err(err).Msg("watcher: ping failed")
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("watcher: read error, reconnecting")
			}
			w.connected.Store(false)
			return
		}
		w.messagesRecv.Add(1)
		w.handleMessage(message)
	}
}

type logNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Address         string   `json:"address"`
			Topics          []string `json:"topics"`
			Data            string   `json:"data"`
			BlockNumber     string   `json:"blockNumber"`
			TransactionHash string   `json:"transactionHash"`
			Removed         bool     `json:"removed"`
		} `json:"result"`
	} `json:"params"`
}

func (w *LogWatcher) handleMessage(data []byte) {
	var n logNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return
	}
	if n.Method != "eth_subscription" {
		var ack struct {
			Result string `json:"result"`
		}
		if json.Unmarshal(data, &ack) == nil && ack.Result != "" {
			log.Debug().Str("sub_id", ack.Result).Msg("watcher: subscription confirmed")
		}
		return
	}

	r := n.Params.Result
	if r.Removed || len(r.Topics) == 0 || !strings.EqualFold(r.Topics[0], StakedTokenCreatedTopic.Hex()) {
		return
	}

	raw, err := hexutil.Decode(r.Data)
	if err != nil {
		log.Debug().Err(err).Msg("watcher: bad log data")
		return
	}
	ev, err := decodeStakedTokenCreated(raw)
	if err != nil {
		log.Debug().Err(err).Msg("watcher: undecodable StakedTokenCreated")
		return
	}

	d := StakingData{StakeToken: ev.stakeToken, Pool: ev.pool}
	w.index.Put(ev.depositToken, d)
	w.eventsSeen.Add(1)
	if w.config.OnEvent != nil {
		w.config.OnEvent(ev.depositToken, d)
	}

	log.Info().
		Str("token", LowerHex(ev.depositToken)).
		Str("stake_token", LowerHex(ev.stakeToken)).
		Str("pool", LowerHex(ev.pool)).
		Str("tx_hash", r.TransactionHash).
		Msg("watcher: staking deployment indexed")
}

// WatcherStats returns watcher statistics.
type WatcherStats struct {
	Connected    bool  `json:"connected"`
	MessagesRecv int64 `json:"messages_recv"`
	EventsSeen   int64 `json:"events_seen"`
	Reconnects   int64 `json:"reconnects"`
}

func (w *LogWatcher) Stats() WatcherStats {
	return WatcherStats{
		Connected:    w.connected.Load(),
		MessagesRecv: w.messagesRecv.Load(),
		EventsSeen:   w.eventsSeen.Load(),
		Reconnects:   w.reconnects.Load(),
	}
}
