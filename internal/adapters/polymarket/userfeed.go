package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/pairbot/internal/ports"
)

const (
	// DefaultUserFeedURL is the CLOB websocket channel for the wallet's own orders.
	DefaultUserFeedURL = "wss://ws-subscriptions-clob.polymarket.com/ws/user"

	userFeedPingInterval = 10 * time.Second
	userFeedWriteTimeout = 3 * time.Second
)

// UserFeed implements ports.EventFeed over the authenticated user channel.
// A subscription lives for a single window; when the socket drops it is not
// redialled and the risk manager falls back to polling.
type UserFeed struct {
	auth         *AuthClient
	url          string
	pingInterval time.Duration
	dialer       *websocket.Dialer
}

// NewUserFeed creates a feed. An empty url uses DefaultUserFeedURL.
func NewUserFeed(auth *AuthClient, url string) *UserFeed {
	if url == "" {
		url = DefaultUserFeedURL
	}
	return &UserFeed{
		auth:         auth,
		url:          url,
		pingInterval: userFeedPingInterval,
		dialer:       websocket.DefaultDialer,
	}
}

type userSubscribeRequest struct {
	Auth    userFeedAuth `json:"auth"`
	Markets []string     `json:"markets"`
	Type    string       `json:"type"`
}

type userFeedAuth struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// userEvent is the part of an order/trade message we look at.
type userEvent struct {
	EventType string `json:"event_type"`
	Market    string `json:"market"`
}

// Subscribe dials the user channel and subscribes to conditionID.
func (f *UserFeed) Subscribe(ctx context.Context, conditionID string) (ports.Subscription, error) {
	if err := f.auth.DeriveCredentials(ctx); err != nil {
		return nil, fmt.Errorf("userfeed.Subscribe: creds: %w", err)
	}
	creds := f.auth.credentials()

	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("userfeed.Subscribe: dial: %w", err)
	}

	req := userSubscribeRequest{
		Auth:    userFeedAuth{APIKey: creds.APIKey, Secret: creds.Secret, Passphrase: creds.Passphrase},
		Markets: []string{conditionID},
		Type:    "user",
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("userfeed.Subscribe: subscribe: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &userSubscription{
		conn:   conn,
		events: make(chan struct{}, 1),
		cancel: cancel,
	}
	s.connected.Store(true)

	s.wg.Add(2)
	go s.readLoop(sctx)
	go s.pingLoop(sctx, f.pingInterval)

	slog.Info("user feed subscribed", "market", conditionID)
	return s, nil
}

type userSubscription struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	events    chan struct{}
	connected atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (s *userSubscription) Events() <-chan struct{} { return s.events }

func (s *userSubscription) Connected() bool { return s.connected.Load() }

// Close stops the goroutines and closes the socket. Safe to call twice.
func (s *userSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(userFeedWriteTimeout))
		s.writeMu.Unlock()
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

func (s *userSubscription) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer s.connected.Store(false)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, websocket.ErrCloseSent) {
				slog.Warn("user feed disconnected, falling back to polling", "err", err)
			}
			return
		}
		if isOrderEvent(msg) {
			s.signal()
		}
	}
}

func (s *userSubscription) pingLoop(ctx context.Context, every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(userFeedWriteTimeout))
			err := s.conn.WriteMessage(websocket.TextMessage, []byte("PING"))
			s.writeMu.Unlock()
			if err != nil {
				s.connected.Store(false)
				return
			}
		}
	}
}

// signal never blocks: one pending notification is enough to trigger a re-read.
func (s *userSubscription) signal() {
	select {
	case s.events <- struct{}{}:
	default:
	}
}

// isOrderEvent reports whether a frame carries order or trade updates.
// The channel sends single objects or arrays of them, plus PONG keepalives.
func isOrderEvent(msg []byte) bool {
	if len(msg) == 0 || string(msg) == "PONG" {
		return false
	}
	var events []userEvent
	if msg[0] == '[' {
		if err := json.Unmarshal(msg, &events); err != nil {
			return false
		}
	} else {
		var ev userEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			return false
		}
		events = append(events, ev)
	}
	for _, ev := range events {
		if ev.EventType == "order" || ev.EventType == "trade" {
			return true
		}
	}
	return false
}
