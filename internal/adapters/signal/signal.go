package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/app"
	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const (
	defaultReadLimit  = 32768
	defaultPingPeriod = 54 * time.Second
)

// Controller terminates signaling WebSockets and feeds envelopes into the
// relay. One instance serves all peers.
type Controller struct {
	Relay    *app.Relay
	Registry *app.PeerRegistry
	Limiter  *DialRateLimiter

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(relay *app.Relay) *Controller {
	return &Controller{
		Relay:      relay,
		Registry:   relay.Registry,
		Limiter:    NewDialRateLimiter(5, dialRateWindow),
		ReadLimit:  defaultReadLimit,
		PingPeriod: defaultPingPeriod,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("user", string(uid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	user := &domain.User{ID: uid, Username: c.Query("name")}
	ctx, cancel := context.WithCancel(ctx)
	ctl.Registry.Bind(user, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, uid, conn)

	ctl.deliverPending(uid, conn)
}

// deliverPending hands over invites that rang while the peer was offline.
func (ctl *Controller) deliverPending(uid domain.UserID, conn *WsSignalConn) {
	for _, invite := range ctl.Relay.Pushes.TakeAll(uid) {
		payload, err := json.Marshal(invite)
		if err != nil {
			continue
		}
		env := core.Envelope{
			Channel:  invite.Channel,
			Sender:   invite.Caller,
			Receiver: uid,
			Type:     core.MsgPushInvite,
			Payload:  payload,
		}
		data, err := json.Marshal(env)
		if err != nil {
			continue
		}
		if err := conn.TrySend(core.Frame(data)); err != nil {
			log.Warn().Str("module", "signal").
				Str("user", string(uid)).
				Msg("pending invite dropped on backpressure")
			return
		}
		log.Info().Str("module", "signal").
			Str("user", string(uid)).
			Str("channel", string(invite.Channel)).
			Msg("pending invite delivered")
	}
}
