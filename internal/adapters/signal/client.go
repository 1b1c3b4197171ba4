package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

const (
	clientWriteWait  = 5 * time.Second
	clientPingPeriod = 30 * time.Second
	clientSendQueue  = 64
)

// Channel is the peer side of the signaling socket. It implements
// core.SignalSender and core.PushNotifier; inbound envelopes go to Handler.
type Channel struct {
	self domain.UserID
	conn *websocket.Conn
	send chan core.Frame

	Handler func(core.Envelope)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// DialChannel connects to a relay and starts the pumps. The "name" query is
// display metadata only; identity rides the client token cookie.
func DialChannel(ctx context.Context, rawURL string, self domain.UserID, name string, handler func(core.Envelope)) (*Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	ch := &Channel{
		self:    self,
		conn:    conn,
		send:    make(chan core.Frame, clientSendQueue),
		Handler: handler,
		done:    make(chan struct{}),
	}

	go ch.writePump()
	go ch.readPump()

	log.Info().Str("module", "signal.client").Str("user", string(self)).Msg("channel connected")
	return ch, nil
}

func (ch *Channel) Send(target domain.UserID, t core.MessageType, payload []byte, channel domain.ChannelID, sender domain.UserID) error {
	env := core.Envelope{
		Channel:  channel,
		Sender:   sender,
		Receiver: target,
		Type:     t,
		Payload:  payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return ch.trySend(core.Frame(data))
}

func (ch *Channel) Push(target domain.UserID, invite core.PushInvite) error {
	payload, err := json.Marshal(invite)
	if err != nil {
		return err
	}
	return ch.Send(target, core.MsgPushInvite, payload, invite.Channel, ch.self)
}

func (ch *Channel) CancelPush(target domain.UserID, channel domain.ChannelID) error {
	return ch.Send(target, core.MsgPushCancel, nil, channel, ch.self)
}

func (ch *Channel) trySend(f core.Frame) error {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	if ch.closed {
		return errors.New("channel closed")
	}
	select {
	case ch.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

// Done closes when the socket is gone; callers use it to drive reconnects.
func (ch *Channel) Done() <-chan struct{} { return ch.done }

func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	close(ch.send)
	_ = ch.conn.Close()
	ch.mu.Unlock()
}

func (ch *Channel) writePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer func() {
		ticker.Stop()
		ch.Close()
	}()
	for {
		select {
		case data, ok := <-ch.send:
			if !ok {
				return
			}
			_ = ch.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := ch.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal.client").Msg("write error")
				return
			}
		case <-ticker.C:
			_ = ch.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := ch.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ch *Channel) readPump() {
	defer func() {
		ch.Close()
		close(ch.done)
	}()
	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "signal.client").Msg("channel closed")
			return
		}
		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error().Err(err).Str("module", "signal.client").Msg("bad envelope")
			continue
		}
		if ch.Handler != nil {
			ch.Handler(env)
		}
	}
}
