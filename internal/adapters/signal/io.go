package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsSignalConn) {
	period := ctl.PingPeriod
	if period <= 0 {
		period = defaultPingPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, uid domain.UserID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(uid)).Msg("readPump closing")
		ctl.Registry.Unbind(uid, c)
		c.Close()
	}()

	// Pongs push the read deadline forward; a peer that stops answering
	// pings times out here.
	period := ctl.PingPeriod
	if period <= 0 {
		period = defaultPingPeriod
	}
	pongWait := period + 10*time.Second
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("user", string(uid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("readPump read error")
				return
			}
			ctl.handleFrame(uid, data)
		}
	}
}

func (ctl *Controller) handleFrame(uid domain.UserID, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	// The socket, not the payload, is the source of truth for identity.
	env.Sender = uid

	switch env.Type {
	case core.MsgPushInvite:
		ctl.handlePushInvite(env)
	case core.MsgPushCancel:
		ctl.handlePushCancel(env)
	case core.MsgSDPOffer:
		if !ctl.Limiter.Allow(uid) {
			log.Warn().Str("module", "signal").
				Str("user", string(uid)).
				Msg("dial rate limit exceeded")
			return
		}
		ctl.Relay.Route(env)
	case core.MsgSDPAnswer, core.MsgICECandidate, core.MsgStatusRemoteMedia,
		core.MsgSDPInit, core.MsgSDPQuit:
		ctl.Relay.Route(env)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
	}
}

// A push invite for an online receiver is redundant; its SDP_OFFER already
// got through. Only offline receivers get it queued.
func (ctl *Controller) handlePushInvite(env core.Envelope) {
	var invite core.PushInvite
	if err := json.Unmarshal(env.Payload, &invite); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad push invite")
		return
	}
	invite.Caller = env.Sender

	if _, online := ctl.Registry.Conn(env.Receiver); online {
		return
	}
	ctl.Relay.Pushes.Store(env.Receiver, invite)
	log.Info().Str("module", "signal").
		Str("receiver", string(env.Receiver)).
		Str("channel", string(invite.Channel)).
		Msg("push invite queued")
}

// Cancel both clears the queue and reaches a ringing receiver so a stale
// native ring stops.
func (ctl *Controller) handlePushCancel(env core.Envelope) {
	ctl.Relay.Pushes.Cancel(env.Receiver, env.Channel)
	ctl.Relay.Route(env)
}
