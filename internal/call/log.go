package call

import (
	"github.com/rs/zerolog"

	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

// LoggerSink records call logs through zerolog. It is the default sink when
// the embedding application does not provide its own.
type LoggerSink struct {
	Logger zerolog.Logger
}

func (s LoggerSink) Record(cl domain.CallLog) {
	ev := s.Logger.Info().
		Str("module", "call.log").
		Str("call", string(cl.Call)).
		Str("channel", string(cl.Channel)).
		Str("peer", string(cl.Peer)).
		Str("role", cl.Role.String()).
		Str("cause", string(cl.Cause)).
		Bool("connected", cl.Connected)
	if cl.Connected {
		ev = ev.Dur("duration", cl.Duration)
	}
	ev.Msg("call ended")
}
