package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/adapters/media"
	"github.com/phuocnguyenncc/mezon-sub000/internal/adapters/rtc"
	signaladapter "github.com/phuocnguyenncc/mezon-sub000/internal/adapters/signal"
	"github.com/phuocnguyenncc/mezon-sub000/internal/call"
	"github.com/phuocnguyenncc/mezon-sub000/internal/config"
	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

// buildAcquirer picks the capture backend. Device capture brings its own
// encoders, so it also populates the media engine; the synthetic source
// negotiates default codecs.
func buildAcquirer(devices bool) (core.MediaAcquirer, func(*webrtc.MediaEngine)) {
	if devices {
		dev, err := media.NewDeviceAcquirer()
		if err != nil {
			log.Warn().Err(err).Msg("device capture unavailable, using synthetic tracks")
			return media.SyntheticAcquirer{}, nil
		}
		return dev, dev.Populate
	}
	return media.SyntheticAcquirer{}, nil
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/api/ws/signal", "signaling relay URL")
	name := flag.String("name", "peer", "display name")
	self := flag.String("user", "", "user id (random when empty)")
	peer := flag.String("peer", "", "user id to call; empty waits for incoming calls")
	channel := flag.String("channel", "", "channel id for the outbound call")
	video := flag.Bool("video", false, "enable camera")
	devices := flag.Bool("devices", false, "capture real devices instead of synthetic tracks")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	selfID := domain.UserID(*self)
	if selfID == "" {
		selfID = domain.UserID(uuid.NewString())
	}

	acquirer, populate := buildAcquirer(*devices)
	connector, err := rtc.NewConnector(cfg.STUNServers, populate)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api setup failed")
	}

	// The channel needs an envelope handler and the manager needs the
	// channel; the gate closes the cycle without racing early messages.
	var mgr *call.Manager
	ready := make(chan struct{})
	handler := func(env core.Envelope) {
		<-ready
		mgr.HandleEnvelope(env)
	}

	ch, err := signaladapter.DialChannel(ctx, *serverURL, selfID, *name, handler)
	if err != nil {
		log.Fatal().Err(err).Str("url", *serverURL).Msg("relay dial failed")
	}

	mgr = call.NewManager(selfID, *name, call.Deps{
		Signal:   ch,
		Push:     ch,
		Media:    connector,
		Acquirer: acquirer,
	}, call.Config{
		ConnectTimeout: cfg.ConnectTimeout,
		TrackDebounce:  cfg.TrackDebounce,
	})
	mgr.OnIncoming = func(s *call.Session) {
		log.Info().Str("peer", string(s.Peer())).Str("channel", string(s.Channel())).Msg("incoming call, answering")
		if err := s.Accept(ctx, *video); err != nil {
			log.Error().Err(err).Msg("accept failed")
		}
	}
	close(ready)

	if *peer != "" {
		chID := domain.ChannelID(*channel)
		if chID == "" {
			chID = domain.ChannelID(uuid.NewString())
		}
		sess, err := mgr.StartCall(ctx, domain.UserID(*peer), chID, *video)
		if err != nil {
			log.Fatal().Err(err).Msg("start call failed")
		}
		go func() {
			<-sess.Done()
			log.Info().Str("state", sess.State().String()).Msg("call over")
			cancel()
		}()
	}

	select {
	case <-ctx.Done():
	case <-ch.Done():
		log.Warn().Msg("relay connection lost")
	}

	mgr.Close()
	ch.Close()
	log.Info().Msg("peer exited")
}
