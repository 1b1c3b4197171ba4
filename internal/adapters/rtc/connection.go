package rtc

import (
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

// Connection wraps a pion PeerConnection behind core.MediaConnection.
// Candidates trickle; gathering is never awaited synchronously, the session's
// candidate buffer handles ordering.
type Connection struct {
	pc   *webrtc.PeerConnection
	call domain.CallID

	mu      sync.Mutex
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.RemoteTrack)
	onState func(webrtc.PeerConnectionState)

	closeOnce sync.Once
	closeErr  error
}

// Config builds the webrtc configuration from the configured ICE servers.
func Config(stunServers []string) webrtc.Configuration {
	urls := stunServers
	if len(urls) == 0 {
		urls = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: urls},
		},
	}
}

// NewAPI assembles a webrtc API with default codecs and interceptors.
// Acquirers that bring their own encoders may populate the media engine
// before the API is built.
func NewAPI(populate func(*webrtc.MediaEngine)) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if populate != nil {
		populate(mediaEngine)
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

func NewConnection(api *webrtc.API, cfg webrtc.Configuration, call domain.CallID) (*Connection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc, call: call}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("call", string(call)).Str("peer_connection_state", s.String()).Msg("peer state")
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("call", string(call)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})

	return c, nil
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *Connection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) AddTrack(track webrtc.TrackLocal) (core.MediaSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *Connection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Close shuts the peer connection down exactly once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.pc.Close()
		if c.closeErr != nil {
			log.Error().Err(c.closeErr).Str("module", "rtc").Str("call", string(c.call)).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("call", string(c.call)).Msg("closed")
		}
	})
	return c.closeErr
}

// Connector builds Connections with a shared API and configuration,
// satisfying core.MediaConnector for the call manager.
type Connector struct {
	API *webrtc.API
	Cfg webrtc.Configuration
}

func NewConnector(stunServers []string, populate func(*webrtc.MediaEngine)) (*Connector, error) {
	api, err := NewAPI(populate)
	if err != nil {
		return nil, err
	}
	return &Connector{API: api, Cfg: Config(stunServers)}, nil
}

func (cn *Connector) NewConnection() (core.MediaConnection, error) {
	return NewConnection(cn.API, cn.Cfg, "")
}
