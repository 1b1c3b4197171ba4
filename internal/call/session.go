package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
	"github.com/phuocnguyenncc/mezon-sub000/internal/domain"
)

const (
	// DefaultConnectTimeout bounds the wait between sending the offer and the
	// peer connection reporting progress.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultTrackDebounce is the window for coalescing remote track arrivals
	// into a single stream rebuild.
	DefaultTrackDebounce = 500 * time.Millisecond

	eventBuffer = 64
)

// Deps are the collaborators a session needs. Signal and Media and Acquirer
// are required; Push, Logs and Clock get defaults.
type Deps struct {
	Signal   core.SignalSender
	Push     core.PushNotifier
	Media    core.MediaConnector
	Acquirer core.MediaAcquirer
	Logs     core.CallLogSink
	Clock    clock.Clock
}

// Config carries the session timing knobs.
type Config struct {
	ConnectTimeout time.Duration
	TrackDebounce  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.TrackDebounce <= 0 {
		c.TrackDebounce = DefaultTrackDebounce
	}
	return c
}

// Session is the aggregate root for one call attempt. All state mutation
// happens on the run loop; public methods post events and read snapshots.
type Session struct {
	id       domain.CallID
	channel  domain.ChannelID
	self     domain.UserID
	selfName string
	peer     domain.UserID
	role     domain.CallRole

	deps Deps
	cfg  Config
	lg   zerolog.Logger

	events  chan event
	stopped chan struct{}

	// Snapshot fields, guarded by mu. The loop writes, getters read.
	mu          sync.RWMutex
	state       State
	control     domain.MediaControl
	peerControl domain.MediaControl
	remoteMedia *core.RemoteMedia

	// Loop-owned, never touched outside run().
	conn          core.MediaConnection
	localMedia    *core.LocalMedia
	localVideo    *core.LocalMedia
	audioSender   core.MediaSender
	videoSender   core.MediaSender
	buffer        *CandidateBuffer
	ctimer        *connectTimer
	tracks        *trackCollector
	pendingOffer  *webrtc.SessionDescription
	pendingRemote []webrtc.ICECandidateInit
	facing        core.Facing
	answerSent    bool
	quitSent      bool
	statusSynced  bool
	connected     bool
	startedAt     time.Time
	connectedAt   time.Time

	// Guarded by mu; meaningful once Done is closed.
	endCause domain.CallCause

	// Callbacks, set before any event is posted.
	OnStateChange func(State)
	OnRemoteMedia func(*core.RemoteMedia)
	OnPeerStatus  func(domain.MediaControl)
	onTerminal    func(*Session)
}

func newSession(channel domain.ChannelID, self domain.UserID, selfName string, peer domain.UserID, role domain.CallRole, deps Deps, cfg Config) *Session {
	s := &Session{
		id:       domain.CallID(fmt.Sprintf("%s:%s", channel, peer)),
		channel:  channel,
		self:     self,
		selfName: selfName,
		peer:     peer,
		role:     role,
		deps:     deps,
		cfg:      cfg.withDefaults(),
		events:   make(chan event, eventBuffer),
		stopped:  make(chan struct{}),
		state:    StateIdle,
		control:  domain.MediaControl{MicEnabled: true, SpeakerEnabled: true},
		buffer:   NewCandidateBuffer(),
		facing:   core.FacingUser,
	}
	s.lg = log.With().
		Str("module", "call.session").
		Str("call", string(s.id)).
		Str("role", role.String()).
		Logger()
	s.ctimer = newConnectTimer(deps.Clock)
	s.tracks = newTrackCollector(deps.Clock, s.cfg.TrackDebounce, func() { s.post(evDebounce{}) })
	return s
}

// ID returns the session identifier, unique per call attempt.
func (s *Session) ID() domain.CallID { return s.id }

// Channel returns the signaling channel this call runs over.
func (s *Session) Channel() domain.ChannelID { return s.channel }

// Peer returns the remote party.
func (s *Session) Peer() domain.UserID { return s.peer }

// Role returns whether this side placed or received the call.
func (s *Session) Role() domain.CallRole { return s.role }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Control returns the local media toggle intent.
func (s *Session) Control() domain.MediaControl {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.control
}

// PeerControl returns the last media status the peer reported.
func (s *Session) PeerControl() domain.MediaControl {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerControl
}

// RemoteMedia returns the most recently reconciled combined remote stream.
func (s *Session) RemoteMedia() *core.RemoteMedia {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteMedia
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.stopped }

// Cause reports why the session ended. A reason tag for logging and UI
// branching, not user-facing text. Zero until teardown begins.
func (s *Session) Cause() domain.CallCause {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endCause
}

// Accept answers an incoming call. Callee only.
func (s *Session) Accept(ctx context.Context, video bool) error {
	if s.role != domain.RoleCallee {
		return ErrNotRinging
	}
	if s.State().Terminal() {
		return ErrSessionTerminal
	}
	s.post(evAccept{ctx: ctx, video: video})
	return nil
}

// Reject declines an incoming call before it is answered.
func (s *Session) Reject() error {
	if s.role != domain.RoleCallee {
		return ErrNotRinging
	}
	if s.State().Terminal() {
		return ErrSessionTerminal
	}
	s.post(evReject{})
	return nil
}

// Hangup tears the session down. Safe to call multiple times; the second
// invocation observes the terminal state and becomes a no-op.
func (s *Session) Hangup() {
	s.post(evHangup{cause: domain.CauseHangup})
}

// SetMic flips the local microphone intent and echoes it to the peer.
func (s *Session) SetMic(enabled bool) {
	s.post(evSetMic{enabled: enabled})
}

// SetSpeaker flips the local speaker intent. Audio routing is the embedding
// platform's concern; the peer is not notified.
func (s *Session) SetSpeaker(enabled bool) {
	s.post(evSetSpeaker{enabled: enabled})
}

// SetCamera flips the local camera intent. Enabling a camera mid-call adds a
// video track and triggers a renegotiation sub-cycle inside Connected.
func (s *Session) SetCamera(ctx context.Context, enabled bool) {
	s.post(evSetCamera{ctx: ctx, enabled: enabled})
}

// SwitchCamera replaces the outgoing video track with the opposite-facing
// capture device. No signaling round-trip.
func (s *Session) SwitchCamera(ctx context.Context) {
	s.post(evSwitchCamera{ctx: ctx})
}

// HandleEnvelope feeds one inbound signaling message into the session.
// Messages are processed in arrival order.
func (s *Session) HandleEnvelope(env core.Envelope) {
	s.post(evEnvelope{env: env})
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.stopped:
	default:
		s.lg.Warn().Msg("event queue full, dropping event")
	}
}

func (s *Session) run() {
	for ev := range s.events {
		s.handle(ev)
		if s.State().Terminal() {
			return
		}
	}
}

func (s *Session) handle(ev event) {
	switch e := ev.(type) {
	case evDial:
		s.handleDial(e)
	case evAccept:
		s.handleAccept(e)
	case evReject:
		s.handleReject()
	case evHangup:
		s.teardown(e.cause)
	case evEnvelope:
		s.handleEnvelope(e.env)
	case evLocalCandidate:
		s.handleLocalCandidate(e.ci)
	case evConnState:
		s.handleConnState(e.state)
	case evRemoteTrack:
		s.tracks.add(e.track)
	case evDebounce:
		s.reconcileRemote()
	case evTimeout:
		s.handleTimeout()
	case evSetMic:
		s.handleSetMic(e.enabled)
	case evSetSpeaker:
		s.handleSetSpeaker(e.enabled)
	case evSetCamera:
		s.handleSetCamera(e)
	case evSwitchCamera:
		s.handleSwitchCamera(e.ctx)
	}
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.lg.Info().Str("from", prev.String()).Str("to", next.String()).Msg("state transition")
		if s.OnStateChange != nil {
			s.OnStateChange(next)
		}
	}
}

// handleDial runs the caller side: acquire media, build the peer connection,
// send the offer, arm the connect timeout.
func (s *Session) handleDial(e evDial) {
	if s.State() != StateIdle {
		s.lg.Warn().Str("state", s.State().String()).Msg("dial ignored")
		return
	}
	s.setState(StateDialing)
	s.mu.Lock()
	s.control.CameraEnabled = e.video
	s.mu.Unlock()

	lm, err := s.deps.Acquirer.Acquire(e.ctx, core.AcquireOptions{Audio: true, Video: e.video, Facing: s.facing})
	if err != nil {
		// Permission and device errors surface to the caller immediately;
		// no signaling message has been sent yet.
		s.lg.Error().Err(err).Msg("media acquisition failed")
		if errors.Is(err, core.ErrPermissionDenied) || errors.Is(err, core.ErrDeviceUnavailable) {
			s.teardown(domain.CausePermission)
		} else {
			s.teardown(domain.CauseError)
		}
		return
	}
	s.localMedia = lm

	if err := s.openConnection(); err != nil {
		s.lg.Error().Err(err).Msg("peer connection setup failed")
		s.teardown(domain.CauseError)
		return
	}

	offer, err := s.conn.CreateOffer()
	if err != nil {
		s.lg.Error().Err(err).Msg("create offer failed")
		s.teardown(domain.CauseError)
		return
	}
	payload, err := encodeOffer(offer, s.selfName, e.video)
	if err != nil {
		s.lg.Error().Err(err).Msg("encode offer failed")
		s.teardown(domain.CauseError)
		return
	}
	s.send(core.MsgSDPOffer, payload)

	if s.deps.Push != nil {
		enc, err := CompressSDP(offer.SDP)
		if err == nil {
			err = s.deps.Push.Push(s.peer, core.PushInvite{
				Channel:    s.channel,
				Caller:     s.self,
				CallerName: s.selfName,
				Offer:      enc,
			})
		}
		if err != nil {
			s.lg.Warn().Err(err).Msg("push invite failed")
		}
	}

	s.startedAt = s.deps.Clock.Now()
	s.ctimer.arm(s.cfg.ConnectTimeout, func() { s.post(evTimeout{}) })
	s.setState(StateNegotiating)
}

// handleAccept runs the callee answer path against the buffered remote offer.
func (s *Session) handleAccept(e evAccept) {
	if s.State() != StateRinging || s.pendingOffer == nil {
		s.lg.Warn().Str("state", s.State().String()).Msg("accept ignored")
		return
	}
	s.mu.Lock()
	s.control.CameraEnabled = e.video
	s.mu.Unlock()

	lm, err := s.deps.Acquirer.Acquire(e.ctx, core.AcquireOptions{Audio: true, Video: e.video, Facing: s.facing})
	if err != nil {
		s.lg.Error().Err(err).Msg("media acquisition failed")
		if errors.Is(err, core.ErrPermissionDenied) || errors.Is(err, core.ErrDeviceUnavailable) {
			s.teardown(domain.CausePermission)
		} else {
			s.teardown(domain.CauseError)
		}
		return
	}
	s.localMedia = lm

	if err := s.openConnection(); err != nil {
		s.lg.Error().Err(err).Msg("peer connection setup failed")
		s.teardown(domain.CauseError)
		return
	}

	if err := s.conn.SetRemoteDescription(*s.pendingOffer); err != nil {
		s.lg.Error().Err(err).Msg("set remote offer failed")
		s.teardown(domain.CauseError)
		return
	}
	s.pendingOffer = nil
	s.flushRemoteCandidates()

	answer, err := s.conn.CreateAnswer()
	if err != nil {
		s.lg.Error().Err(err).Msg("create answer failed")
		s.teardown(domain.CauseError)
		return
	}
	payload, err := encodeAnswer(answer)
	if err != nil {
		s.lg.Error().Err(err).Msg("encode answer failed")
		s.teardown(domain.CauseError)
		return
	}
	s.send(core.MsgSDPAnswer, payload)
	s.answerSent = true
	s.buffer.DrainIfReady(true, s.sendCandidate)

	// Answered locally: suppress the stale native ring on other surfaces.
	if s.deps.Push != nil {
		if err := s.deps.Push.CancelPush(s.self, s.channel); err != nil {
			s.lg.Warn().Err(err).Msg("cancel push failed")
		}
	}

	s.startedAt = s.deps.Clock.Now()
	s.setState(StateNegotiating)
}

func (s *Session) handleReject() {
	if s.State() != StateRinging {
		return
	}
	if s.deps.Push != nil {
		if err := s.deps.Push.CancelPush(s.self, s.channel); err != nil {
			s.lg.Warn().Err(err).Msg("cancel push failed")
		}
	}
	s.teardown(domain.CauseRejected)
}

// openConnection builds the media connection, wires its callbacks into the
// event loop and attaches the local tracks.
func (s *Session) openConnection() error {
	conn, err := s.deps.Media.NewConnection()
	if err != nil {
		return err
	}
	s.conn = conn
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) { s.post(evLocalCandidate{ci: ci}) })
	conn.OnTrack(func(t core.RemoteTrack) { s.post(evRemoteTrack{track: t}) })
	conn.OnConnectionStateChange(func(st webrtc.PeerConnectionState) { s.post(evConnState{state: st}) })

	if s.localMedia.Audio != nil {
		sender, err := conn.AddTrack(s.localMedia.Audio)
		if err != nil {
			return err
		}
		s.audioSender = sender
	}
	if s.localMedia.Video != nil {
		sender, err := conn.AddTrack(s.localMedia.Video)
		if err != nil {
			return err
		}
		s.videoSender = sender
	}
	return nil
}

func (s *Session) handleEnvelope(env core.Envelope) {
	switch env.Type {
	case core.MsgSDPOffer:
		s.handleRemoteOffer(env.Payload)
	case core.MsgSDPAnswer:
		s.handleRemoteAnswer(env.Payload)
	case core.MsgICECandidate:
		s.handleRemoteCandidate(env.Payload)
	case core.MsgStatusRemoteMedia:
		s.handleRemoteStatus(env.Payload)
	case core.MsgSDPInit:
		s.lg.Debug().Msg("peer acknowledged connection")
	case core.MsgSDPQuit:
		s.teardown(domain.CauseRemoteQuit)
	default:
		s.lg.Warn().Str("type", string(env.Type)).Msg("unknown signal")
	}
}

func (s *Session) handleRemoteOffer(payload []byte) {
	desc, meta, err := decodeOffer(payload)
	if err != nil {
		// A malformed payload is dropped, not fatal: a retransmission may
		// still arrive.
		s.lg.Warn().Err(err).Msg("dropping malformed offer")
		return
	}
	switch s.State() {
	case StateIdle:
		// Callee before any local action: buffer the offer until the user acts.
		s.pendingOffer = &desc
		s.mu.Lock()
		s.peerControl.CameraEnabled = meta.Video
		s.mu.Unlock()
		s.setState(StateRinging)
	case StateRinging:
		// Retransmission; keep the newest description.
		s.pendingOffer = &desc
	case StateConnected:
		// Renegotiation sub-cycle: the peer added a track mid-call.
		if err := s.conn.SetRemoteDescription(desc); err != nil {
			s.lg.Warn().Err(err).Msg("renegotiation set remote failed")
			return
		}
		s.flushRemoteCandidates()
		answer, err := s.conn.CreateAnswer()
		if err != nil {
			s.lg.Warn().Err(err).Msg("renegotiation answer failed")
			return
		}
		payload, err := encodeAnswer(answer)
		if err != nil {
			s.lg.Warn().Err(err).Msg("encode renegotiation answer failed")
			return
		}
		s.send(core.MsgSDPAnswer, payload)
	default:
		s.lg.Warn().Str("state", s.State().String()).Msg("offer ignored")
	}
}

func (s *Session) handleRemoteAnswer(payload []byte) {
	if s.conn == nil {
		s.lg.Warn().Msg("answer before connection, dropping")
		return
	}
	desc, err := decodeAnswer(payload)
	if err != nil {
		s.lg.Warn().Err(err).Msg("dropping malformed answer")
		return
	}
	if err := s.conn.SetRemoteDescription(desc); err != nil {
		s.lg.Warn().Err(err).Msg("set remote answer failed")
		return
	}
	s.flushRemoteCandidates()
	s.buffer.DrainIfReady(s.candidatesReady(), s.sendCandidate)
}

func (s *Session) handleRemoteCandidate(payload []byte) {
	ci, err := decodeCandidate(payload)
	if err != nil {
		s.lg.Warn().Err(err).Msg("dropping malformed candidate")
		return
	}
	// Out-of-order delivery: hold candidates that beat the description.
	if s.conn == nil || !s.conn.HasRemoteDescription() {
		s.pendingRemote = append(s.pendingRemote, ci)
		return
	}
	if err := s.conn.AddICECandidate(ci); err != nil {
		s.lg.Warn().Err(err).Msg("add remote candidate failed")
	}
}

func (s *Session) flushRemoteCandidates() {
	for _, ci := range s.pendingRemote {
		if err := s.conn.AddICECandidate(ci); err != nil {
			s.lg.Warn().Err(err).Msg("add buffered remote candidate failed")
		}
	}
	s.pendingRemote = nil
}

func (s *Session) handleRemoteStatus(payload []byte) {
	p, err := decodeStatus(payload)
	if err != nil {
		s.lg.Warn().Err(err).Msg("dropping malformed status")
		return
	}
	s.mu.Lock()
	s.peerControl.CameraEnabled = p.CameraEnabled
	s.peerControl.MicEnabled = p.MicEnabled
	pc := s.peerControl
	s.mu.Unlock()
	if s.OnPeerStatus != nil {
		s.OnPeerStatus(pc)
	}
}

// candidatesReady reports whether locally gathered candidates may be sent:
// the caller needs the remote description, the callee must have answered.
func (s *Session) candidatesReady() bool {
	if s.role == domain.RoleCallee {
		return s.answerSent
	}
	return s.conn != nil && s.conn.HasRemoteDescription()
}

func (s *Session) handleLocalCandidate(ci webrtc.ICECandidateInit) {
	s.buffer.Offer(ci)
	s.buffer.DrainIfReady(s.candidatesReady(), s.sendCandidate)
}

func (s *Session) sendCandidate(ci webrtc.ICECandidateInit) error {
	payload, err := encodeCandidate(ci)
	if err != nil {
		return err
	}
	return s.deps.Signal.Send(s.peer, core.MsgICECandidate, payload, s.channel, s.self)
}

func (s *Session) handleConnState(st webrtc.PeerConnectionState) {
	if s.State().Terminal() {
		return
	}
	switch st {
	case webrtc.PeerConnectionStateConnecting:
		// A fresh attempt is underway: clear the timeout and await resolution.
		s.ctimer.cancel()
		if s.State() == StateNegotiating {
			s.setState(StateConnecting)
		}
	case webrtc.PeerConnectionStateConnected:
		s.ctimer.cancel()
		if s.connected {
			return
		}
		s.connected = true
		s.connectedAt = s.deps.Clock.Now()
		if s.role == domain.RoleCaller {
			s.send(core.MsgSDPInit, nil)
		}
		// Should be empty by contract; flush whatever remains.
		s.buffer.DrainIfReady(true, s.sendCandidate)
		s.syncStatusOnce()
		s.setState(StateConnected)
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		s.teardown(domain.CauseConnectivity)
	}
}

// syncStatusOnce sends the initial media-status sync exactly once per session.
// Later toggles go out individually, fire and forget.
func (s *Session) syncStatusOnce() {
	if s.statusSynced {
		return
	}
	s.statusSynced = true
	s.sendStatus()
}

func (s *Session) sendStatus() {
	payload, err := encodeStatus(s.Control())
	if err != nil {
		s.lg.Warn().Err(err).Msg("encode status failed")
		return
	}
	s.send(core.MsgStatusRemoteMedia, payload)
}

func (s *Session) handleTimeout() {
	if s.connected || s.State().Terminal() {
		return
	}
	s.lg.Info().Msg("connect timeout expired")
	s.teardown(domain.CauseTimeout)
}

func (s *Session) reconcileRemote() {
	if s.State().Terminal() {
		return
	}
	fresh := s.tracks.take()
	if len(fresh) == 0 {
		return
	}
	s.mu.Lock()
	next := mergeRemote(s.remoteMedia, fresh)
	s.remoteMedia = next
	s.mu.Unlock()
	s.lg.Info().Int("tracks", len(next.Tracks)).Msg("remote media rebuilt")
	if s.OnRemoteMedia != nil {
		s.OnRemoteMedia(next)
	}
}

func (s *Session) handleSetMic(enabled bool) {
	if s.State().Terminal() {
		return
	}
	s.mu.Lock()
	s.control.MicEnabled = enabled
	s.mu.Unlock()
	if s.State() == StateConnected {
		s.sendStatus()
	}
}

func (s *Session) handleSetSpeaker(enabled bool) {
	if s.State().Terminal() {
		return
	}
	s.mu.Lock()
	s.control.SpeakerEnabled = enabled
	s.mu.Unlock()
}

func (s *Session) handleSetCamera(e evSetCamera) {
	if s.State().Terminal() {
		return
	}
	s.mu.Lock()
	s.control.CameraEnabled = e.enabled
	s.mu.Unlock()

	if e.enabled && s.videoSender == nil && s.conn != nil {
		if err := s.addVideoTrack(e.ctx); err != nil {
			s.lg.Error().Err(err).Msg("camera enable failed")
			s.mu.Lock()
			s.control.CameraEnabled = false
			s.mu.Unlock()
			return
		}
	}
	if s.State() == StateConnected {
		s.sendStatus()
	}
}

// addVideoTrack acquires a camera track, attaches it and, when the call is
// already connected, starts a renegotiation sub-cycle with a fresh offer.
func (s *Session) addVideoTrack(ctx context.Context) error {
	lm, err := s.deps.Acquirer.Acquire(ctx, core.AcquireOptions{Video: true, Facing: s.facing})
	if err != nil {
		return err
	}
	sender, err := s.conn.AddTrack(lm.Video)
	if err != nil {
		lm.Stop()
		return err
	}
	s.localVideo = lm
	s.videoSender = sender

	if s.State() != StateConnected {
		return nil
	}
	offer, err := s.conn.CreateOffer()
	if err != nil {
		return err
	}
	payload, err := encodeOffer(offer, s.selfName, true)
	if err != nil {
		return err
	}
	s.send(core.MsgSDPOffer, payload)
	return nil
}

// handleSwitchCamera swaps the capture device on the existing sender. No
// signaling round-trip.
func (s *Session) handleSwitchCamera(ctx context.Context) {
	if s.State().Terminal() {
		return
	}
	if s.videoSender == nil {
		s.lg.Warn().Msg("camera switch with no outgoing video track")
		return
	}
	if s.facing == core.FacingUser {
		s.facing = core.FacingEnvironment
	} else {
		s.facing = core.FacingUser
	}
	lm, err := s.deps.Acquirer.Acquire(ctx, core.AcquireOptions{Video: true, Facing: s.facing})
	if err != nil {
		s.lg.Error().Err(err).Msg("camera switch acquisition failed")
		return
	}
	if err := s.videoSender.ReplaceTrack(lm.Video); err != nil {
		s.lg.Error().Err(err).Msg("replace track failed")
		lm.Stop()
		return
	}
	if s.localVideo != nil {
		s.localVideo.Stop()
	} else if s.localMedia != nil {
		// Video came from the original combined capture; release just the
		// camera and keep the audio half running.
		s.localMedia.StopVideo()
	}
	s.localVideo = lm
	s.lg.Info().Str("facing", string(s.facing)).Msg("camera switched")
}

func (s *Session) send(t core.MessageType, payload []byte) {
	if err := s.deps.Signal.Send(s.peer, t, payload, s.channel, s.self); err != nil {
		// Best-effort: redelivery is the transport's responsibility.
		s.lg.Warn().Err(err).Str("type", string(t)).Msg("signal send failed")
	}
}

// quitPolicy decides which teardown causes notify the peer. A quit that
// originated remotely must not be echoed back.
func quitPolicy(cause domain.CallCause) bool {
	switch cause {
	case domain.CauseRemoteQuit, domain.CausePermission, domain.CauseConnectivity:
		return false
	}
	return true
}

// teardown is the single cleanup routine invoked from every terminal path.
// Idempotent: a second invocation observes the terminal state and returns.
func (s *Session) teardown(cause domain.CallCause) {
	if s.State().Terminal() || s.State() == StateEnding {
		return
	}
	s.mu.Lock()
	s.endCause = cause
	s.mu.Unlock()
	s.setState(StateEnding)

	if quitPolicy(cause) && !s.quitSent {
		s.quitSent = true
		s.send(core.MsgSDPQuit, nil)
	}

	s.ctimer.cancel()
	s.tracks.stop()

	if s.localMedia != nil {
		s.localMedia.Stop()
		s.localMedia = nil
	}
	if s.localVideo != nil {
		s.localVideo.Stop()
		s.localVideo = nil
	}
	s.mu.Lock()
	s.remoteMedia = nil
	s.mu.Unlock()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.lg.Warn().Err(err).Msg("peer connection close failed")
		}
		s.conn = nil
	}

	s.emitLog(cause)

	final := StateEnded
	switch cause {
	case domain.CausePermission, domain.CauseError:
		final = StateFailed
	case domain.CauseConnectivity:
		// A disconnect that never reached Connected is a failed call, not a
		// hang-up of an active one.
		if !s.connected {
			final = StateFailed
		}
	}
	s.setState(final)
	if s.onTerminal != nil {
		s.onTerminal(s)
	}
	close(s.stopped)
}

func (s *Session) emitLog(cause domain.CallCause) {
	if s.deps.Logs == nil {
		return
	}
	now := s.deps.Clock.Now()
	cl := domain.CallLog{
		Call:      s.id,
		Channel:   s.channel,
		Peer:      s.peer,
		Role:      s.role,
		Cause:     cause,
		Connected: s.connected,
		StartedAt: s.startedAt,
		EndedAt:   now,
	}
	if s.connected {
		cl.Duration = now.Sub(s.connectedAt)
	}
	s.deps.Logs.Record(cl)
}
