package core

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// Acquisition failures the session must tell apart: permission errors surface
// to the caller before any signaling happens.
var (
	ErrPermissionDenied  = errors.New("media permission denied")
	ErrDeviceUnavailable = errors.New("media device unavailable")
)

// Facing selects which capture device a video request prefers.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// AcquireOptions describes one capture request.
type AcquireOptions struct {
	Audio  bool
	Video  bool
	Facing Facing
}

// LocalMedia owns the local capture handles. Each track carries its own
// closer so the video half can be released alone on a device switch. All
// stop methods are safe to call more than once.
type LocalMedia struct {
	Audio webrtc.TrackLocal
	Video webrtc.TrackLocal

	audioClose func()
	videoClose func()
}

// NewLocalMedia pairs each track with the closer that releases its device.
// Either closer may be nil.
func NewLocalMedia(audio, video webrtc.TrackLocal, audioClose, videoClose func()) *LocalMedia {
	return &LocalMedia{Audio: audio, Video: video, audioClose: audioClose, videoClose: videoClose}
}

// StopAudio releases only the audio capture.
func (m *LocalMedia) StopAudio() {
	if m == nil {
		return
	}
	if m.audioClose != nil {
		m.audioClose()
		m.audioClose = nil
	}
	m.Audio = nil
}

// StopVideo releases only the video capture, leaving audio running.
func (m *LocalMedia) StopVideo() {
	if m == nil {
		return
	}
	if m.videoClose != nil {
		m.videoClose()
		m.videoClose = nil
	}
	m.Video = nil
}

// Stop releases every track still held.
func (m *LocalMedia) Stop() {
	m.StopAudio()
	m.StopVideo()
}

// MediaAcquirer requests capture devices under user permission.
type MediaAcquirer interface {
	Acquire(ctx context.Context, opts AcquireOptions) (*LocalMedia, error)
}

// RemoteMedia is the reconciled combined remote stream. It is rebuilt, never
// mutated in place, each time the debounce window closes.
type RemoteMedia struct {
	Tracks []RemoteTrack
}

// HasKind reports whether the stream carries a track of the given kind.
func (m *RemoteMedia) HasKind(kind webrtc.RTPCodecType) bool {
	if m == nil {
		return false
	}
	for _, t := range m.Tracks {
		if t.Kind() == kind {
			return true
		}
	}
	return false
}
