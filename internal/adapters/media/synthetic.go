// Package media provides MediaAcquirer implementations: real device capture
// via pion/mediadevices on linux, and a synthetic RTP source used where no
// capture drivers exist and in tests.
package media

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
)

const (
	syntheticFrameInterval = 20 * time.Millisecond
	opusClockRate          = 48000
	vp8ClockRate           = 90000
)

// SyntheticAcquirer fabricates silent/blank tracks backed by an RTP ticker.
// It never fails, which makes it the default acquirer for headless nodes.
type SyntheticAcquirer struct{}

func (SyntheticAcquirer) Acquire(ctx context.Context, opts core.AcquireOptions) (*core.LocalMedia, error) {
	stream := uuid.NewString()

	// Each track gets its own pump and stop channel so one half can be
	// released without silencing the other.
	var audio, video webrtc.TrackLocal
	var audioClose, videoClose func()
	if opts.Audio {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
			"audio", stream,
		)
		if err != nil {
			return nil, err
		}
		stop := make(chan struct{})
		go pumpSilence(ctx, track, opusClockRate, stop)
		audio = track
		audioClose = func() { close(stop) }
	}
	if opts.Video {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: vp8ClockRate},
			"video", stream,
		)
		if err != nil {
			return nil, err
		}
		stop := make(chan struct{})
		go pumpSilence(ctx, track, vp8ClockRate, stop)
		video = track
		videoClose = func() { close(stop) }
	}
	return core.NewLocalMedia(audio, video, audioClose, videoClose), nil
}

// pumpSilence writes empty RTP frames at a fixed cadence until the media
// handle is stopped. Write errors before the track is bound are expected and
// ignored.
func pumpSilence(ctx context.Context, track *webrtc.TrackLocalStaticRTP, clockRate uint32, stop <-chan struct{}) {
	ticker := time.NewTicker(syntheticFrameInterval)
	defer ticker.Stop()

	samplesPerFrame := clockRate / uint32(time.Second/syntheticFrameInterval)
	var seq uint16
	var ts uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					SequenceNumber: seq,
					Timestamp:      ts,
				},
				Payload: make([]byte, 2),
			}
			if err := track.WriteRTP(pkt); err != nil {
				log.Debug().Err(err).Str("module", "media.synthetic").Msg("write rtp")
			}
			seq++
			ts += samplesPerFrame
		}
	}
}
