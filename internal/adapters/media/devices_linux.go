//go:build linux

package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
)

// DeviceAcquirer captures camera and microphone via pion/mediadevices
// (V4L2 + malgo). Permission and missing-device failures map onto the
// core sentinel errors so the session can classify them.
type DeviceAcquirer struct {
	selector *mediadevices.CodecSelector
}

func NewDeviceAcquirer() (*DeviceAcquirer, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	return &DeviceAcquirer{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// Populate registers the acquirer's codecs on a media engine so the peer
// connection negotiates formats the encoders actually produce.
func (a *DeviceAcquirer) Populate(me *webrtc.MediaEngine) {
	a.selector.Populate(me)
}

func (a *DeviceAcquirer) Acquire(_ context.Context, opts core.AcquireOptions) (*core.LocalMedia, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: a.selector}
	if opts.Video {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only; some cameras expose an MJPEG node producing
			// malformed frames that poison the VP8 encoder.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}
	if opts.Audio {
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, classifyCaptureError(err)
	}

	tracks := stream.GetTracks()
	var audio, video webrtc.TrackLocal
	var audioClose, videoClose func()
	for _, track := range tracks {
		track.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "media.devices").Msg("local track ended")
			}
		})
		closer := track.Close
		switch track.Kind() {
		case webrtc.RTPCodecTypeAudio:
			audio = track
			audioClose = func() { _ = closer() }
		case webrtc.RTPCodecTypeVideo:
			video = track
			videoClose = func() { _ = closer() }
		}
	}
	log.Info().Str("module", "media.devices").Int("tracks", len(tracks)).Msg("local media captured")
	return core.NewLocalMedia(audio, video, audioClose, videoClose), nil
}

func classifyCaptureError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return fmt.Errorf("%w: %s", core.ErrPermissionDenied, err)
	}
	if strings.Contains(msg, "not found") || strings.Contains(msg, "no device") || strings.Contains(msg, "failed to find") {
		return fmt.Errorf("%w: %s", core.ErrDeviceUnavailable, err)
	}
	return err
}
