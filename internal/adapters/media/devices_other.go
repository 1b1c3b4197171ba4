//go:build !linux

package media

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
)

// DeviceAcquirer is linux-only; mediadevices capture needs platform drivers
// (V4L2, malgo). On other platforms the constructor fails with the sentinel
// so callers fall back to the synthetic acquirer instead of holding an
// acquirer that cannot capture.
type DeviceAcquirer struct{}

func NewDeviceAcquirer() (*DeviceAcquirer, error) {
	return nil, core.ErrDeviceUnavailable
}

func (*DeviceAcquirer) Populate(_ *webrtc.MediaEngine) {}

func (*DeviceAcquirer) Acquire(_ context.Context, _ core.AcquireOptions) (*core.LocalMedia, error) {
	return nil, core.ErrDeviceUnavailable
}
