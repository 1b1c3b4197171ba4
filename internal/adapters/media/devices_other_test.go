//go:build !linux

package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phuocnguyenncc/mezon-sub000/internal/core"
)

func TestNewDeviceAcquirerUnavailableOffLinux(t *testing.T) {
	acq, err := NewDeviceAcquirer()
	require.ErrorIs(t, err, core.ErrDeviceUnavailable)
	assert.Nil(t, acq)
}
