package api

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/char5742/scroll-offset-reader/internal/config"
	"github.com/char5742/scroll-offset-reader/internal/features"
	"github.com/char5742/scroll-offset-reader/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceSamplesDeviceScroll(t *testing.T) {
	svc := newTestService(t, nil)

	require.NoError(t, svc.Start())
	assert.Equal(t, "running", svc.Status())
	assert.True(t, svc.IsRunning())
	require.ErrorIs(t, svc.Start(), ErrAlreadyRunning)

	svc.mouse.wheel(-1)
	svc.waitForValue(t, DeviceReaderName, types.Offset{DY: -40})

	svc.mouse.wheel(-2)
	svc.waitForValue(t, DeviceReaderName, types.Offset{DY: -120})

	require.NoError(t, svc.Stop())
	assert.Equal(t, "stopped", svc.Status())
	assert.True(t, svc.mouse.isClosed())
	assert.NotContains(t, svc.Registry().Names(), DeviceReaderName)
	require.ErrorIs(t, svc.Stop(), ErrNotRunning)
}

func TestServiceSubmitOffset(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.SubmitOffset("feed", types.Offset{DY: -5})
	require.ErrorIs(t, err, ErrReaderNotFound)

	_, err = svc.Registry().Mount("feed", features.DefaultSamplerOptions())
	require.NoError(t, err)

	accepted, err := svc.SubmitOffset("feed", types.Offset{DY: -1})
	require.NoError(t, err)
	assert.False(t, accepted)

	accepted, err = svc.SubmitOffset("feed", types.Offset{DY: -5})
	require.NoError(t, err)
	assert.True(t, accepted)

	svc.waitForValue(t, "feed", types.Offset{DY: -5})
}

func TestServiceStartErrors(t *testing.T) {
	t.Run("no mouse", func(t *testing.T) {
		svc := newTestService(t, nil)
		svc.opts.ScanDevices = func() ([]features.Device, error) {
			return testDevices[:1], nil
		}
		require.ErrorIs(t, svc.Start(), ErrNoMouse)
		assert.Equal(t, "stopped", svc.Status())
	})

	t.Run("scan failure", func(t *testing.T) {
		svc := newTestService(t, nil)
		scanErr := errors.New("permission denied")
		svc.opts.ScanDevices = func() ([]features.Device, error) {
			return nil, scanErr
		}
		require.ErrorIs(t, svc.Start(), scanErr)
	})

	t.Run("grab failure closes device", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Device.Grab = true
		svc := newTestService(t, cfg)
		svc.mouse.grabErr = errors.New("device busy")

		require.ErrorIs(t, svc.Start(), svc.mouse.grabErr)
		assert.True(t, svc.mouse.isClosed())
		assert.Empty(t, svc.Registry().Names())
	})

	t.Run("closed", func(t *testing.T) {
		svc := newTestService(t, nil)
		require.NoError(t, svc.Close())
		require.ErrorIs(t, svc.Start(), ErrServiceClosed)
	})
}

func TestServiceReportsReadFailure(t *testing.T) {
	svc := newTestService(t, nil)
	require.NoError(t, svc.Start())

	svc.mouse.readErr <- errors.New("device unplugged")
	require.Eventually(t, func() bool {
		return svc.Status() == "failed"
	}, 5*time.Second, 5*time.Millisecond)
	assert.False(t, svc.IsRunning())

	require.NoError(t, svc.Stop())
	assert.Equal(t, "stopped", svc.Status())
}

func TestServiceUpdateConfigRemountsDeviceReader(t *testing.T) {
	svc := newTestService(t, nil)
	require.NoError(t, svc.Start())

	svc.mouse.wheel(-1)
	svc.waitForValue(t, DeviceReaderName, types.Offset{DY: -40})

	before, err := svc.Registry().Get(DeviceReaderName)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Sampler.MinDelta = 100
	svc.UpdateConfig(cfg)
	assert.Equal(t, 100.0, svc.Config().Sampler.MinDelta)

	require.Eventually(t, func() bool {
		after, err := svc.Registry().Get(DeviceReaderName)
		return err == nil && after != before
	}, 5*time.Second, 5*time.Millisecond)

	// スクロール位置は再マウント後も引き継がれる
	svc.mouse.wheel(-3)
	svc.waitForValue(t, DeviceReaderName, types.Offset{DY: -160})
}

func TestServiceUpdateConfigKeepsReportedOffset(t *testing.T) {
	svc := newTestService(t, nil)
	require.NoError(t, svc.Start())

	svc.mouse.wheel(-3)
	svc.waitForValue(t, DeviceReaderName, types.Offset{DY: -120})

	before, err := svc.Registry().Get(DeviceReaderName)
	require.NoError(t, err)

	svc.UpdateConfig(config.DefaultConfig())

	var after *features.OffsetSampler
	require.Eventually(t, func() bool {
		after, err = svc.Registry().Get(DeviceReaderName)
		return err == nil && after != before
	}, 5*time.Second, 5*time.Millisecond)

	// クロックを進めなくても再マウント直後から同じ値を返す
	assert.Equal(t, types.Offset{DY: -120}, after.Value())
	assert.Never(t, func() bool {
		return !after.Value().Equal(types.Offset{DY: -120})
	}, 100*time.Millisecond, 5*time.Millisecond)

	// 引き継いだ位置は重複として転送されない
	var emitted []types.Offset
	var mutex sync.Mutex
	after.Output().Subscribe(func(o types.Offset) {
		mutex.Lock()
		emitted = append(emitted, o)
		mutex.Unlock()
	})
	svc.mouse.wheel(-1)
	svc.waitForValue(t, DeviceReaderName, types.Offset{DY: -160})

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, []types.Offset{{DY: -160}}, emitted)
}

func TestServiceCloseIsIdempotent(t *testing.T) {
	svc := newTestService(t, nil)
	require.NoError(t, svc.Start())
	_, err := svc.Registry().Mount("feed", features.DefaultSamplerOptions())
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	assert.Equal(t, "stopped", svc.Status())
	assert.Empty(t, svc.Registry().Names())
	assert.True(t, svc.mouse.isClosed())
}
