package devtype

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nodeos/storaged/pkg/storage/device"
	"github.com/nodeos/storaged/pkg/system"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get("sda")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("sda", device.SSD))
	require.NoError(t, store.Set("sdb", device.HDD))

	typ, ok, err := store.Get("sda")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, device.SSD, typ)

	typ, ok, err = store.Get("sdb")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, device.HDD, typ)
}

func TestNilStoreDegrades(t *testing.T) {
	var store *Store

	_, ok, err := store.Get("sda")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, store.Set("sda", device.SSD))
	assert.NoError(t, store.Close())
}

func TestDetectorCachesProbe(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	exec := &system.MockExecutor{}
	exec.On("Run", mock.Anything, system.NewCommand("seektime", "-j", "/dev/sda")).
		Return([]byte(`{"type": "hdd", "elapsed": 12000}`), nil).Once()

	detector := NewDetector(device.NewLsBlk(exec), store)
	dev := &device.Device{Path: "/dev/sda"}

	typ, err := detector.Type(context.Background(), dev)
	require.NoError(t, err)
	assert.Equal(t, device.HDD, typ)

	// second lookup is served from the cache, no further probe
	typ, err = detector.Type(context.Background(), dev)
	require.NoError(t, err)
	assert.Equal(t, device.HDD, typ)

	exec.AssertExpectations(t)
}

func TestDetectorWithoutStore(t *testing.T) {
	exec := &system.MockExecutor{}
	exec.On("Run", mock.Anything, system.NewCommand("seektime", "-j", "/dev/sdb")).
		Return([]byte(`{"type": "ssd", "elapsed": 90}`), nil).Twice()

	detector := NewDetector(device.NewLsBlk(exec), nil)
	dev := &device.Device{Path: "/dev/sdb"}

	for i := 0; i < 2; i++ {
		typ, err := detector.Type(context.Background(), dev)
		require.NoError(t, err)
		assert.Equal(t, device.SSD, typ)
	}

	exec.AssertExpectations(t)
}

func TestDetectorInvalidPath(t *testing.T) {
	detector := NewDetector(device.NewLsBlk(&system.MockExecutor{}), nil)
	_, err := detector.Type(context.Background(), &device.Device{Path: "/"})
	assert.Error(t, err)
}
