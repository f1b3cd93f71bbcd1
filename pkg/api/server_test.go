package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeos/storaged/pkg/flist"
	"github.com/nodeos/storaged/pkg/storage"
)

// fakeStore is an in-memory storage.Manager.
type fakeStore struct {
	volumes map[string]storage.VolumeInfo
	disks   map[string]storage.DiskInfo
	devices map[string]storage.DeviceInfo
	free    []storage.DeviceInfo
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		volumes: make(map[string]storage.VolumeInfo),
		disks:   make(map[string]storage.DiskInfo),
		devices: make(map[string]storage.DeviceInfo),
	}
}

func (f *fakeStore) Volumes(ctx context.Context) ([]storage.VolumeInfo, error) {
	var out []storage.VolumeInfo
	for _, v := range f.volumes {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeStore) VolumeLookup(ctx context.Context, name string) (storage.VolumeInfo, error) {
	v, ok := f.volumes[name]
	if !ok {
		return storage.VolumeInfo{}, fmt.Errorf("volume '%s': %w", name, storage.ErrNotFound)
	}
	return v, nil
}

func (f *fakeStore) VolumeCreate(ctx context.Context, name string, size uint64) (storage.VolumeInfo, error) {
	if size == 0 {
		return storage.VolumeInfo{}, storage.ErrInvalidSize
	}
	v := storage.VolumeInfo{Name: name, Path: "/mnt/pool-1/" + name}
	f.volumes[name] = v
	return v, nil
}

func (f *fakeStore) VolumeUpdate(ctx context.Context, name string, size uint64) error {
	if _, ok := f.volumes[name]; !ok {
		return fmt.Errorf("volume '%s': %w", name, storage.ErrNotFound)
	}
	return nil
}

func (f *fakeStore) VolumeDelete(ctx context.Context, name string) error {
	delete(f.volumes, name)
	return nil
}

func (f *fakeStore) Disks(ctx context.Context) ([]storage.DiskInfo, error) {
	var out []storage.DiskInfo
	for _, d := range f.disks {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) DiskLookup(ctx context.Context, name string) (storage.DiskInfo, error) {
	d, ok := f.disks[name]
	if !ok {
		return storage.DiskInfo{}, fmt.Errorf("disk '%s': %w", name, storage.ErrNotFound)
	}
	return d, nil
}

func (f *fakeStore) DiskCreate(ctx context.Context, name string, size uint64) (storage.DiskInfo, error) {
	d := storage.DiskInfo{Path: "/mnt/pool-1/vdisks/" + name, Size: size}
	f.disks[name] = d
	return d, nil
}

func (f *fakeStore) DiskDelete(ctx context.Context, name string) error {
	delete(f.disks, name)
	return nil
}

func (f *fakeStore) DiskExpand(ctx context.Context, name string, size uint64) error {
	d, ok := f.disks[name]
	if !ok {
		return fmt.Errorf("disk '%s': %w", name, storage.ErrNotFound)
	}
	if size < d.Size {
		return storage.ErrInvalidSize
	}
	d.Size = size
	f.disks[name] = d
	return nil
}

func (f *fakeStore) Devices(ctx context.Context) ([]storage.DeviceInfo, error) {
	var out []storage.DeviceInfo
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) DeviceLookup(ctx context.Context, id string) (storage.DeviceInfo, error) {
	d, ok := f.devices[id]
	if !ok {
		return storage.DeviceInfo{}, fmt.Errorf("device '%s': %w", id, storage.ErrNotFound)
	}
	return d, nil
}

func (f *fakeStore) DeviceAllocate(ctx context.Context, min uint64) (storage.DeviceInfo, error) {
	for i, d := range f.free {
		if d.Size >= min {
			f.free = append(f.free[:i], f.free[i+1:]...)
			f.devices[d.ID] = d
			return d, nil
		}
	}
	return storage.DeviceInfo{}, storage.ErrNoDeviceLeft
}

// fakeMounter tracks named mounts by hash.
type fakeMounter struct {
	mounts map[string]string
}

func newFakeMounter() *fakeMounter {
	return &fakeMounter{mounts: make(map[string]string)}
}

func (f *fakeMounter) Mount(ctx context.Context, name, url string, opts flist.MountOptions) (string, error) {
	f.mounts[name] = "abc123"
	return "/var/cache/storaged/mountpoint/" + name, nil
}

func (f *fakeMounter) Unmount(ctx context.Context, name string) error {
	delete(f.mounts, name)
	return nil
}

func (f *fakeMounter) Update(ctx context.Context, name string, size uint64) error {
	if _, ok := f.mounts[name]; !ok {
		return fmt.Errorf("'%s' is not mounted", name)
	}
	return nil
}

func (f *fakeMounter) Exists(name string) (bool, error) {
	_, ok := f.mounts[name]
	return ok, nil
}

func (f *fakeMounter) HashOfMount(ctx context.Context, name string) (string, error) {
	hash, ok := f.mounts[name]
	if !ok {
		return "", fmt.Errorf("no mount found on '%s'", name)
	}
	return hash, nil
}

func (f *fakeMounter) List(ctx context.Context) ([]string, error) {
	var names []string
	for name := range f.mounts {
		names = append(names, name)
	}
	return names, nil
}

func newTestServer(t *testing.T) (*Server, *fakeStore, *fakeMounter) {
	store := newFakeStore()
	mounter := newFakeMounter()
	return NewServer(store, mounter, "test"), store, mounter
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestVolumeRoutes(t *testing.T) {
	s, store, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/volumes", gin.H{"name": "vol-1", "size": 1024})
	require.Equal(t, http.StatusCreated, w.Code)

	var created storage.VolumeInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "vol-1", created.Name)
	assert.Equal(t, "/mnt/pool-1/vol-1", created.Path)

	w = doJSON(t, s, http.MethodGet, "/api/v1/volumes/vol-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/volumes/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodPut, "/api/v1/volumes/vol-1", gin.H{"size": 2048})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/volumes/vol-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, store.volumes)
}

func TestVolumeValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	// missing size
	w := doJSON(t, s, http.MethodPost, "/api/v1/volumes", gin.H{"name": "vol-1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// not JSON at all
	req := httptest.NewRequest(http.MethodPost, "/api/v1/volumes", bytes.NewReader([]byte("nope")))
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiskRoutes(t *testing.T) {
	s, store, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/disks", gin.H{"name": "disk-1", "size": 4096})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPut, "/api/v1/disks/disk-1", gin.H{"size": 8192})
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.EqualValues(t, 8192, store.disks["disk-1"].Size)

	// shrink is rejected
	w = doJSON(t, s, http.MethodPut, "/api/v1/disks/disk-1", gin.H{"size": 1})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/disks/disk-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestDeviceRoutes(t *testing.T) {
	s, store, _ := newTestServer(t)
	store.free = []storage.DeviceInfo{
		{ID: "hdd-1", Path: "/mnt/hdd-1/zdb", Size: 2048},
	}

	w := doJSON(t, s, http.MethodPost, "/api/v1/devices", gin.H{"min_size": 1024})
	require.Equal(t, http.StatusCreated, w.Code)

	var dev storage.DeviceInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dev))
	assert.Equal(t, "hdd-1", dev.ID)

	w = doJSON(t, s, http.MethodGet, "/api/v1/devices/hdd-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// nothing left that fits
	w = doJSON(t, s, http.MethodPost, "/api/v1/devices", gin.H{"min_size": 1024})
	require.Equal(t, http.StatusInsufficientStorage, w.Code)
}

func TestFlistRoutes(t *testing.T) {
	s, _, mounter := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/flist", gin.H{
		"name": "app",
		"url":  "https://hub.grid.tf/demo/app.flist",
		"mode": "rw",
		"limit": 1024,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var mount MountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mount))
	assert.Equal(t, "app", mount.Name)
	assert.NotEmpty(t, mount.Path)

	w = doJSON(t, s, http.MethodGet, "/api/v1/flist/app", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mount))
	assert.Equal(t, "abc123", mount.Hash)

	w = doJSON(t, s, http.MethodGet, "/api/v1/flist/other", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	// invalid mode
	w = doJSON(t, s, http.MethodPost, "/api/v1/flist", gin.H{
		"name": "bad", "url": "https://hub.grid.tf/demo/app.flist", "mode": "rwx",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/flist/app", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, mounter.mounts)
}

func TestReadOnlyRouter(t *testing.T) {
	s, store, _ := newTestServer(t)
	store.volumes["vol-1"] = storage.VolumeInfo{Name: "vol-1", Path: "/mnt/pool-1/vol-1"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/volumes", nil)
	w := httptest.NewRecorder()
	s.local.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body, err := json.Marshal(gin.H{"name": "vol-2", "size": 1024})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/volumes", bytes.NewReader(body))
	w = httptest.NewRecorder()
	s.local.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/live", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
