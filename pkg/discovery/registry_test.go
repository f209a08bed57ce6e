package discovery_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/discovery/mocks"
	"github.com/Li-Yaosong/webadb2/pkg/persistence"
)

// countingStore counts writes and can be told to fail them.
type countingStore struct {
	*persistence.MemoryStore

	mu      sync.Mutex
	sets    int
	failSet error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: persistence.NewMemoryStore()}
}

func (s *countingStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return s.failSet
	}
	s.sets++
	return s.MemoryStore.Set(key, value)
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func serials(devices []discovery.Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.Serial()
	}
	return out
}

func TestRegistryPersistedReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	reg, err := discovery.NewRegistry(persistence.NewFileStore(path))
	require.NoError(t, err)

	_, err = reg.AddPersisted(discovery.KindTCP, persistence.Endpoint{Address: "192.168.1.20", Port: 5555})
	require.NoError(t, err)
	_, err = reg.AddPersisted(discovery.KindTCP, persistence.Endpoint{Address: "192.168.1.21", Port: 5037})
	require.NoError(t, err)
	_, err = reg.AddPersisted(discovery.KindWebSocket, persistence.Endpoint{Address: "ws://relay:8080/device"})
	require.NoError(t, err)

	reg2, err := discovery.NewRegistry(persistence.NewFileStore(path))
	require.NoError(t, err)

	assert.Equal(t, []string{"192.168.1.20:5555", "192.168.1.21:5037"}, serials(reg2.Persisted(discovery.KindTCP)))
	assert.Equal(t, []string{"ws://relay:8080/device"}, serials(reg2.Persisted(discovery.KindWebSocket)))

	tcp := reg2.Persisted(discovery.KindTCP)[0].(*discovery.TCPDevice)
	assert.Equal(t, "192.168.1.20", tcp.Host())
	assert.Equal(t, 5555, tcp.Port())
}

func TestRegistryConcurrentAddPersisted(t *testing.T) {
	const n = 16
	path := filepath.Join(t.TempDir(), "devices.json")
	reg, err := discovery.NewRegistry(persistence.NewFileStore(path))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			_, err := reg.AddPersisted(discovery.KindTCP, persistence.Endpoint{Address: "10.0.0.1", Port: port})
			errs <- err
		}(5555 + i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, reg.Persisted(discovery.KindTCP), n)

	reloaded, err := discovery.NewRegistry(persistence.NewFileStore(path))
	require.NoError(t, err)
	assert.ElementsMatch(t, serials(reg.Persisted(discovery.KindTCP)), serials(reloaded.Persisted(discovery.KindTCP)))
	assert.Len(t, reloaded.Persisted(discovery.KindTCP), n)
}

func TestRegistryAddPersistedDuplicate(t *testing.T) {
	store := newCountingStore()
	reg, err := discovery.NewRegistry(store)
	require.NoError(t, err)

	first, err := reg.AddPersisted(discovery.KindTCP, persistence.Endpoint{Address: "10.0.0.5", Port: 5555})
	require.NoError(t, err)
	require.Equal(t, 1, store.writes())

	second, err := reg.AddPersisted(discovery.KindTCP, persistence.Endpoint{Address: "10.0.0.5", Port: 5555})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, store.writes(), "duplicate add must not write")
	assert.Len(t, reg.Persisted(discovery.KindTCP), 1)
}

func TestRegistryFailedWriteLeavesListUnchanged(t *testing.T) {
	store := newCountingStore()
	reg, err := discovery.NewRegistry(store)
	require.NoError(t, err)

	_, err = reg.AddPersisted(discovery.KindTCP, persistence.Endpoint{Address: "10.0.0.5", Port: 5555})
	require.NoError(t, err)

	store.failSet = errors.New("disk full")

	_, err = reg.AddPersisted(discovery.KindTCP, persistence.Endpoint{Address: "10.0.0.6", Port: 5555})
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, []string{"10.0.0.5:5555"}, serials(reg.Persisted(discovery.KindTCP)))

	err = reg.RemovePersisted(discovery.KindTCP, "10.0.0.5:5555")
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, reg.Persisted(discovery.KindTCP), 1)
}

func TestRegistryAddPersistedValidation(t *testing.T) {
	reg, err := discovery.NewRegistry(nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		kind discovery.Kind
		ep   persistence.Endpoint
	}{
		{"usb not persistable", discovery.KindUSB, persistence.Endpoint{Address: "R58M123"}},
		{"tcp without port", discovery.KindTCP, persistence.Endpoint{Address: "10.0.0.5"}},
		{"tcp empty address", discovery.KindTCP, persistence.Endpoint{Port: 5555}},
		{"ws wrong scheme", discovery.KindWebSocket, persistence.Endpoint{Address: "http://relay:8080"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.AddPersisted(tt.kind, tt.ep)
			assert.Error(t, err)
		})
	}
	_, err = reg.AddPersisted(discovery.KindUSB, persistence.Endpoint{Address: "x"})
	assert.ErrorIs(t, err, discovery.ErrNotPersistable)
}

func TestRegistryLoadSkipsInvalidAndDuplicates(t *testing.T) {
	store := persistence.NewMemoryStore()
	require.NoError(t, persistence.SaveEndpoints(store, persistence.KeyTCPEndpoints, []persistence.Endpoint{
		{Address: "10.0.0.5", Port: 5555},
		{Address: "10.0.0.6"},
		{Address: "10.0.0.5", Port: 5555},
	}))

	reg, err := discovery.NewRegistry(store)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.5:5555"}, serials(reg.Persisted(discovery.KindTCP)))
}

func TestRegistryRemovePersisted(t *testing.T) {
	reg, err := discovery.NewRegistry(nil)
	require.NoError(t, err)

	_, err = reg.AddPersisted(discovery.KindWebSocket, persistence.Endpoint{Address: "ws://a:1"})
	require.NoError(t, err)
	_, err = reg.AddPersisted(discovery.KindWebSocket, persistence.Endpoint{Address: "ws://b:2"})
	require.NoError(t, err)

	require.NoError(t, reg.RemovePersisted(discovery.KindWebSocket, "ws://a:1"))
	assert.Equal(t, []string{"ws://b:2"}, serials(reg.Persisted(discovery.KindWebSocket)))

	err = reg.RemovePersisted(discovery.KindWebSocket, "ws://a:1")
	assert.ErrorIs(t, err, discovery.ErrNotFound)
}

func TestRegistryListDevicesOrder(t *testing.T) {
	ctx := context.Background()

	src := mocks.NewMockSource(t)
	src.EXPECT().Kind().Return(discovery.KindTCP)
	src.EXPECT().Devices(mock.Anything).Return([]discovery.Device{
		discovery.NewTCPDevice("10.0.0.9", 5555),
		discovery.NewTCPDevice("10.0.0.5", 5555),
	}, nil)

	reg, err := discovery.NewRegistry(nil, src)
	require.NoError(t, err)
	_, err = reg.AddPersisted(discovery.KindTCP, persistence.Endpoint{Address: "10.0.0.1", Port: 5555})
	require.NoError(t, err)
	_, err = reg.AddPersisted(discovery.KindTCP, persistence.Endpoint{Address: "10.0.0.5", Port: 5555})
	require.NoError(t, err)
	_, err = reg.AddPersisted(discovery.KindWebSocket, persistence.Endpoint{Address: "ws://relay:8080"})
	require.NoError(t, err)

	devices, err := reg.ListDevices(ctx, discovery.KindTCP)
	require.NoError(t, err)
	// Discovered entries first; the persisted duplicate of 10.0.0.5 is dropped.
	assert.Equal(t, []string{"10.0.0.9:5555", "10.0.0.5:5555", "10.0.0.1:5555"}, serials(devices))

	all, err := reg.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ws://relay:8080", "10.0.0.9:5555", "10.0.0.5:5555", "10.0.0.1:5555"}, serials(all))
}

func TestRegistryListDevicesSourceError(t *testing.T) {
	src := mocks.NewMockSource(t)
	src.EXPECT().Kind().Return(discovery.KindUSB)
	src.EXPECT().Devices(mock.Anything).Return(nil, errors.New("usb busy"))

	reg, err := discovery.NewRegistry(nil, src)
	require.NoError(t, err)

	_, err = reg.ListDevices(context.Background(), discovery.KindUSB)
	assert.ErrorContains(t, err, "usb busy")
}

func TestRegistryAllSkipsFailingSource(t *testing.T) {
	src := mocks.NewMockSource(t)
	src.EXPECT().Kind().Return(discovery.KindTCP)
	src.EXPECT().Devices(mock.Anything).Return(nil, errors.New("mdns down"))

	reg, err := discovery.NewRegistry(nil, src)
	require.NoError(t, err)
	_, err = reg.AddPersisted(discovery.KindTCP, persistence.Endpoint{Address: "10.0.0.1", Port: 5555})
	require.NoError(t, err)
	_, err = reg.AddPersisted(discovery.KindWebSocket, persistence.Endpoint{Address: "ws://relay:8080"})
	require.NoError(t, err)

	all, err := reg.All(context.Background())
	assert.ErrorContains(t, err, "mdns down")
	assert.Equal(t, []string{"ws://relay:8080", "10.0.0.1:5555"}, serials(all))
}

func TestRegistryWatch(t *testing.T) {
	t.Run("no watchable source", func(t *testing.T) {
		src := mocks.NewMockSource(t)
		src.EXPECT().CanWatch().Return(false)

		reg, err := discovery.NewRegistry(nil, src)
		require.NoError(t, err)

		assert.False(t, reg.CanWatch())
		dispose := reg.Watch(func(string) {})
		dispose()
		dispose()
	})

	t.Run("dispose stops exactly once", func(t *testing.T) {
		var notify func(string)
		stops := 0

		src := mocks.NewMockSource(t)
		src.EXPECT().CanWatch().Return(true)
		src.EXPECT().Watch(mock.Anything).RunAndReturn(func(fn func(string)) (func(), error) {
			notify = fn
			return func() { stops++ }, nil
		}).Once()

		reg, err := discovery.NewRegistry(nil, src)
		require.NoError(t, err)
		require.True(t, reg.CanWatch())

		var got []string
		dispose := reg.Watch(func(serial string) { got = append(got, serial) })

		notify("R58M123")
		assert.Equal(t, []string{"R58M123"}, got)

		dispose()
		dispose()
		assert.Equal(t, 1, stops)
	})

	t.Run("watch error is skipped", func(t *testing.T) {
		src := mocks.NewMockSource(t)
		src.EXPECT().CanWatch().Return(true)
		src.EXPECT().Kind().Return(discovery.KindUSB).Maybe()
		src.EXPECT().Watch(mock.Anything).Return(nil, errors.New("no hotplug"))

		reg, err := discovery.NewRegistry(nil, src)
		require.NoError(t, err)

		dispose := reg.Watch(func(string) {})
		dispose()
	})
}
