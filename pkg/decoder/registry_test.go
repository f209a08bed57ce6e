package decoder

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name      string
	supported bool
	probes    atomic.Int32
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Supported() bool {
	f.probes.Add(1)
	return f.supported
}

func (f *fakeBackend) New(context.Context, Config) (Decoder, error) { return nil, nil }

func names(backends []Backend) []string {
	out := make([]string, len(backends))
	for i, b := range backends {
		out[i] = b.Name()
	}
	return out
}

func TestRegistryMovesFirstSupportedToFront(t *testing.T) {
	hw := &fakeBackend{name: "hardware"}
	sw := &fakeBackend{name: "software", supported: true}
	dump := &fakeBackend{name: "dump", supported: true}
	r := NewRegistry(hw, sw, dump)

	assert.Equal(t, []string{"software", "hardware", "dump"}, names(r.Backends()))

	b, err := r.Select("")
	require.NoError(t, err)
	assert.Equal(t, "software", b.Name())
}

func TestRegistryProbesOnce(t *testing.T) {
	a := &fakeBackend{name: "a"}
	b := &fakeBackend{name: "b", supported: true}
	r := NewRegistry(a, b)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Select("")
			_ = r.Backends()
		}()
	}
	wg.Wait()
	_, _ = r.Select("a")

	assert.Equal(t, int32(1), a.probes.Load())
	assert.Equal(t, int32(1), b.probes.Load())
	assert.Equal(t, []string{"b", "a"}, names(r.Backends()))
}

func TestRegistrySelectPreferred(t *testing.T) {
	a := &fakeBackend{name: "a", supported: true}
	b := &fakeBackend{name: "b", supported: true}
	c := &fakeBackend{name: "c"}
	r := NewRegistry(a, b, c)

	got, err := r.Select("b")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name())

	got, err = r.Select("c")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name(), "unsupported preference falls back")

	got, err = r.Select("missing")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name())

	assert.True(t, r.Supported("b"))
	assert.False(t, r.Supported("c"))
	assert.Equal(t, []string{"a (supported)", "b (supported)", "c (unsupported)"}, r.Describe())
}

func TestRegistryNoDecoder(t *testing.T) {
	r := NewRegistry(&fakeBackend{name: "a"}, &fakeBackend{name: "b"})
	_, err := r.Select("")
	assert.ErrorIs(t, err, ErrNoDecoder)

	_, err = NewRegistry().Select("")
	assert.ErrorIs(t, err, ErrNoDecoder)
}

func TestDefaultRegistry(t *testing.T) {
	assert.Same(t, Default(), Default())
	// Dump is always supported, so some backend is always available.
	_, err := Default().Select("dump")
	assert.NoError(t, err)
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	d := &Dump{Dir: dir}
	assert.True(t, d.Supported())

	dec, err := d.New(context.Background(), Config{Codec: "h265"})
	require.NoError(t, err)

	_, err = dec.Write([]byte{0, 0, 0, 1, 0x40})
	require.NoError(t, err)
	require.NoError(t, dec.Close())
	require.NoError(t, dec.Close())

	_, err = dec.Write([]byte{1})
	assert.ErrorIs(t, err, os.ErrClosed)

	path := dec.(*fileDecoder).Path()
	assert.FileExists(t, path)
	assert.Contains(t, path, ".h265")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x40}, data)
}

func TestFFplayMissingBinary(t *testing.T) {
	f := &FFplay{Path: "/nonexistent/ffplay"}
	assert.Equal(t, "ffplay", f.Name())
	assert.False(t, f.Supported())

	_, err := f.New(context.Background(), Config{})
	assert.Error(t, err)
}
