package discovery

import (
	"context"

	"github.com/Li-Yaosong/webadb2/pkg/transport"
)

// USBDeviceInfo describes an attached USB device.
type USBDeviceInfo struct {
	Serial string
	Name   string
}

// USBBackend is the platform USB access layer.
type USBBackend interface {
	// Supported reports whether USB access works on this host.
	Supported() bool

	// Devices enumerates attached devices.
	Devices(ctx context.Context) ([]USBDeviceInfo, error)

	// Open claims the device interface and returns its streams.
	Open(ctx context.Context, serial string) (transport.Streams, error)

	// Watch notifies fn on attach and detach.
	Watch(fn func(serial string)) (stop func(), err error)
}

// USBSource exposes a USBBackend as a Source. A nil or unsupported
// backend yields an empty, unwatchable source.
type USBSource struct {
	backend USBBackend
}

// NewUSBSource creates a source over backend.
func NewUSBSource(backend USBBackend) *USBSource {
	return &USBSource{backend: backend}
}

// Kind returns KindUSB.
func (s *USBSource) Kind() Kind { return KindUSB }

// Supported reports whether the backend is usable.
func (s *USBSource) Supported() bool {
	return s.backend != nil && s.backend.Supported()
}

// Devices returns attached devices.
func (s *USBSource) Devices(ctx context.Context) ([]Device, error) {
	if !s.Supported() {
		return nil, nil
	}
	infos, err := s.backend.Devices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(infos))
	for _, info := range infos {
		out = append(out, &usbDevice{info: info, backend: s.backend})
	}
	return out, nil
}

// CanWatch reports whether the backend is usable.
func (s *USBSource) CanWatch() bool { return s.Supported() }

// Watch forwards backend notifications.
func (s *USBSource) Watch(fn func(serial string)) (func(), error) {
	if !s.Supported() {
		return nil, ErrWatchUnsupported
	}
	return s.backend.Watch(fn)
}

type usbDevice struct {
	info    USBDeviceInfo
	backend USBBackend
}

func (d *usbDevice) Serial() string { return d.info.Serial }
func (d *usbDevice) Name() string   { return d.info.Name }
func (d *usbDevice) Kind() Kind     { return KindUSB }

func (d *usbDevice) Connect(ctx context.Context) (transport.Streams, error) {
	return d.backend.Open(ctx, d.info.Serial)
}

var _ Source = (*USBSource)(nil)
