// Package decoder selects and runs the video decoding backend for a
// mirroring session.
//
// A Registry holds candidate backends in priority order. The first call
// that needs a backend probes every candidate once; the first supported
// candidate is moved to the front and the probe results are kept for the
// lifetime of the registry. Default returns the process-wide registry.
package decoder
