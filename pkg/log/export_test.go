package log

import (
	"path/filepath"
	"testing"
)

func TestExportRoundTrip(t *testing.T) {
	events := []Event{
		NewFrameEvent("conn-1", DirectionOut, []byte("CNXN")),
		NewFrameEvent("conn-1", DirectionIn, []byte("AUTH")),
	}

	for _, name := range []string{"packets.wlog", "packets.wlog.zst", "packets.wlog.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := Export(path, events); err != nil {
				t.Fatalf("Export failed: %v", err)
			}

			reader, err := NewReader(path)
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}
			defer reader.Close()

			read := readAll(t, reader)
			if len(read) != len(events) {
				t.Fatalf("got %d events, want %d", len(read), len(events))
			}
			if string(read[1].Frame.Data) != "AUTH" {
				t.Errorf("second frame = %q, want %q", read[1].Frame.Data, "AUTH")
			}
		})
	}
}

func TestCompressionForPath(t *testing.T) {
	tests := map[string]Compression{
		"a.wlog":     CompressionNone,
		"a.wlog.zst": CompressionZstd,
		"a.ZSTD":     CompressionZstd,
		"a.lz4":      CompressionLZ4,
	}
	for path, want := range tests {
		if got := CompressionForPath(path); got != want {
			t.Errorf("CompressionForPath(%q) = %v, want %v", path, got, want)
		}
	}
}
