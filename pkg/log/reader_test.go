package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, reader *Reader) []Event {
	t.Helper()
	var read []Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return read
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryPacket},
		{Timestamp: time.Now(), ConnectionID: "conn-2", Direction: DirectionOut, Layer: LayerSession, Category: CategoryState},
		{Timestamp: time.Now(), ConnectionID: "conn-3", Direction: DirectionIn, Layer: LayerMirror, Category: CategoryError},
	}

	reader, err := NewReader(createTestLogFile(t, events))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].ConnectionID != "conn-1" {
		t.Errorf("first event ConnectionID = %q, want %q", read[0].ConnectionID, "conn-1")
	}
	if read[2].ConnectionID != "conn-3" {
		t.Errorf("last event ConnectionID = %q, want %q", read[2].ConnectionID, "conn-3")
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wlog")
	logger, _ := NewFileLogger(path)
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	event, err := reader.Next()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got err=%v, event=%+v", err, event)
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base.Add(-time.Hour), ConnectionID: "conn-A", Serial: "dev-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryPacket},
		{Timestamp: base, ConnectionID: "conn-B", Serial: "dev-2", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryPacket},
		{Timestamp: base.Add(30 * time.Minute), ConnectionID: "conn-A", Serial: "dev-1", Direction: DirectionOut, Layer: LayerSession, Category: CategoryState},
		{Timestamp: base.Add(2 * time.Hour), ConnectionID: "conn-C", Serial: "dev-3", Direction: DirectionIn, Layer: LayerMirror, Category: CategoryError},
	}
	path := createTestLogFile(t, events)

	out := DirectionOut
	transportLayer := LayerTransport
	state := CategoryState
	start := base.Add(-5 * time.Minute)
	end := base.Add(time.Hour)

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
	}{
		{"ConnectionID", Filter{ConnectionID: "conn-A"}, []string{"conn-A", "conn-A"}},
		{"Serial", Filter{Serial: "dev-2"}, []string{"conn-B"}},
		{"Direction", Filter{Direction: &out}, []string{"conn-B", "conn-A"}},
		{"Layer", Filter{Layer: &transportLayer}, []string{"conn-A", "conn-B"}},
		{"Category", Filter{Category: &state}, []string{"conn-A"}},
		{"TimeRange", Filter{TimeStart: &start, TimeEnd: &end}, []string{"conn-B", "conn-A"}},
		{"Combined", Filter{ConnectionID: "conn-A", Direction: &out}, []string{"conn-A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()

			read := readAll(t, reader)
			if len(read) != len(tt.wantIDs) {
				t.Fatalf("got %d events, want %d", len(read), len(tt.wantIDs))
			}
			for i, e := range read {
				if e.ConnectionID != tt.wantIDs[i] {
					t.Errorf("event %d ConnectionID = %q, want %q", i, e.ConnectionID, tt.wantIDs[i])
				}
			}
		})
	}
}
