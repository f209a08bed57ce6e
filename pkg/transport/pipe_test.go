package transport

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestPipeDeliversInOrder(t *testing.T) {
	client, device := NewPipe()

	for _, msg := range []string{"a", "b", "c"} {
		if err := client.Writer.WriteFrame([]byte(msg)); err != nil {
			t.Fatalf("WriteFrame(%q) failed: %v", msg, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := device.Reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}

	if err := device.Writer.WriteFrame([]byte("reply")); err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	got, err := client.Reader.ReadFrame()
	if err != nil || string(got) != "reply" {
		t.Errorf("got %q, %v; want reply", got, err)
	}
}

func TestPipeCloseDrainsThenEOF(t *testing.T) {
	client, device := NewPipe()

	client.Writer.WriteFrame([]byte("last"))
	client.Writer.Close()

	got, err := device.Reader.ReadFrame()
	if err != nil || string(got) != "last" {
		t.Fatalf("got %q, %v; want last", got, err)
	}
	if _, err := device.Reader.ReadFrame(); err != io.EOF {
		t.Errorf("got %v, want io.EOF", err)
	}
	if err := client.Writer.WriteFrame([]byte("x")); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("write after close: got %v, want ErrStreamClosed", err)
	}
}

func TestPipeCancelUnblocksRead(t *testing.T) {
	client, _ := NewPipe()

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Reader.ReadFrame()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	client.Reader.Cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCanceled) {
			t.Errorf("got %v, want ErrCanceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadFrame did not return after Cancel")
	}

	// Cancel is idempotent.
	if err := client.Reader.Cancel(); err != nil {
		t.Errorf("second Cancel: %v", err)
	}
}
