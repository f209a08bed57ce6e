package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

// PushProgress is called with the cumulative number of bytes sent.
type PushProgress func(sent int64)

// Push writes the contents of r to path on the device. size is the
// declared length (-1 if unknown); the device rejects a transfer whose
// length differs. progress may be nil.
func (c *Client) Push(ctx context.Context, path string, r io.Reader, size int64, mode fs.FileMode, progress PushProgress) error {
	if path == "" {
		return errors.New("push: empty destination path")
	}

	id, ch, err := c.register()
	if err != nil {
		return err
	}
	defer c.unregister(id)

	err = c.send(&wire.Message{
		Type: wire.MsgRequest,
		ID:   id,
		Op:   wire.OpPush,
		Args: []string{path},
		Size: size,
		Mode: uint32(mode.Perm()),
	})
	if err != nil {
		return err
	}

	buf := make([]byte, c.config.ChunkSize)
	var sent int64
	for {
		select {
		case resp := <-ch:
			// The device only answers early when it gives up.
			if resp.Status.IsError() {
				return &StatusError{Op: wire.OpPush, Status: resp.Status, Message: resp.Error}
			}
			return fmt.Errorf("push %s: unexpected early response", path)
		case <-ctx.Done():
			c.abortStream(id)
			return ctx.Err()
		case <-c.done:
			return c.closedErr()
		default:
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			if err := c.send(&wire.Message{Type: wire.MsgData, ID: id, Data: buf[:n]}); err != nil {
				return err
			}
			sent += int64(n)
			if progress != nil {
				progress(sent)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			c.abortStream(id)
			return fmt.Errorf("push %s: read source: %w", path, rerr)
		}
	}

	if err := c.send(&wire.Message{Type: wire.MsgStreamClose, ID: id}); err != nil {
		return err
	}
	_, err = c.await(ctx, wire.OpPush, ch)
	return err
}

// abortStream tells the device to discard a stream. Errors are ignored;
// the caller is already failing.
func (c *Client) abortStream(id uint32) {
	_ = c.send(&wire.Message{Type: wire.MsgStreamClose, ID: id, Code: -1})
}
