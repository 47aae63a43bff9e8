// Package delivery sends finished replies to their recipients.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrDeliveryFailed wraps every failed delivery.
var ErrDeliveryFailed = errors.New("delivery failed")

// Deliverer sends text to a recipient: a Messenger user for private
// replies, a comment for public ones.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID, text string) error
}

// Nop discards every message.
type Nop struct{}

// Deliver does nothing.
func (Nop) Deliver(context.Context, string, string) error { return nil }

// WriterDeliverer prints replies to w, one block per message. It backs
// the CLI.
type WriterDeliverer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterDeliverer creates a deliverer writing to w.
func NewWriterDeliverer(w io.Writer) *WriterDeliverer {
	return &WriterDeliverer{w: w}
}

// Deliver writes text followed by a blank line.
func (d *WriterDeliverer) Deliver(_ context.Context, _ string, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := fmt.Fprintf(d.w, "%s\n\n", text); err != nil {
		return fmt.Errorf("write reply: %v: %w", err, ErrDeliveryFailed)
	}
	return nil
}
