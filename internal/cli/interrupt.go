package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler cancels the command context on SIGINT/SIGTERM and tells the
// user what happened.
type InterruptHandler struct {
	writer      io.Writer
	cancelFunc  context.CancelFunc
	operation   string
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a new interrupt handler.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{
		writer: writer,
	}
}

// HandleInterrupts sets up signal handling and returns a context that will be
// canceled on interrupt. Signal handling stops once ctx is done.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context, operation string) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancelFunc = cancel
	h.operation = operation
	h.mu.Unlock()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			h.interrupt()
		case <-ctx.Done():
		}
	}()

	return ctx
}

func (h *InterruptHandler) interrupt() {
	h.mu.Lock()
	if !h.interrupted {
		h.interrupted = true
		h.showInterruptMessage()
	}
	cancel := h.cancelFunc
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// showInterruptMessage displays a friendly interrupt message. Callers hold mu.
func (h *InterruptHandler) showInterruptMessage() {
	op := h.operation
	if op == "" {
		op = "Operation"
	}
	msg := "\n" + FormatWarning(op+" interrupted!") +
		"\n" + FormatInfo("Series changes are applied as a unit; run `recur show` to check the result.") + "\n"

	if _, err := fmt.Fprint(h.writer, msg); err != nil {
		// Best effort - we're shutting down anyway
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

// WasInterrupted returns true if the process was interrupted.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
