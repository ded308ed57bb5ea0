package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Confirmer asks yes/no questions before destructive operations.
type Confirmer struct {
	writer io.Writer
	reader *NonBlockingReader
}

// NewConfirmer creates a confirmer reading from reader and writing prompts to writer.
func NewConfirmer(reader io.Reader, writer io.Writer) *Confirmer {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Confirmer{
		reader: NewNonBlockingReader(reader),
		writer: writer,
	}
}

// Confirm asks prompt until the answer is y/yes or n/no. An empty answer or
// end of input counts as no.
func (c *Confirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	for {
		if _, err := fmt.Fprintf(c.writer, "%s", FormatPrompt(prompt+" [y/N]")); err != nil {
			return false, fmt.Errorf("failed to write prompt: %w", err)
		}

		answer, err := c.reader.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}

		if _, err := fmt.Fprintln(c.writer, FormatError("Please answer y or n.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}
