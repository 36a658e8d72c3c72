package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"notesim/internal/port"
)

// Terminal asks questions on out and reads answers line by line from in.
type Terminal struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
	// AssumeYes answers every confirmation with yes without reading input.
	AssumeYes bool
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Confirm prints prompt with a [y/N] suffix. Anything but y or yes declines,
// including end of input.
func (t *Terminal) Confirm(ctx context.Context, prompt string) (bool, error) {
	if t.AssumeYes {
		return true, nil
	}
	answer, err := t.ask(ctx, prompt+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// PromptText prints label and returns the trimmed line entered.
func (t *Terminal) PromptText(ctx context.Context, label string) (string, error) {
	return t.ask(ctx, label+": ")
}

func (t *Terminal) ask(ctx context.Context, prompt string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(t.out, prompt)

	line, err := t.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Writer delivers notifications as lines on an io.Writer.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Notify(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, msg)
}

var (
	_ port.Prompter = (*Terminal)(nil)
	_ port.Notifier = (*Writer)(nil)
)
