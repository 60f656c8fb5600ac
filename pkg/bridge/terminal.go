package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TerminalDialoger asks on a terminal. Workers use it when no host is
// attached; the host uses it in line mode. Output never goes to stdout
// because stdout may be the bridge channel.
type TerminalDialoger struct {
	In  io.Reader
	Out io.Writer

	r *bufio.Reader
}

// NewTerminalDialoger prefers /dev/tty and falls back to stdin/stderr.
func NewTerminalDialoger() *TerminalDialoger {
	if tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0); err == nil {
		return &TerminalDialoger{In: tty, Out: tty}
	}
	return &TerminalDialoger{In: os.Stdin, Out: os.Stderr}
}

func (t *TerminalDialoger) Request(ctx context.Context, f Frame) (Response, error) {
	if t.r == nil {
		t.r = bufio.NewReader(t.In)
	}
	if f.Title != "" {
		_, _ = fmt.Fprintf(t.Out, "\n== %s ==\n", f.Title)
	}
	if f.Text != "" {
		_, _ = fmt.Fprintln(t.Out, f.Text)
	}

	switch f.Type {
	case KindAlert:
		button := f.Button
		if button == "" {
			button = "OK"
		}
		_, _ = fmt.Fprintf(t.Out, "[Enter = %s] ", button)
		if _, err := t.readLine(ctx); err != nil {
			return t.eof(err)
		}
		return Response{Value: button}, nil

	case KindConfirm:
		buttons := NormalizeButtons(f.Buttons)
		for i, b := range buttons {
			_, _ = fmt.Fprintf(t.Out, "  %d) %s\n", i+1, b)
		}
		for {
			_, _ = fmt.Fprint(t.Out, "> ")
			line, err := t.readLine(ctx)
			if err != nil {
				return t.eof(err)
			}
			if line == "" {
				return Response{Cancelled: true}, nil
			}
			if choice, ok := matchButton(buttons, line); ok {
				return Response{Value: choice}, nil
			}
			_, _ = fmt.Fprintln(t.Out, "opção inválida")
		}

	case KindPrompt:
		for {
			if f.Default != "" {
				_, _ = fmt.Fprintf(t.Out, "[%s] > ", f.Default)
			} else {
				_, _ = fmt.Fprint(t.Out, "> ")
			}
			line, err := t.readLine(ctx)
			if err != nil {
				return t.eof(err)
			}
			if line == "" {
				line = f.Default
			}
			if line != "" {
				return Response{Value: line}, nil
			}
			if !f.RequireInput {
				return Response{}, nil
			}
			if f.AllowCancel {
				return Response{Cancelled: true}, nil
			}
			_, _ = fmt.Fprintln(t.Out, "Informe um valor antes de continuar.")
		}
	}
	return Response{}, errors.Errorf("not a dialog frame: %q", f.Type)
}

func (t *TerminalDialoger) eof(err error) (Response, error) {
	if errors.Is(err, io.EOF) {
		return Response{Cancelled: true}, nil
	}
	return Response{}, err
}

func (t *TerminalDialoger) readLine(ctx context.Context) (string, error) {
	ch := make(chan lineOrErr, 1)
	go func() {
		line, err := t.r.ReadString('\n')
		ch <- lineOrErr{line: line, err: err}
	}()
	select {
	case r := <-ch:
		if r.err != nil && r.line == "" {
			return "", r.err
		}
		return strings.TrimSpace(r.line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type lineOrErr struct {
	line string
	err  error
}

func matchButton(buttons []string, in string) (string, bool) {
	if n, err := strconv.Atoi(in); err == nil && n >= 1 && n <= len(buttons) {
		return buttons[n-1], true
	}
	for _, b := range buttons {
		if strings.EqualFold(b, in) {
			return b, true
		}
	}
	return "", false
}
