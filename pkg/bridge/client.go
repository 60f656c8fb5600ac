package bridge

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Dialoger answers a dialog frame. The worker-side Client, the terminal
// fallback and the host-side UI responders all implement it.
type Dialoger interface {
	Request(ctx context.Context, f Frame) (Response, error)
}

type lineResult struct {
	line string
}

// Client is the worker end of the bridge. Frames go to out, answers are read
// from in. When the bridge is inactive every request goes to Fallback.
type Client struct {
	Proto    Protocol
	Active   bool
	Fallback Dialoger

	out      io.Writer
	in       *bufio.Reader
	writerMu sync.Mutex

	outstanding atomic.Bool
	// unanswered counts requests given up on before their answer arrived;
	// the host still answers them, in order. Guarded by outstanding.
	unanswered int
	readOnce   sync.Once
	lines      chan lineResult
	readErr    error
}

func NewClient(proto Protocol, active bool, in io.Reader, out io.Writer) *Client {
	return &Client{
		Proto:  proto,
		Active: active,
		out:    out,
		in:     bufio.NewReader(in),
		lines:  make(chan lineResult),
	}
}

// NewClientFromEnv wires a client to the process stdio using the host's
// environment. Without a host it falls back to the terminal.
func NewClientFromEnv() *Client {
	c := NewClient(ProtocolFromEnv(), ActiveFromEnv(), os.Stdin, os.Stdout)
	c.Fallback = NewTerminalDialoger()
	return c
}

func (c *Client) Request(ctx context.Context, f Frame) (Response, error) {
	if !f.IsDialog() {
		return Response{}, errors.Errorf("not a dialog frame: %q", f.Type)
	}
	if !c.Active {
		if c.Fallback == nil {
			return Response{}, errors.New("bridge inactive and no fallback dialoger")
		}
		return c.Fallback.Request(ctx, f)
	}
	if !c.outstanding.CompareAndSwap(false, true) {
		return Response{}, errors.Wrap(ErrProtocolViolation, "a dialog request is already outstanding")
	}
	defer c.outstanding.Store(false)
	c.readOnce.Do(func() { go c.readLoop() })

	// the host keeps one dialog open at a time, so late answers are
	// consumed before the next frame goes out
	for c.unanswered > 0 {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return c.closedResponse()
			}
			c.unanswered--
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}

	if err := c.writeFrame(f); err != nil {
		return Response{}, err
	}

	select {
	case r, ok := <-c.lines:
		if !ok {
			return c.closedResponse()
		}
		return c.Proto.DecodeResponse(r.line), nil
	case <-ctx.Done():
		c.unanswered++
		return Response{}, ctx.Err()
	}
}

func (c *Client) closedResponse() (Response, error) {
	if errors.Is(c.readErr, io.EOF) {
		return Response{Cancelled: true}, nil
	}
	return Response{}, errors.Wrap(c.readErr, "read bridge response")
}

// Signal reports a typed failure to the host. It does not wait for a reply.
func (c *Client) Signal(kind SignalKind, detail string) error {
	if !kind.Valid() {
		return errors.Errorf("unknown signal kind %q", kind)
	}
	if !c.Active {
		return nil
	}
	return c.writeFrame(Frame{Type: KindSignal, Signal: kind, Detail: detail})
}

func (c *Client) Alert(ctx context.Context, text, title, button string) (string, error) {
	if title == "" {
		title = "Informação"
	}
	if button == "" {
		button = "OK"
	}
	if _, err := c.Request(ctx, Frame{Type: KindAlert, Text: text, Title: title, Button: button}); err != nil {
		return "", err
	}
	return button, nil
}

// Confirm returns the chosen button. A dismissed dialog resolves to "Cancel"
// when it is one of the buttons, otherwise to the last button.
func (c *Client) Confirm(ctx context.Context, text, title string, buttons []string) (string, error) {
	buttons = NormalizeButtons(buttons)
	if title == "" {
		title = "Confirmação"
	}
	resp, err := c.Request(ctx, Frame{Type: KindConfirm, Text: text, Title: title, Buttons: buttons})
	if err != nil {
		return "", err
	}
	if !resp.Cancelled {
		if v := strings.TrimSpace(resp.Value); v != "" {
			return v, nil
		}
	}
	return CancelChoice(buttons), nil
}

// Ask is Confirm with OK/Cancel buttons reduced to a boolean.
func (c *Client) Ask(ctx context.Context, text string) (bool, error) {
	choice, err := c.Confirm(ctx, text, "", []string{"OK", "Cancel"})
	if err != nil {
		return false, err
	}
	return choice == "OK", nil
}

type PromptOptions struct {
	Title         string
	Default       string
	RequireInput  bool
	AllowCancel   bool
	CancelMessage string
}

// Prompt asks for a value. ok is false when the operator cancelled. With
// RequireInput, two blank answers in a row hand the prompt to the fallback
// dialoger.
func (c *Client) Prompt(ctx context.Context, text string, opts PromptOptions) (value string, ok bool, err error) {
	if opts.Title == "" {
		opts.Title = "Entrada"
	}
	f := Frame{
		Type:          KindPrompt,
		Text:          text,
		Title:         opts.Title,
		Default:       opts.Default,
		RequireInput:  opts.RequireInput,
		AllowCancel:   opts.AllowCancel,
		CancelMessage: opts.CancelMessage,
	}

	blanks := 0
	for {
		resp, err := c.Request(ctx, f)
		if err != nil {
			return "", false, err
		}
		if resp.Cancelled {
			return "", false, nil
		}
		v := strings.TrimSpace(resp.Value)
		if v != "" || !opts.RequireInput {
			return v, v != "" || !opts.RequireInput, nil
		}
		blanks++
		if blanks >= 2 || !c.Active {
			break
		}
	}

	if c.Fallback == nil {
		return "", false, nil
	}
	resp, err := c.Fallback.Request(ctx, f)
	if err != nil {
		return "", false, err
	}
	v := strings.TrimSpace(resp.Value)
	if resp.Cancelled || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (c *Client) writeFrame(f Frame) error {
	line, err := c.Proto.EncodeFrame(f)
	if err != nil {
		return err
	}
	c.writerMu.Lock()
	defer c.writerMu.Unlock()
	if _, err := io.WriteString(c.out, line+"\n"); err != nil {
		return errors.Wrap(err, "write bridge frame")
	}
	return nil
}

// readLoop owns the input side. Once input ends every later request sees
// the closed channel.
func (c *Client) readLoop() {
	for {
		line, err := c.in.ReadString('\n')
		if line != "" {
			c.lines <- lineResult{line: line}
		}
		if err != nil {
			c.readErr = err
			close(c.lines)
			return
		}
	}
}

// NormalizeButtons drops blank labels; no labels at all means OK/Cancel.
func NormalizeButtons(in []string) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return []string{"OK", "Cancel"}
	}
	return out
}

func CancelChoice(buttons []string) string {
	buttons = NormalizeButtons(buttons)
	for _, b := range buttons {
		if b == "Cancel" {
			return b
		}
	}
	return buttons[len(buttons)-1]
}
