package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"quiz-attempt/internal/app"
	"quiz-attempt/internal/domain"
	"quiz-attempt/internal/render"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

const terminalHelp = `Commands:
  <answer>  answer the current question
  :n :p     next / previous question
  :j N      jump to question N
  :f        finish and submit
  :r        retry a failed submission
  :q        leave (progress is kept for resume)`

// terminal is the line-oriented front end for one attempt.
type terminal struct {
	c      *app.Controller
	in     io.Reader
	out    io.Writer
	logger *zap.Logger

	gate      *app.Gate
	lastState domain.AttemptState
	seen      uint64
}

func newTerminal(c *app.Controller, in io.Reader, out io.Writer, logger *zap.Logger) *terminal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &terminal{c: c, in: in, out: out, logger: logger}
}

// Run returns when the attempt completes, the student quits or ctx ends.
func (t *terminal) Run(ctx context.Context) error {
	updates, cancel := t.c.Subscribe()
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	initial := t.c.Snapshot()
	t.lastState, t.seen = initial.State, initial.Revision
	fmt.Fprintln(t.out, terminalHelp)
	if t.announce(t.lastState) {
		return nil
	}
	t.prompt()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if t.observe(snap) {
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				t.leave()
				return nil
			}
			if quit := t.handle(ctx, strings.TrimSpace(line)); quit {
				t.leave()
				return nil
			}
			if t.announceLatest() {
				return nil
			}
		}
	}
}

// announce prints state transitions; it returns true once the attempt is over.
func (t *terminal) announce(state domain.AttemptState) bool {
	switch state {
	case domain.StateSubmitting:
		color.New(color.FgYellow).Fprintln(t.out, "Submitting...")
	case domain.StateCompleted:
		if rec, ok := t.c.Record(); ok {
			render.Result(t.out, rec)
		}
		return true
	case domain.StateError:
		color.New(color.FgRed).Fprintf(t.out, "Submission failed: %v\n", t.c.Err())
		fmt.Fprintln(t.out, "Type :r to retry with the same answers.")
	}
	return false
}

func (t *terminal) announceLatest() bool {
	return t.observe(t.c.Snapshot())
}

// observe announces a state change carried by snap, skipping snapshots older than one
// already handled.
func (t *terminal) observe(snap app.Snapshot) bool {
	if snap.Revision < t.seen {
		return false
	}
	t.seen = snap.Revision
	if snap.State == t.lastState {
		return false
	}
	t.lastState = snap.State
	return t.announce(snap.State)
}

func (t *terminal) prompt() {
	render.Status(t.out, t.c.Snapshot())
	if t.gate != nil {
		render.Gate(t.out, t.gate.Summary())
		return
	}
	view, err := t.c.Current()
	if err != nil {
		return
	}
	render.Question(t.out, view)
}

func (t *terminal) handle(ctx context.Context, line string) (quit bool) {
	if t.gate != nil {
		gate := t.gate
		t.gate = nil
		if strings.EqualFold(line, "y") || strings.EqualFold(line, "yes") {
			if _, err := gate.Confirm(ctx); err != nil {
				t.logger.Debug("confirm failed", zap.Error(err))
			}
			return false
		}
		gate.Dismiss()
		fmt.Fprintln(t.out, "Submission cancelled.")
		if line == "" || strings.EqualFold(line, "n") || strings.EqualFold(line, "no") {
			t.prompt()
			return false
		}
	}

	switch {
	case line == "":
		t.prompt()
	case line == ":q":
		return true
	case line == ":h":
		fmt.Fprintln(t.out, terminalHelp)
	case line == ":n":
		res, err := t.c.Next()
		if t.report(err) {
			return false
		}
		t.gate = res.Gate
		t.prompt()
	case line == ":p":
		if _, err := t.c.Previous(); t.report(err) {
			return false
		}
		t.prompt()
	case strings.HasPrefix(line, ":j"):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, ":j")))
		if err != nil {
			t.report(errors.New("usage: :j N"))
			return false
		}
		if t.report(t.c.JumpTo(n - 1)) {
			return false
		}
		t.prompt()
	case line == ":f":
		gate, err := t.c.OpenGate()
		if t.report(err) {
			return false
		}
		t.gate = gate
		t.prompt()
	case line == ":r":
		if _, err := t.c.Retry(ctx); err != nil {
			t.report(err)
		}
	case strings.HasPrefix(line, ":"):
		t.report(fmt.Errorf("unknown command %s", line))
	default:
		t.answer(line)
	}
	return false
}

func (t *terminal) answer(line string) {
	view, err := t.c.Current()
	if t.report(err) {
		return
	}
	answer, err := render.ParseInput(view.Question, line)
	if t.report(err) {
		return
	}
	if t.report(t.c.SetAnswer(view.Question.ID, answer)) {
		return
	}
	res, err := t.c.Next()
	if t.report(err) {
		return
	}
	t.gate = res.Gate
	t.prompt()
}

func (t *terminal) report(err error) bool {
	if err == nil {
		return false
	}
	color.New(color.FgRed).Fprintln(t.out, err.Error())
	return true
}

func (t *terminal) leave() {
	snap := t.c.Snapshot()
	if snap.State == domain.StateCompleted {
		if rec, ok := t.c.Record(); ok {
			render.Result(t.out, rec)
		}
		return
	}
	fmt.Fprintf(t.out, "Progress saved. Continue with: quiz-attempt resume %s\n", snap.AttemptID)
}
