package wipe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	customerrors "github.com/kingsroom/scrapemeta/pkg/errors"
)

// ConfirmToken is the exact phrase the operator must type before a live
// run may mutate anything. Case variants and padded variants do not count.
const ConfirmToken = "DELETE"

// Gate obtains operator confirmation before destructive execution.
type Gate struct {
	in          io.Reader
	out         io.Writer
	interactive bool
}

// NewGate creates a gate over an explicit operator stream. interactive
// reports whether the stream is attached to a real terminal.
func NewGate(in io.Reader, out io.Writer, interactive bool) *Gate {
	return &Gate{in: in, out: out, interactive: interactive}
}

// StdinGate creates a gate over the process's standard streams, probing
// stdin for a terminal.
func StdinGate(out io.Writer) *Gate {
	fd := os.Stdin.Fd()
	return &Gate{
		in:          os.Stdin,
		out:         out,
		interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

// Confirm prompts for the confirmation token and reads exactly one line.
// It returns nil only when the operator typed the token verbatim.
// ErrNonInteractiveRefusal is returned when no terminal is attached;
// confirmation is never defaulted to yes.
func (g *Gate) Confirm() error {
	if !g.interactive {
		return customerrors.ErrNonInteractiveRefusal
	}

	fmt.Fprintf(g.out, "Type %q to confirm deletion: ", ConfirmToken)

	line, err := bufio.NewReader(g.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}

	// Only the line terminator is stripped. " DELETE" and "delete" abort.
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line != ConfirmToken {
		return customerrors.ErrOperatorAbort
	}
	return nil
}
