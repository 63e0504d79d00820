// Package tty provides the raw-mode terminal used by the --step console.
//
// Grounded on the teacher's console (smoynes/elsie cmd/internal/tty/tty.go
// and internal/tty/tty.go), which split MakeRaw/termios plumbing across
// tty_darwin.go/tty_linux.go build tags. Both of the teacher's variants
// call the same golang.org/x/term.MakeRaw/Restore pair underneath; this
// module uses that single portable call for raw mode, and keeps
// golang.org/x/sys/unix only for the VMIN/VTIME termios tweak that lets
// single-keystroke reads return without waiting for a newline. The termios
// ioctl request constants for that tweak still come from the build-tagged
// tty_darwin.go/tty_linux.go files.
package tty

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrNoTTY is returned if standard input is not a terminal, in which case
// the interactive --step console is unavailable.
var ErrNoTTY = errors.New("tty: not a terminal")

// Console is a raw-mode terminal for the single-step debug loop: it reads
// one keystroke at a time to advance the VM and writes hart state back to
// the same terminal.
type Console struct {
	in    *os.File
	out   io.Writer
	fd    int
	state *term.State
	r     *bufio.Reader
}

// NewConsole puts sin into raw mode and returns a Console that reads
// keystrokes from it and writes to sout. Callers must call Restore before
// exiting.
func NewConsole(sin, sout *os.File) (*Console, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	c := &Console{
		in:    sin,
		out:   sout,
		fd:    fd,
		state: saved,
		r:     bufio.NewReader(sin),
	}

	if err := c.setTerminalParams(1, 0); err != nil {
		_ = term.Restore(fd, saved)
		return nil, err
	}

	return c, nil
}

func (c *Console) setTerminalParams(vmin, vtime byte) error {
	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	return unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO)
}

// ReadKey blocks for a single keystroke and returns it.
func (c *Console) ReadKey() (byte, error) {
	_ = syscall.SetNonblock(c.fd, false)
	return c.r.ReadByte()
}

// Writer returns the stream hart state and prompts are written to.
func (c *Console) Writer() io.Writer {
	return c.out
}

// Printf writes a formatted line to the console, translating bare "\n" to
// "\r\n" the way a raw terminal requires.
func (c *Console) Printf(format string, args ...any) {
	WriteTranslated(c.out, format, args...)
}

// WriteTranslated formats like fmt.Fprintf but rewrites bare "\n" to "\r\n"
// first, since a raw-mode terminal won't return the cursor to column 0 on
// its own.
func WriteTranslated(w io.Writer, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	line = strings.ReplaceAll(line, "\n", "\r\n")
	fmt.Fprint(w, line)
}

// Restore returns the terminal to its original mode.
func (c *Console) Restore() {
	_ = term.Restore(c.fd, c.state)
}
