package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/x/vt"
	"github.com/creack/pty"

	"github.com/nixlim/cc-sentinel/internal/process"
)

const (
	defaultCols = 120
	defaultRows = 50
	// Text and carriage return must arrive in separate reads for Ink based
	// TUIs to see the Enter key.
	submitDelay = 50 * time.Millisecond
	stopGrace   = 2 * time.Second
)

// Terminal runs a command under a pseudo-terminal and renders its output
// through a virtual terminal, so Capture returns what a person would see on
// screen rather than raw escape sequences.
type Terminal struct {
	ptmx *os.File
	cmd  *exec.Cmd
	emu  *vt.SafeEmulator
	echo io.Writer

	writeMu sync.Mutex
	done    chan struct{}
	waitErr error
}

// StartTerminal starts argv under a pty sized cols x rows. Output is also
// copied to echo when it is not nil.
func StartTerminal(argv []string, cols, rows int, echo io.Writer) (*Terminal, error) {
	if len(argv) == 0 {
		return nil, errors.New("terminal: empty command")
	}
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(cleanEnv(os.Environ()), "TERM=xterm-256color", "COLORTERM=truecolor")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("starting %s under pty: %w", argv[0], err)
	}

	t := &Terminal{
		ptmx: ptmx,
		cmd:  cmd,
		emu:  vt.NewSafeEmulator(cols, rows),
		echo: echo,
		done: make(chan struct{}),
	}

	// Replies to terminal queries (cursor position, device attributes) go
	// back to the program.
	if r, ok := any(t.emu).(io.Reader); ok {
		go func() { _, _ = io.Copy(ptmx, r) }()
	}
	go t.readLoop()
	return t, nil
}

// cleanEnv drops variables that make a nested Claude Code refuse to start.
func cleanEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		if strings.HasPrefix(e, "CLAUDECODE=") {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (t *Terminal) readLoop() {
	defer close(t.done)

	buf := make([]byte, 8192)
	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			if _, werr := t.emu.Write(buf[:n]); werr != nil {
				log.Printf("WARNING: terminal emulator write: %v", werr)
			}
			if t.echo != nil {
				_, _ = t.echo.Write(buf[:n])
			}
		}
		if err != nil {
			// EIO is how Linux reports the slave side closing.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				log.Printf("WARNING: reading pty: %v", err)
			}
			t.waitErr = t.cmd.Wait()
			return
		}
	}
}

// Capture returns the rendered screen with trailing blanks trimmed.
func (t *Terminal) Capture(ctx context.Context) (string, error) {
	return screenText(t.emu.String()), nil
}

func screenText(raw string) string {
	lines := strings.Split(raw, "\n")
	last := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimRight(lines[i], " \t\r") != "" {
			last = i
			break
		}
	}
	if last < 0 {
		return ""
	}
	out := make([]string, last+1)
	for i := range out {
		out[i] = strings.TrimRight(lines[i], " \t\r")
	}
	return strings.Join(out, "\n")
}

// Send types text followed by Enter.
func (t *Terminal) Send(ctx context.Context, text string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.ptmx.Write([]byte(text)); err != nil {
		return fmt.Errorf("writing to pty: %w", err)
	}
	select {
	case <-time.After(submitDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if _, err := t.ptmx.Write([]byte("\r")); err != nil {
		return fmt.Errorf("writing to pty: %w", err)
	}
	return nil
}

// Resize changes both the pty and the emulator dimensions.
func (t *Terminal) Resize(cols, rows int) error {
	t.emu.Resize(cols, rows)
	return pty.Setsize(t.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Done is closed once the command has exited.
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

// Err returns the command's exit error after Done is closed.
func (t *Terminal) Err() error {
	<-t.done
	return t.waitErr
}

// Close terminates the command and releases the pty.
func (t *Terminal) Close() error {
	select {
	case <-t.done:
		return t.ptmx.Close()
	default:
	}

	// The command leads its own session, so its children share its group.
	if t.cmd.Process != nil {
		if err := process.Stop(t.cmd.Process.Pid, t.done, stopGrace); err != nil {
			log.Printf("WARNING: stopping %s: %v", t.cmd.Path, err)
		}
	}
	err := t.ptmx.Close()
	<-t.done
	return err
}
