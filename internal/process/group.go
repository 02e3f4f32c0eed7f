// Package process signals the process groups of the commands cc-sentinel
// starts, so children spawned by those commands go down with them.
package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ErrGone is returned when the target process no longer exists.
var ErrGone = errors.New("no such process")

// Signal sends sig to the process group led by pid, falling back to pid
// alone when it does not lead a group.
func Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}

	groupErr := syscall.Kill(-pid, sig)
	if groupErr == nil {
		return nil
	}
	if !errors.Is(groupErr, syscall.ESRCH) && !errors.Is(groupErr, syscall.EPERM) {
		return fmt.Errorf("signalling process group %d: %w", pid, groupErr)
	}

	err := syscall.Kill(pid, sig)
	switch {
	case err == nil:
		return nil
	case isGone(err):
		return ErrGone
	default:
		return fmt.Errorf("signalling PID %d: %w", pid, err)
	}
}

// Alive reports whether pid exists. A process owned by another user
// counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Stop sends SIGTERM to the group of pid and SIGKILL if done is not closed
// within grace.
func Stop(pid int, done <-chan struct{}, grace time.Duration) error {
	if err := Signal(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, ErrGone) {
			return nil
		}
		return err
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
	}
	if err := Signal(pid, syscall.SIGKILL); err != nil && !errors.Is(err, ErrGone) {
		return err
	}
	return nil
}

// Isolate starts cmd in its own process group and makes context
// cancellation kill the whole group.
func Isolate(cmd *exec.Cmd, waitDelay time.Duration) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.Cancel = func() error {
		err := Signal(cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, ErrGone) {
			return nil
		}
		return err
	}
	cmd.WaitDelay = waitDelay
}

// isGone covers ESRCH and the string error os.Process returns once the
// process has been reaped.
func isGone(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESRCH
	}
	return strings.Contains(err.Error(), "process already finished") ||
		strings.Contains(err.Error(), "no such process")
}
