//go:build linux

package process

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// FindClaude lists the Claude processes of the current user from /proc.
func FindClaude() ([]Claude, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	uid := os.Getuid()
	self := os.Getpid()
	var out []Claude
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 || pid == self || !e.IsDir() {
			continue
		}
		if owner, err := procUID(pid); err != nil || owner != uid {
			continue
		}
		comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
		if err != nil {
			continue
		}
		cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
		if err != nil {
			continue
		}
		args := splitNul(cmdline)
		if !isClaude(strings.TrimSpace(string(comm)), args) {
			continue
		}

		c := Claude{PID: pid, Args: args}
		if environ, err := os.ReadFile(fmt.Sprintf("/proc/%d/environ", pid)); err == nil {
			c.Env = parseEnviron(environ)
		}
		c.CWD, _ = os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// procUID reads the real UID from /proc/[pid]/status.
func procUID(pid int) (int, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return -1, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "Uid:" {
			return strconv.Atoi(fields[1])
		}
	}
	return -1, fmt.Errorf("Uid not found in /proc/%d/status", pid)
}
