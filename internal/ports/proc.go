package ports

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// findOccupyingPID returns the PID of the process listening on port.
// It reads the kernel connection table first and falls back to lsof,
// which also covers platforms without procfs.
func findOccupyingPID(port int) (int, error) {
	if pid, err := pidFromProcNet(port); err == nil && pid > 0 {
		return pid, nil
	}
	return pidFromLsof(port)
}

// pidFromProcNet resolves the socket inode listening on port from
// /proc/net/tcp{,6}, then scans process fd tables for that inode.
func pidFromProcNet(port int) (int, error) {
	var inode string
	for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		data, err := os.ReadFile(table)
		if err != nil {
			continue
		}
		if ino, ok := listeningInode(string(data), port); ok {
			inode = ino
			break
		}
	}
	if inode == "" {
		return 0, fmt.Errorf("no listener found on port %d in /proc/net", port)
	}

	target := fmt.Sprintf("socket:[%s]", inode)
	procEntries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}
	for _, entry := range procEntries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		fdDir := filepath.Join("/proc", entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue // process of another user, or already gone
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err == nil && link == target {
				return pid, nil
			}
		}
	}
	return 0, fmt.Errorf("no process owns the listener on port %d", port)
}

const tcpStateListen = "0A"

// listeningInode finds the inode of the LISTEN socket bound to port in
// a /proc/net/tcp table dump.
func listeningInode(table string, port int) (string, bool) {
	lines := strings.Split(table, "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 10 {
			continue
		}
		local := fields[1] // address:port in hex
		state := fields[3]
		if state != tcpStateListen {
			continue
		}
		parts := strings.Split(local, ":")
		if len(parts) != 2 {
			continue
		}
		p, err := strconv.ParseInt(parts[1], 16, 32)
		if err != nil || int(p) != port {
			continue
		}
		return fields[9], true
	}
	return "", false
}

func pidFromLsof(port int) (int, error) {
	out, err := exec.Command("lsof", "-ti", fmt.Sprintf(":%d", port)).Output()
	if err != nil {
		return 0, fmt.Errorf("lsof lookup for port %d: %w", port, err)
	}
	first := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	pid, err := strconv.Atoi(first)
	if err != nil {
		return 0, fmt.Errorf("parsing lsof output %q: %w", first, err)
	}
	return pid, nil
}

// terminateProcess sends SIGTERM, waits up to grace for the process to
// exit, then escalates to SIGKILL.
func terminateProcess(pid int, grace time.Duration) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to PID %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		// Signal 0 only checks existence.
		if err := syscall.Kill(pid, 0); err != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		if err == syscall.ESRCH {
			return nil
		}
		return fmt.Errorf("sending SIGKILL to PID %d: %w", pid, err)
	}
	return nil
}
