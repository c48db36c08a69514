// Package procscan provides the shared "joined cmdline substring" process
// scan used by both the Process Registry (C5) and the Health Validator
// (C6) to re-identify a tunnel's OS process by its signature. This is a
// Linux-specific heuristic (reads /proc/<pid>/cmdline); callers must not
// rely on signatures being globally unique (see design notes).
package procscan

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// First returns the pid of the first process whose joined cmdline matches.
func First(match func(cmdline string) bool) (int, bool) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, false
	}

	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		cmdline, err := Cmdline(pid)
		if err != nil {
			continue
		}
		if match(cmdline) {
			return pid, true
		}
	}
	return 0, false
}

// All returns every pid whose joined cmdline matches.
func All(match func(cmdline string) bool) []int {
	var out []int
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return out
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		cmdline, err := Cmdline(pid)
		if err != nil {
			continue
		}
		if match(cmdline) {
			out = append(out, pid)
		}
	}
	return out
}

// Cmdline reads and joins /proc/<pid>/cmdline's NUL-separated arguments
// with spaces, mirroring psutil's " ".join(proc.cmdline()).
func Cmdline(pid int) (string, error) {
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Split(strings.TrimRight(string(b), "\x00"), "\x00"), " "), nil
}
