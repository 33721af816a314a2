// Package lock guarantees a single freightd per instance directory and
// records where that daemon can be reached.
package lock

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// HeldError is returned when another process holds the instance lock.
type HeldError struct {
	Owner Info
	Path  string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("instance lock held by PID %d (%s)", e.Owner.PID, e.Path)
}

// Info is the content of a lock file.
type Info struct {
	PID      int
	Started  time.Time
	HTTPAddr string
}

// Lock represents an acquired instance lock file.
type Lock struct {
	file *os.File
	path string
	info Info
}

// Acquire takes an exclusive flock on dir/LOCK and writes the owner's PID,
// start time and HTTP address into it. Returns *HeldError if another process
// already holds it.
func Acquire(dir, httpAddr string) (*Lock, error) {
	path := filepath.Join(dir, fileName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create instance dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		owner, _ := Read(dir)
		_ = f.Close()
		held := &HeldError{Path: path}
		if owner != nil {
			held.Owner = *owner
		}
		return nil, held
	}

	info := Info{PID: os.Getpid(), Started: time.Now().UTC(), HTTPAddr: httpAddr}
	if err := write(f, info); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{file: f, path: path, info: info}, nil
}

func write(f *os.File, info Info) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\ntime=%s\nhttp=%s\n",
		info.PID, info.Started.Format(time.RFC3339), info.HTTPAddr)
	return err
}

// Info returns what this lock advertises.
func (l *Lock) Info() Info {
	return l.info
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove lock file before closing to avoid stale files.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// Read parses the lock file in dir without acquiring it. Clients use it to
// find the running daemon.
func Read(dir string) (*Info, error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var info Info
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			info.PID, _ = strconv.Atoi(value)
		case "time":
			info.Started, _ = time.Parse(time.RFC3339, value)
		case "http":
			info.HTTPAddr = value
		}
	}
	return &info, sc.Err()
}
