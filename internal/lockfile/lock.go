// Package lockfile coordinates single-daemon ownership of a metadata store
// directory. The daemon holds an exclusive flock on <dir>/daemon.lock for its
// whole lifetime; clients probe the same lock without blocking to learn
// whether a daemon is alive. A daemon.pid file is kept alongside as a
// fallback for filesystems without advisory locking.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLockBusy is returned when the daemon lock is already held by another
// process.
var ErrLockBusy = errors.New("daemon lock held by another process")

const (
	lockFileName = "daemon.lock"
	pidFileName  = "daemon.pid"
)

// LockInfo describes the process holding the daemon lock. It is stored as
// JSON inside daemon.lock so probes can report who owns the store.
type LockInfo struct {
	PID        int       `json:"pid"`
	ParentPID  int       `json:"parent_pid,omitempty"`
	Database   string    `json:"database,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	SocketPath string    `json:"socket_path,omitempty"`
	Version    string    `json:"version,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// DaemonLock is a held daemon lock. Release it when the daemon exits.
type DaemonLock struct {
	file *os.File
	dir  string
}

// Acquire takes the exclusive daemon lock for dir without blocking and
// records info in the lock file. It returns ErrLockBusy when another live
// process already holds the lock.
func Acquire(dir string, info *LockInfo) (*DaemonLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	lockPath := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := FlockExclusiveNonBlocking(f); err != nil {
		f.Close()
		if errors.Is(err, errDaemonLocked) {
			if held, pid := TryDaemonLock(dir); held && pid > 0 {
				return nil, fmt.Errorf("%w (pid %d)", ErrLockBusy, pid)
			}
			return nil, ErrLockBusy
		}
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}

	if info == nil {
		info = &LockInfo{}
	}
	if info.PID == 0 {
		info.PID = os.Getpid()
	}
	if info.ParentPID == 0 {
		info.ParentPID = os.Getppid()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}

	data, err := json.Marshal(info)
	if err != nil {
		FlockUnlock(f)
		f.Close()
		return nil, fmt.Errorf("marshal lock info: %w", err)
	}
	if err := f.Truncate(0); err == nil {
		if _, err := f.WriteAt(data, 0); err != nil {
			FlockUnlock(f)
			f.Close()
			return nil, fmt.Errorf("write lock info: %w", err)
		}
		f.Sync()
	}

	// Best effort: the pid file is only a fallback for probes on
	// filesystems where flock does not work.
	pidPath := filepath.Join(dir, pidFileName)
	_ = os.WriteFile(pidPath, []byte(strconv.Itoa(info.PID)), 0o644)

	return &DaemonLock{file: f, dir: dir}, nil
}

// Release drops the lock and removes the lock artifacts.
func (l *DaemonLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := FlockUnlock(l.file)
	closeErr := l.file.Close()
	l.file = nil
	_ = os.Remove(filepath.Join(l.dir, lockFileName))
	_ = os.Remove(filepath.Join(l.dir, pidFileName))
	if err != nil {
		return err
	}
	return closeErr
}

// ReadLockInfo reads the lock file in dir. It understands both the JSON
// format and the old plain-PID format.
func ReadLockInfo(dir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err == nil {
		return &info, nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("unrecognized lock file format")
	}
	return &LockInfo{PID: pid}, nil
}

// TryDaemonLock probes whether a daemon currently holds the lock for dir.
// It returns (true, pid) when the lock is held by a live process, and
// (false, 0) otherwise. The probe never blocks and never keeps the lock.
func TryDaemonLock(dir string) (bool, int) {
	lockPath := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return checkPIDFile(dir)
		}
		return false, 0
	}
	defer f.Close()

	if err := FlockExclusiveNonBlocking(f); err != nil {
		// Lock held: a daemon is alive. Identify it if we can.
		if info, rerr := ReadLockInfo(dir); rerr == nil && info.PID > 0 {
			return true, info.PID
		}
		if _, pid := checkPIDFile(dir); pid > 0 {
			return true, pid
		}
		return true, 0
	}
	// We got the lock, so nothing holds it. Let it go again.
	_ = FlockUnlock(f)
	return false, 0
}

// checkPIDFile is the fallback probe for filesystems without flock support.
// It reports whether daemon.pid names a live process.
func checkPIDFile(dir string) (bool, int) {
	data, err := os.ReadFile(filepath.Join(dir, pidFileName))
	if err != nil {
		return false, 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false, 0
	}
	if !isProcessRunning(pid) {
		return false, 0
	}
	return true, pid
}
