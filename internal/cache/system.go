package cache

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rtbo/dopamine/internal/diag"
)

// pkgConfigTimeout bounds a single pkg-config invocation.
const pkgConfigTimeout = 5 * time.Second

// SystemSource discovers packages installed on the host via pkg-config. A
// single process-spawn failure (pkg-config not on PATH, permissions, …)
// disables further queries for the remainder of the process's lifetime,
// after logging one warning — repeating the same failure on every lookup
// would just be noise.
type SystemSource struct {
	log *diag.Logger

	mu       sync.Mutex
	disabled bool
}

// NewSystemSource returns a SystemSource that logs its one-time
// disablement warning, if any, through log.
func NewSystemSource(log *diag.Logger) *SystemSource {
	return &SystemSource{log: log}
}

// ModVersion runs "pkg-config --modversion name" and returns its trimmed
// stdout, or "" if pkg-config exits non-zero (package not found). A
// canceled ctx aborts the wait and kills the subprocess.
func (s *SystemSource) ModVersion(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	disabled := s.disabled
	s.mu.Unlock()
	if disabled {
		return "", nil
	}

	cctx, cancel := context.WithTimeout(ctx, pkgConfigTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "pkg-config", "--modversion", name)
	out, err := cmd.Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// Non-zero exit: pkg-config ran fine, it just doesn't know the
			// package. Not a disablement condition.
			return "", nil
		}
		s.mu.Lock()
		alreadyDisabled := s.disabled
		s.disabled = true
		s.mu.Unlock()
		if !alreadyDisabled && s.log != nil {
			s.log.Warnf("pkg-config could not be run (%s); disabling system package discovery", err)
		}
		return "", nil
	}
	return strings.TrimSpace(string(out)), nil
}
