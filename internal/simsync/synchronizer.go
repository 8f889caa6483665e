// Package simsync runs the external simulator and waits for its result file
// to change, since the simulator process may return before the results are
// written.
package simsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/GoSim-25-26J-441/spice-tuner/pkg/logger"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/utils"
)

// ErrSimulationTimeout is returned when the result artifact does not change
// before the run deadline
var ErrSimulationTimeout = errors.New("simulation timed out")

// Options controls polling and deadlines
type Options struct {
	Poll    utils.PollStrategy
	Settle  time.Duration
	Timeout time.Duration
}

// DefaultOptions polls every 200ms, settles for 100ms and gives up after
// ten minutes
func DefaultOptions() Options {
	return Options{
		Poll:    utils.NewConstantPoll(200 * time.Millisecond),
		Settle:  100 * time.Millisecond,
		Timeout: 10 * time.Minute,
	}
}

// Stats describes one completed simulation
type Stats struct {
	Elapsed time.Duration
	Polls   int
}

// Synchronizer launches the simulator and blocks until its artifact's
// content hash changes. At most one simulation is in flight per
// Synchronizer.
type Synchronizer struct {
	mu       sync.Mutex
	launcher Launcher
	artifact string
	opts     Options
}

// New creates a Synchronizer watching artifact
func New(launcher Launcher, artifact string, opts Options) *Synchronizer {
	defaults := DefaultOptions()
	if opts.Poll == nil {
		opts.Poll = defaults.Poll
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	return &Synchronizer{
		launcher: launcher,
		artifact: artifact,
		opts:     opts,
	}
}

// Artifact returns the watched result path
func (s *Synchronizer) Artifact() string {
	return s.artifact
}

// Run simulates once, comparing against the artifact left by the previous
// run. A missing artifact is created empty first.
func (s *Synchronizer) Run(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, false)
}

// RunFresh truncates the artifact before simulating, so completion is
// detected even when the new results equal the old ones.
func (s *Synchronizer) RunFresh(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, true)
}

func (s *Synchronizer) run(ctx context.Context, fresh bool) (Stats, error) {
	start := time.Now()

	if fresh {
		if err := os.WriteFile(s.artifact, nil, 0o644); err != nil {
			return Stats{}, fmt.Errorf("failed to reset artifact %s: %w", s.artifact, err)
		}
	}
	before, err := hashArtifact(s.artifact)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(s.artifact, nil, 0o644); err != nil {
			return Stats{}, fmt.Errorf("failed to create artifact %s: %w", s.artifact, err)
		}
		before, err = hashArtifact(s.artifact)
	}
	if err != nil {
		return Stats{}, fmt.Errorf("failed to hash artifact %s: %w", s.artifact, err)
	}

	runCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	if err := s.launcher.Launch(runCtx); err != nil {
		if ctxErr := s.contextError(ctx, runCtx, start); ctxErr != nil {
			return Stats{}, ctxErr
		}
		var launchErr *LaunchError
		if errors.As(err, &launchErr) {
			return Stats{}, err
		}
		return Stats{}, &LaunchError{Command: fmt.Sprint(s.launcher), Err: err}
	}

	polls := 0
	for {
		if err := sleep(runCtx, s.opts.Poll.NextDelay(polls)); err != nil {
			return Stats{}, s.contextError(ctx, runCtx, start)
		}
		polls++

		after, err := hashArtifact(s.artifact)
		if err != nil {
			// simulators may hold the file open or recreate it mid-write
			logger.Debug("artifact not readable yet", "artifact", s.artifact, "error", err)
			continue
		}
		if after != before {
			break
		}
	}

	if err := sleep(runCtx, s.opts.Settle); err != nil {
		return Stats{}, s.contextError(ctx, runCtx, start)
	}

	return Stats{Elapsed: time.Since(start), Polls: polls}, nil
}

// contextError distinguishes our own deadline from caller cancellation
func (s *Synchronizer) contextError(parent, runCtx context.Context, start time.Time) error {
	if err := parent.Err(); err != nil {
		return err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s unchanged after %v", ErrSimulationTimeout, s.artifact, time.Since(start).Round(time.Millisecond))
	}
	return runCtx.Err()
}

func hashArtifact(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
