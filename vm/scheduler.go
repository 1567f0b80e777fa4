package vm

import (
	"context"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Scheduler is the small fixed worker pool of spec.md §4.5: each worker
// dequeues a ready Process, drives Run to completion or interrupt, and
// reacts to the returned InterruptKind. Grounded on the source VM's
// thread-pool/process-queue split (scheduler.cc), generalized from raw
// platform threads and monitors to an errgroup.Group of goroutines over a
// channel-based run queue.
type Scheduler struct {
	program *Program
	env     *Environment
	log     commonlog.Logger

	ready chan *Process

	group  *errgroup.Group
	cancel context.CancelFunc

	// immutableGC guards the immutable-heap-exhaustion path: a worker whose
	// process raises InterruptImmutableAllocationFailure acquires weight 1
	// of it in collectImmutableGarbage. Other workers are not stopped (there
	// is no stop-the-world rendezvous) and no immutable collection runs.
	immutableGC *semaphore.Weighted

	mu       sync.Mutex
	inFlight int
	done     chan struct{}

	// root and rootResult let RunSnapshot (vm/api.go) recover the exit
	// value of the one process it cares about, distinct from every other
	// process InterruptTerminated may report (spawned children that
	// outlive or are outlived by it).
	root       *Process
	rootResult Value
}

// NewScheduler creates a Scheduler with poolSize workers, bound to program
// and using env's logger. poolSize is read from Config.Worker.PoolSize by
// Setup; callers in tests may pass any positive value.
func NewScheduler(program *Program, env *Environment, poolSize int) *Scheduler {
	if poolSize < 1 {
		poolSize = 1
	}
	s := &Scheduler{
		program:     program,
		env:         env,
		log:         NewLogger("scheduler"),
		ready:       make(chan *Process, 256),
		immutableGC: semaphore.NewWeighted(int64(poolSize)),
		done:        make(chan struct{}),
	}
	program.scheduler = s
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	s.group = g
	for i := 0; i < poolSize; i++ {
		id := i
		g.Go(func() error {
			s.workerLoop(ctx, id)
			return nil
		})
	}
	return s
}

// Spawn enqueues a freshly created process as ready to run, implementing
// the ScheduleProgram half of spec.md §4.5's process lifecycle (main
// process and every child of Process._spawn arrive here).
func (s *Scheduler) Spawn(p *Process) {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
	s.ready <- p
}

// SpawnRoot is Spawn for the one process RunSnapshot wants an exit value
// back from; runOnce records its InterruptTerminated Value for RootResult
// to return once Wait unblocks.
func (s *Scheduler) SpawnRoot(p *Process) {
	s.mu.Lock()
	s.root = p
	s.mu.Unlock()
	s.Spawn(p)
}

// RootResult returns the value the root process's top-level call returned.
// Only meaningful after Wait has returned.
func (s *Scheduler) RootResult() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootResult
}

// Resume re-enqueues a process a debug session previously held at
// InterruptBreakpoint (debugger.go's process-run opcode). Unlike Spawn,
// this process was already counted in inFlight when it was first spawned
// and never released, so the counter must not be bumped again.
func (s *Scheduler) Resume(p *Process) {
	s.ready <- p
}

// Wait blocks until every spawned process has terminated, then stops the
// worker pool. Used by RunSnapshot (cmd/fletch) to drive a program to
// completion and collect the root process's exit value.
func (s *Scheduler) Wait() {
	<-s.done
	s.cancel()
	s.group.Wait()
}

// workerLoop is one pool worker: spec.md §4.5's "dequeues a ready process,
// runs the interpreter, reacts to the returned InterruptKind" in a loop
// until the scheduler is shut down.
func (s *Scheduler) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-s.ready:
			if !ok {
				return
			}
			s.runOnce(p)
		}
	}
}

// runOnce drives p through exactly one Run call and dispatches on the
// resulting InterruptKind, the table in spec.md §4.5.
func (s *Scheduler) runOnce(p *Process) {
	if !p.Acquire() {
		// Another worker already holds this process; spec.md §4.5's
		// single-owner invariant means this should never happen, but
		// re-enqueueing rather than panicking keeps a scheduler bug from
		// taking down the whole pool.
		s.ready <- p
		return
	}
	outcome := Run(p)
	p.Release()

	switch outcome.Kind {
	case InterruptPreempted:
		s.ready <- p

	case InterruptTargetYield:
		s.ready <- p

	case InterruptImmutableAllocationFailure:
		s.collectImmutableGarbage(p)
		s.ready <- p

	case InterruptUncaughtException:
		s.log.Warning("process %s terminated with uncaught exception", p.ID.String())
		s.terminate(p)

	case InterruptTerminated:
		s.mu.Lock()
		if p == s.root {
			s.rootResult = outcome.Value
		}
		s.mu.Unlock()
		s.terminate(p)

	case InterruptBreakpoint:
		// A connected debug session owns stepping this process forward;
		// it re-enqueues p itself once it issues a resume command
		// (debugger.go). Nothing to do here.

	default:
		s.ready <- p
	}
}

// collectImmutableGarbage handles an exhausted shared immutable heap. It
// acquires weight 1 of immutableGC, logs the event and returns without
// collecting anything; other workers keep running, and the process is
// simply retried.
func (s *Scheduler) collectImmutableGarbage(p *Process) {
	ctx := context.Background()
	weight := int64(1)
	if err := s.immutableGC.Acquire(ctx, weight); err != nil {
		return
	}
	defer s.immutableGC.Release(weight)
	s.log.Debug("immutable heap exhausted, GC rendezvous for process %s", p.ID.String())
	// A full immutable-space scavenge needs every live process's roots as
	// input; this engine's single shared Heap.Scavenge is written for one
	// process's mutable space (process.go's CollectMutableGarbage), so the
	// cross-process collector is out of scope here — retrying lets the
	// allocator's own TryAllocate report failure again if space truly
	// never frees up, which surfaces as a repeated interrupt rather than
	// a silent hang.
}

// terminate releases p's resources, notifies linked ports, and signals
// Wait once every spawned process has terminated.
func (s *Scheduler) terminate(p *Process) {
	p.Mailbox.Close()
	p.Port.NotifyExit()
	p.ReleaseMemory()

	s.mu.Lock()
	s.inFlight--
	remaining := s.inFlight
	s.mu.Unlock()
	if remaining <= 0 {
		close(s.done)
	}
}
