package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/mutsem"
	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
	"github.com/wippyai/osal/task"
)

const sharedLockName = "shared"

// workload churns mutexes from a set of tasks. Each worker creates its own
// mutex, takes it, tries to delete a peer's, contends on a shared mutex and
// tears its own down again.
type workload struct {
	reg    *registry.Registry
	tasks  *task.Manager
	locks  *mutsem.Manager
	logger *zap.Logger

	// timeout for a single Take on the shared mutex
	takeTimeout time.Duration

	ops      atomic.Uint64
	statuses sync.Map // int32 -> *atomic.Uint64
}

func newWorkload(reg *registry.Registry, logger *zap.Logger) (*workload, error) {
	tasks, err := task.NewManager(reg, task.WithLogger(logger.Named("task")))
	if err != nil {
		return nil, err
	}
	return &workload{
		reg:         reg,
		tasks:       tasks,
		locks:       mutsem.NewManager(reg, logger.Named("mutex")),
		logger:      logger,
		takeTimeout: 50 * time.Millisecond,
	}, nil
}

func (w *workload) record(err error) {
	w.ops.Inc()
	code := errors.Status(err)
	v, _ := w.statuses.LoadOrStore(code, atomic.NewUint64(0))
	v.(*atomic.Uint64).Inc()
}

type statusCount struct {
	Status int32
	Count  uint64
}

// histogram returns the recorded statuses, success first.
func (w *workload) histogram() []statusCount {
	var out []statusCount
	w.statuses.Range(func(k, v any) bool {
		out = append(out, statusCount{Status: k.(int32), Count: v.(*atomic.Uint64).Load()})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Status > out[j].Status })
	return out
}

// run starts workers tasks, each performing ops steps (forever when ops is 0),
// and waits for them or for ctx.
func (w *workload) run(ctx context.Context, workers, ops int) error {
	if capacity := w.reg.Capacity(objid.TypeTask); capacity < workers {
		return fmt.Errorf("%d workers do not fit in %d task slots", workers, capacity)
	}

	shared, err := w.locks.Create(ctx, sharedLockName)
	if err != nil {
		return fmt.Errorf("create shared mutex: %w", err)
	}

	var wg sync.WaitGroup
	for n := 0; n < workers; n++ {
		wg.Add(1)
		_, err := w.tasks.Create(ctx, fmt.Sprintf("worker-%d", n), func(tctx context.Context) {
			defer wg.Done()
			for i := 0; ops == 0 || i < ops; i++ {
				if tctx.Err() != nil {
					return
				}
				w.step(tctx, n, i, workers, shared)
			}
		})
		if err != nil {
			wg.Done()
			w.record(err)
			w.logger.Warn("worker not started", zap.Int("worker", n), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func lockName(worker, i int) string {
	return fmt.Sprintf("w%d.%d", worker, i%2)
}

func (w *workload) step(ctx context.Context, n, i, workers int, shared objid.ID) {
	// cleanup must survive the task being cancelled
	keep := context.WithoutCancel(ctx)

	own, err := w.locks.Create(ctx, lockName(n, i))
	w.record(err)
	if err != nil {
		return
	}

	defer func() {
		err := w.locks.Delete(keep, own)
		if errors.KindOf(err) == errors.KindInvalidID {
			// a peer got there first
			err = nil
		}
		w.record(err)
	}()

	if err := w.locks.Take(ctx, own); err == nil {
		w.record(nil)
		defer func() { w.record(w.locks.Give(keep, own)) }()
	} else {
		w.record(err)
	}

	if peer, err := w.locks.GetIDByName(ctx, lockName((n+1)%workers, i)); err == nil && peer != own {
		w.record(w.locks.Delete(ctx, peer))
	}

	tctx, cancel := context.WithTimeout(ctx, w.takeTimeout)
	err = w.locks.Take(tctx, shared)
	cancel()
	w.record(err)
	if err == nil {
		w.record(w.locks.Give(keep, shared))
	}
}

// delete removes any object the workload may have created.
func (w *workload) delete(ctx context.Context, id objid.ID) error {
	switch id.Type() {
	case objid.TypeTask:
		return w.tasks.Delete(ctx, id)
	case objid.TypeMutex:
		return w.locks.Delete(ctx, id)
	}
	return errors.New(errors.PhaseShutdown, errors.KindIncorrectObjectType).ID(id).Build()
}

// close stops every task and shuts the registry down.
func (w *workload) close(ctx context.Context) error {
	if err := w.tasks.Close(ctx); err != nil {
		w.logger.Debug("close tasks", zap.Error(err))
	}
	return w.reg.Shutdown(ctx, w.delete)
}
