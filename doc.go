// Package osal is the object registry of an operating system abstraction layer.
//
// Every kernel-like object the layer exposes (tasks, queues, semaphores,
// mutexes, timers, loadable modules, ...) is named by a 32-bit object ID
// and lives in a fixed-capacity table for its type. The registry hands out
// IDs, resolves them back to table slots and coordinates concurrent create,
// use and delete through per-type locks and per-object reference counts.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	osal/
//	├── objid/           ID layout: type, slot index and serial packed in 32 bits
//	├── errors/          Structured errors with OSAL status codes
//	├── config/          Table capacities, name limit and lock retry policy (TOML + env)
//	├── platform/        Per-type lock and change notification primitives
//	├── registry/        Tables, transactions (tokens), allocation, lookup, iteration
//	├── metrics/         Prometheus event counters and occupancy collector
//	├── task/            Goroutine-backed tasks on an ants pool
//	├── mutsem/          Mutex semaphores built on registry references
//	├── module/          WebAssembly modules (wazero) as registry objects
//	├── internal/logutil zap logger construction
//	└── cmd/osal/        CLI: demo, stress, top, module
//
// # Quick Start
//
// Create, use and delete an object:
//
//	reg, err := registry.New(config.DefaultRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := reg.Init(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.Teardown()
//
//	tok, err := reg.AllocateNew(ctx, objid.TypeQueue, "rx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// set up the queue's own state at tok.Index, then commit
//	id, err := reg.FinalizeNew(tok, nil)
//
//	use, err := reg.GetByID(ctx, registry.LockGlobal, objid.TypeQueue, id)
//	if err == nil {
//	    // the object cannot be deleted while use is outstanding
//	    use.Release()
//	}
//
//	del, err := reg.GetByID(ctx, registry.LockExclusive, objid.TypeQueue, id)
//	if err == nil {
//	    err = reg.FinalizeDelete(del, nil)
//	}
//
// # ID Reuse
//
// A freed slot is reused with a new serial, so an ID that was deleted keeps
// failing with invalid_id until its slot's serial wraps around. Allocation
// scans round-robin from the last allocated slot, which spreads reuse across
// the table.
//
// # Thread Safety
//
// Registry, task.Manager, mutsem.Manager and module.Loader are safe for
// concurrent use. A registry.Token belongs to the goroutine that obtained it.
package osal
