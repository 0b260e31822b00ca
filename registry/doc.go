// Package registry implements the object ID registry shared by every OSAL
// resource type.
//
// Each object type owns a fixed-size table of records. A record holds the
// object's name, the task that created it, a reference count and the ID that
// currently occupies the slot. IDs come from the objid package and carry a
// per-slot serial, so a stale ID never resolves to a recycled slot.
//
// # Slot Lifecycle
//
//	Undefined -> Reserved -> <own id> -> Reserved -> Undefined
//	  (free)    (creating)   (usable)    (deleting)   (free)
//
// Only an exclusive transaction moves a slot into or out of Reserved.
//
// # Transactions
//
// Every operation on a slot is a Token obtained from Begin, AllocateNew or
// one of the Get functions, and resolved exactly once:
//
//	tok, err := reg.GetByID(ctx, registry.LockGlobal, objid.TypeMutex, id)
//	if err != nil {
//	    return err
//	}
//	defer tok.Release()
//
// Lock modes:
//
//	LockNone      - validate the ID only
//	LockGlobal    - hold a reference for one call
//	LockRefcount  - hold a long-lived reference
//	LockExclusive - require no references, reserve the slot
//	LockReserved  - re-enter a reserved slot, table lock kept until finish
//
// An exclusive request on a referenced object waits for the table to change
// with a growing backoff and fails with object_in_use after the configured
// number of attempts.
//
// # Creating and Deleting
//
//	tok, err := reg.AllocateNew(ctx, objid.TypeQueue, "rx")
//	if err != nil {
//	    return err
//	}
//	id, err := reg.FinalizeNew(tok, platformCreate())
//
//	tok, err = reg.GetByID(ctx, registry.LockExclusive, objid.TypeQueue, id)
//	if err != nil {
//	    return err
//	}
//	err = reg.FinalizeDelete(tok, platformDelete())
//
// A failed create frees the slot and its name. A failed delete leaves the
// object usable under its old ID.
//
// # Iteration
//
// ForEach, ForEachOfType, Iterator and Objects hold the table lock only while
// choosing the next object, so callbacks and loop bodies may call back into
// the registry, including to delete the current object:
//
//	for id := range reg.Objects(ctx, objid.TypeTask, objid.Undefined) {
//	    _ = deleteTask(ctx, id)
//	}
//
// # Locking Rules
//
// Table locks are per type and never nested. Platform lock failures are
// logged and otherwise ignored. Observers run with no table lock held.
package registry
