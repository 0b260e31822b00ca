package registry

import (
	"context"

	"github.com/wippyai/osal/objid"
)

// LockMode selects how a transaction treats the slot it resolves to.
type LockMode uint8

const (
	// LockNone validates the ID without taking a reference.
	LockNone LockMode = iota
	// LockGlobal validates and takes a reference for the duration of one call.
	LockGlobal
	// LockRefcount validates and takes a long-lived reference.
	LockRefcount
	// LockExclusive validates, requires no references and reserves the slot.
	LockExclusive
	// LockReserved re-enters a slot already reserved for the same ID and keeps the table locked.
	LockReserved
)

var lockModeNames = [...]string{
	LockNone:      "none",
	LockGlobal:    "global",
	LockRefcount:  "refcount",
	LockExclusive: "exclusive",
	LockReserved:  "reserved",
}

func (m LockMode) String() string {
	if int(m) < len(lockModeNames) {
		return lockModeNames[m]
	}
	return "unknown"
}

// State is the registry-wide lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

// Record is a point-in-time copy of a slot's common fields.
type Record struct {
	Name     string
	Creator  objid.ID
	Refcount uint32
	// ActiveID is the slot's ID, objid.Reserved mid-transaction or objid.Undefined when free.
	ActiveID objid.ID
}

// Slot describes one table entry, free or not.
type Slot struct {
	Record
	Index  int
	Serial uint32
}

// TypeStats summarizes one table.
type TypeStats struct {
	Type     objid.Type
	Capacity int
	Active   int
	Reserved int
	Refs     uint32
}

// MatchFunc selects records during a search. It is called with the table
// locked and must not call back into the registry for the same type.
type MatchFunc func(index int, rec Record) bool

// Event types for registry lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDeleted
	EventCreateFailed
	EventContention
	EventTableFull
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventDeleted:
		return "deleted"
	case EventCreateFailed:
		return "create_failed"
	case EventContention:
		return "contention"
	case EventTableFull:
		return "table_full"
	}
	return "unknown"
}

// Event represents a registry lifecycle event.
type Event struct {
	Name    string
	ID      objid.ID
	ObjType objid.Type
	Type    EventType
}

// Observer receives notifications about registry events.
// Observers are called without any table lock held.
type Observer interface {
	OnRegistryEvent(Event)
}

type taskKey struct{}

// WithTask returns a context whose operations are attributed to task id.
func WithTask(ctx context.Context, id objid.ID) context.Context {
	return context.WithValue(ctx, taskKey{}, id)
}

// TaskFromContext returns the task recorded by WithTask, or objid.Undefined.
func TaskFromContext(ctx context.Context) objid.ID {
	if ctx == nil {
		return objid.Undefined
	}
	id, _ := ctx.Value(taskKey{}).(objid.ID)
	return id
}
