package registry

import (
	"context"
	stderrors "errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
)

func TestForEachOfType_CreatorFilter(t *testing.T) {
	r := newTestRegistry(t, 8)
	ctx := context.Background()

	owner := mustCreate(t, r, objid.TypeTask, "owner")
	ownerCtx := WithTask(ctx, owner)
	mine := map[objid.ID]bool{
		mustCreateCtx(t, ownerCtx, r, objid.TypeQueue, "a"): true,
		mustCreateCtx(t, ownerCtx, r, objid.TypeQueue, "b"): true,
	}
	mustCreate(t, r, objid.TypeQueue, "c")

	seen := map[objid.ID]bool{}
	n, err := r.ForEachOfType(ctx, objid.TypeQueue, owner, func(id objid.ID) {
		seen[id] = true
	})
	if err != nil {
		t.Fatalf("ForEachOfType failed: %v", err)
	}
	if n != 2 || len(seen) != 2 {
		t.Fatalf("expected 2 callbacks, got %d (%v)", n, seen)
	}
	for id := range seen {
		if !mine[id] {
			t.Fatalf("visited %s not created by owner", id)
		}
	}

	n, err = r.ForEachOfType(ctx, objid.TypeQueue, objid.Undefined, func(objid.ID) {})
	if err != nil || n != 3 {
		t.Fatalf("expected 3 callbacks for any creator, got %d, %v", n, err)
	}
}

func TestForEach_CallbackDeletes(t *testing.T) {
	r := newTestRegistry(t, 4)
	ctx := context.Background()

	for _, typ := range []objid.Type{objid.TypeTask, objid.TypeQueue, objid.TypeModule} {
		mustCreate(t, r, typ, "x")
		mustCreate(t, r, typ, "y")
	}

	n, err := r.ForEach(ctx, objid.Undefined, func(id objid.ID) {
		if err := deleteObject(ctx, r, id); err != nil {
			t.Errorf("delete %s from callback failed: %v", id, err)
		}
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 callbacks, got %d", n)
	}
	for _, typ := range objid.Types() {
		if s := r.Stats(typ); s.Active != 0 {
			t.Fatalf("%s still has %d objects", typ, s.Active)
		}
	}
}

func TestForEach_SkipsObjectsDeletedMeanwhile(t *testing.T) {
	r := newTestRegistry(t, 4)
	ctx := context.Background()

	a := mustCreate(t, r, objid.TypeDir, "a")
	b := mustCreate(t, r, objid.TypeDir, "b")

	var visited []objid.ID
	n, err := r.ForEachOfType(ctx, objid.TypeDir, objid.Undefined, func(id objid.ID) {
		visited = append(visited, id)
		if id == a {
			mustDelete(t, r, b)
		}
	})
	if err != nil {
		t.Fatalf("ForEachOfType failed: %v", err)
	}
	if n != 1 || len(visited) != 1 || visited[0] != a {
		t.Fatalf("expected only %s to be visited, got %v", a, visited)
	}
}

func TestForEach_Validation(t *testing.T) {
	r := newTestRegistry(t, 2)
	ctx := context.Background()

	if _, err := r.ForEachOfType(ctx, objid.TypeTask, objid.Undefined, nil); !stderrors.Is(err, errors.ErrInvalidPointer) {
		t.Fatalf("expected invalid pointer, got %v", err)
	}
	if _, err := r.ForEachOfType(ctx, objid.TypeUndefined, objid.Undefined, func(objid.ID) {}); !stderrors.Is(err, errors.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}

	mustCreate(t, r, objid.TypeTask, "t")
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := r.ForEachOfType(cancelled, objid.TypeTask, objid.Undefined, func(objid.ID) {}); !stderrors.Is(err, errors.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestIterator(t *testing.T) {
	r := newTestRegistry(t, 5)
	ctx := context.Background()

	want := map[objid.ID]string{}
	for _, name := range []string{"a", "b", "c"} {
		want[mustCreate(t, r, objid.TypeSocket, name)] = name
	}
	pending, err := r.AllocateNew(ctx, objid.TypeSocket, "pending")
	if err != nil {
		t.Fatalf("AllocateNew failed: %v", err)
	}
	defer pending.Cancel()

	it, err := r.NewIterator(ctx, objid.TypeSocket, nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Destroy()

	seen := map[objid.ID]bool{}
	for it.Next() {
		id := it.ID()
		if want[id] != it.Record().Name {
			t.Fatalf("record for %s has name %q", id, it.Record().Name)
		}
		if seen[id] {
			t.Fatalf("%s visited twice", id)
		}
		seen[id] = true

		// deleting the current object is allowed
		mustDelete(t, r, id)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	if len(seen) != len(want) {
		t.Fatalf("visited %d objects, want %d", len(seen), len(want))
	}

	it.Reset()
	if it.Next() {
		t.Fatalf("unexpected object %s after deleting everything", it.ID())
	}

	id := mustCreate(t, r, objid.TypeSocket, "late")
	it.Reset()
	if !it.Next() || it.ID() != id {
		t.Fatalf("Reset did not restart the walk")
	}

	it.Destroy()
	it.Destroy()
	if it.Next() {
		t.Fatal("destroyed iterator still yields")
	}
}

func TestIterator_Match(t *testing.T) {
	r := newTestRegistry(t, 4)
	ctx := context.Background()
	mustCreate(t, r, objid.TypeMutex, "keep")
	mustCreate(t, r, objid.TypeMutex, "skip")

	it, err := r.NewIterator(ctx, objid.TypeMutex, func(_ int, rec Record) bool {
		return rec.Name == "keep"
	})
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	defer it.Destroy()

	var names []string
	for it.Next() {
		names = append(names, it.Record().Name)
	}
	if len(names) != 1 || names[0] != "keep" {
		t.Fatalf("unexpected matches %v", names)
	}

	if _, err := r.NewIterator(ctx, objid.NumTypes, nil); !stderrors.Is(err, errors.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestIterator_Cancelled(t *testing.T) {
	r := newTestRegistry(t, 2)
	mustCreate(t, r, objid.TypeTask, "t")

	ctx, cancel := context.WithCancel(context.Background())
	it, err := r.NewIterator(ctx, objid.TypeTask, nil)
	if err != nil {
		t.Fatalf("NewIterator failed: %v", err)
	}
	cancel()
	if it.Next() {
		t.Fatal("cancelled iterator yielded")
	}
	if !stderrors.Is(it.Err(), errors.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", it.Err())
	}
}

func TestObjects(t *testing.T) {
	r := newTestRegistry(t, 6)
	ctx := context.Background()

	owner := mustCreate(t, r, objid.TypeTask, "owner")
	for _, name := range []string{"a", "b", "c", "d"} {
		mustCreateCtx(t, WithTask(ctx, owner), r, objid.TypeTimeCB, name)
	}
	mustCreate(t, r, objid.TypeTimeCB, "other")

	seq := r.Objects(ctx, objid.TypeTimeCB, owner)

	var all []objid.ID
	for id := range seq {
		all = append(all, id)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 timers for owner, got %d", len(all))
	}

	// restartable, and stops early on break
	var first []objid.ID
	for id := range seq {
		first = append(first, id)
		if len(first) == 2 {
			break
		}
	}
	if len(first) != 2 || first[0] != all[0] || first[1] != all[1] {
		t.Fatalf("second pass diverged: %v vs %v", first, all)
	}

	// the table lock is free after an early break
	if s := r.Stats(objid.TypeTimeCB); s.Active != 5 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestObjects_NotRunning(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r, err := New(testConfig(2), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for id := range r.Objects(context.Background(), objid.TypeQueue, objid.Undefined) {
		t.Fatalf("uninitialized registry yielded %s", id)
	}
	if n := logs.FilterMessage("objects not iterated").Len(); n != 1 {
		t.Fatalf("expected the refusal to be logged once, got %d", n)
	}
}
