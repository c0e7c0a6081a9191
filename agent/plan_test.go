package agent

import (
	"sync"
	"testing"
)

// recordBus records every snapshot in emission order.
type recordBus struct {
	mu        sync.Mutex
	snapshots []SharedState
}

func (b *recordBus) Snapshot(sessionID string, state SharedState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, state.Clone())
}

func (b *recordBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.snapshots)
}

func newTestEngine(t *testing.T) (*PlanEngine, *StateStore, *recordBus) {
	t.Helper()
	store := NewStateStore()
	t.Cleanup(store.Close)
	bus := &recordBus{}
	return NewPlanEngine(store, bus), store, bus
}

func TestInitializePlan(t *testing.T) {
	engine, store, bus := newTestEngine(t)

	res := engine.InitializePlan("s1", []string{"research", "draft", "review"})
	if !res.Initialized {
		t.Fatal("expected Initialized=true")
	}

	state := store.Get("s1")
	steps := state.PlanSteps()
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	if steps[0].Status != StepInProgress {
		t.Fatalf("expected step 0 in_progress, got %q", steps[0].Status)
	}
	for i := 1; i < 3; i++ {
		if steps[i].Status != StepPending {
			t.Fatalf("expected step %d pending, got %q", i, steps[i].Status)
		}
	}
	if state.CurrentStepIndex() != 0 {
		t.Fatalf("expected index 0, got %d", state.CurrentStepIndex())
	}
	if state.PlanStatus() != PlanStatusInProgress {
		t.Fatalf("expected plan in_progress, got %q", state.PlanStatus())
	}
	if bus.count() != 1 {
		t.Fatalf("expected 1 snapshot, got %d", bus.count())
	}
}

func TestInitializePlan_Empty(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a", "b"})
	engine.InitializePlan("s1", nil)

	state := store.Get("s1")
	if len(state.PlanSteps()) != 0 {
		t.Fatalf("expected no steps, got %d", len(state.PlanSteps()))
	}
	if state.CurrentStepIndex() != -1 {
		t.Fatalf("expected index -1, got %d", state.CurrentStepIndex())
	}
	if state.PlanStatus() != PlanStatusNone {
		t.Fatalf("expected empty plan status, got %q", state.PlanStatus())
	}
}

func TestInitializePlan_ReplacesExisting(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a", "b"})
	engine.AdvanceStep("s1", 0, StepCompleted, "")
	engine.InitializePlan("s1", []string{"x", "y", "z"})

	state := store.Get("s1")
	steps := state.PlanSteps()
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	if steps[0].Title != "x" || steps[0].Status != StepInProgress {
		t.Fatalf("expected fresh first step, got %+v", steps[0])
	}
	if state.CurrentStepIndex() != 0 {
		t.Fatalf("expected index reset to 0, got %d", state.CurrentStepIndex())
	}
}

func TestAdvanceStep_OutOfBounds(t *testing.T) {
	engine, store, bus := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a", "b"})
	before := store.Get("s1")
	snaps := bus.count()

	for _, idx := range []int{-1, 2, 99} {
		res := engine.AdvanceStep("s1", idx, StepCompleted, "nope")
		if res.Updated {
			t.Fatalf("index %d: expected Updated=false", idx)
		}
	}

	after := store.Get("s1")
	if len(after.PlanSteps()) != len(before.PlanSteps()) {
		t.Fatal("out-of-bounds update changed the steps")
	}
	for i, st := range after.PlanSteps() {
		if st != before.PlanSteps()[i] {
			t.Fatalf("step %d changed: %+v", i, st)
		}
	}
	if bus.count() != snaps {
		t.Fatalf("out-of-bounds update emitted a snapshot")
	}
}

func TestAdvanceStep_MovesIndex(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a", "b", "c"})
	engine.AdvanceStep("s1", 0, StepCompleted, "done early")
	engine.AdvanceStep("s1", 1, StepInProgress, "")

	state := store.Get("s1")
	if state.CurrentStepIndex() != 1 {
		t.Fatalf("expected index 1, got %d", state.CurrentStepIndex())
	}
	if state.PlanStatus() != PlanStatusInProgress {
		t.Fatalf("expected in_progress, got %q", state.PlanStatus())
	}
	steps := state.PlanSteps()
	if steps[0].Note != "done early" {
		t.Fatalf("expected note persisted, got %q", steps[0].Note)
	}

	// Backward movement is allowed.
	engine.AdvanceStep("s1", 0, StepInProgress, "redo")
	if store.Get("s1").CurrentStepIndex() != 0 {
		t.Fatalf("expected index back to 0, got %d", store.Get("s1").CurrentStepIndex())
	}
}

func TestAggregate_FailedTakesPrecedence(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a", "b", "c"})
	engine.AdvanceStep("s1", 1, StepInProgress, "")
	engine.AdvanceStep("s1", 2, StepFailed, "broke")

	state := store.Get("s1")
	if state.PlanStatus() != PlanStatusFailed {
		t.Fatalf("expected failed to win over in_progress, got %q", state.PlanStatus())
	}
}

func TestAggregate_AllCompleted(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a", "b", "c"})
	engine.AdvanceStep("s1", 0, StepCompleted, "")
	engine.AdvanceStep("s1", 1, StepCompleted, "")
	engine.AdvanceStep("s1", 2, StepCompleted, "")

	state := store.Get("s1")
	if state.PlanStatus() != PlanStatusCompleted {
		t.Fatalf("expected completed, got %q", state.PlanStatus())
	}
	if state.CurrentStepIndex() != 2 {
		t.Fatalf("expected index forced to last step, got %d", state.CurrentStepIndex())
	}
}

func TestAggregate_BlockedLeavesStatus(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a", "b"})
	engine.AdvanceStep("s1", 0, StepBlocked, "")
	engine.AdvanceStep("s1", 1, StepBlocked, "")

	// No rule matches (no failed, no in_progress, not all completed),
	// so the prior status stays.
	state := store.Get("s1")
	if state.PlanStatus() != PlanStatusInProgress {
		t.Fatalf("expected prior in_progress preserved, got %q", state.PlanStatus())
	}
}

func TestAdvanceStep_InvalidIndexAfterMutations(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a", "b", "c"})
	engine.AdvanceStep("s1", 0, StepCompleted, "")
	engine.AdvanceStep("s1", 1, StepInProgress, "")

	res := engine.AdvanceStep("s1", 5, StepCompleted, "")
	if res.Updated {
		t.Fatal("expected Updated=false for index 5")
	}

	state := store.Get("s1")
	if state.CurrentStepIndex() != 1 {
		t.Fatalf("expected index still 1, got %d", state.CurrentStepIndex())
	}
	if state.PlanStatus() != PlanStatusInProgress {
		t.Fatalf("expected in_progress, got %q", state.PlanStatus())
	}
}

func TestCompletePlan_ForcesEverything(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a", "b", "c"})
	engine.AdvanceStep("s1", 1, StepInProgress, "")
	engine.AdvanceStep("s1", 2, StepBlocked, "stuck")

	res := engine.CompletePlan("s1")
	if !res.Completed {
		t.Fatal("expected Completed=true")
	}

	state := store.Get("s1")
	for i, st := range state.PlanSteps() {
		if st.Status != StepCompleted {
			t.Fatalf("step %d: expected completed, got %q", i, st.Status)
		}
	}
	if state.PlanStatus() != PlanStatusCompleted {
		t.Fatalf("expected completed, got %q", state.PlanStatus())
	}
	if state.CurrentStepIndex() != 2 {
		t.Fatalf("expected index 2, got %d", state.CurrentStepIndex())
	}
}

func TestCompletePlan_NoPlan(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	engine.CompletePlan("s1")

	state := store.Get("s1")
	if state.CurrentStepIndex() != -1 {
		t.Fatalf("expected index -1, got %d", state.CurrentStepIndex())
	}
	if state.PlanStatus() != PlanStatusCompleted {
		t.Fatalf("expected completed, got %q", state.PlanStatus())
	}
}

func TestPlan_SnapshotPerMutation(t *testing.T) {
	engine, _, bus := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a", "b"})
	engine.AdvanceStep("s1", 0, StepCompleted, "")
	engine.AdvanceStep("s1", 1, StepInProgress, "")
	engine.CompletePlan("s1")

	if bus.count() != 4 {
		t.Fatalf("expected 4 snapshots, got %d", bus.count())
	}

	// Each snapshot is the full state at that point, in mutation order.
	first := bus.snapshots[0]
	if first.PlanSteps()[0].Status != StepInProgress {
		t.Fatalf("snapshot 0: expected step 0 in_progress, got %q", first.PlanSteps()[0].Status)
	}
	last := bus.snapshots[3]
	if last.PlanStatus() != PlanStatusCompleted {
		t.Fatalf("snapshot 3: expected completed, got %q", last.PlanStatus())
	}
}

func TestPlan_SnapshotIsolation(t *testing.T) {
	engine, store, bus := newTestEngine(t)

	engine.InitializePlan("s1", []string{"a"})
	snap := bus.snapshots[0]

	// Mutating the live state must not leak into the recorded snapshot.
	engine.AdvanceStep("s1", 0, StepFailed, "")
	if snap.PlanSteps()[0].Status != StepInProgress {
		t.Fatalf("snapshot aliased live state: %q", snap.PlanSteps()[0].Status)
	}
	if store.Get("s1").PlanStatus() != PlanStatusFailed {
		t.Fatalf("live state missing update")
	}
}
