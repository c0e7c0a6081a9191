package agent

// PlanEngine drives the plan sub-state (planSteps / currentStepIndex /
// planStatus) inside a session's SharedState. It does not police per-step
// transitions — the model may set any status on any step — its real job is
// the aggregate derivation after each update. Every successful mutation
// hands a full snapshot to the broadcaster before returning.
type PlanEngine struct {
	store *StateStore
	bus   Broadcaster
}

// NewPlanEngine creates a plan engine over the given store and broadcaster.
func NewPlanEngine(store *StateStore, bus Broadcaster) *PlanEngine {
	return &PlanEngine{store: store, bus: bus}
}

// InitResult is returned by InitializePlan.
type InitResult struct {
	Initialized bool     `json:"initialized"`
	Steps       []string `json:"steps"`
}

// AdvanceResult is returned by AdvanceStep. Updated is false when the index
// was out of bounds and nothing changed.
type AdvanceResult struct {
	Updated bool   `json:"updated"`
	Index   int    `json:"index"`
	Status  string `json:"status"`
	Note    string `json:"note,omitempty"`
}

// CompleteResult is returned by CompletePlan.
type CompleteResult struct {
	Completed bool `json:"completed"`
}

// InitializePlan replaces any existing plan with one pending step per title.
// A non-empty plan starts with step 0 in_progress; an empty title list
// resets to the no-plan state.
func (pe *PlanEngine) InitializePlan(sessionID string, titles []string) InitResult {
	state := pe.store.Get(sessionID)

	steps := make([]PlanStep, len(titles))
	for i, t := range titles {
		steps[i] = PlanStep{Title: t, Status: StepPending}
	}
	if len(steps) > 0 {
		steps[0].Status = StepInProgress
		state[KeyCurrentStepIndex] = 0
		state[KeyPlanStatus] = PlanStatusInProgress
	} else {
		state[KeyCurrentStepIndex] = -1
		state[KeyPlanStatus] = PlanStatusNone
	}
	state.SetPlanSteps(steps)

	pe.commit(sessionID, state)
	return InitResult{Initialized: true, Steps: titles}
}

// AdvanceStep sets one step's status (and optional note) by index, then
// recomputes the aggregate plan status. An out-of-range index leaves the
// state untouched and reports Updated=false — a failure value, not an error.
func (pe *PlanEngine) AdvanceStep(sessionID string, index int, status, note string) AdvanceResult {
	state := pe.store.Get(sessionID)
	steps := state.PlanSteps()

	if index < 0 || index >= len(steps) {
		return AdvanceResult{Updated: false, Index: index, Status: status, Note: note}
	}

	if note != "" {
		steps[index].Note = note
	}
	steps[index].Status = status
	state.SetPlanSteps(steps)

	// in_progress moves the active index, forward or backward — no
	// monotonicity is enforced.
	if status == StepInProgress {
		state[KeyCurrentStepIndex] = index
		state[KeyPlanStatus] = PlanStatusInProgress
	}

	aggregate(state, steps)

	pe.commit(sessionID, state)
	return AdvanceResult{Updated: true, Index: index, Status: status, Note: note}
}

// CompletePlan forces every step to completed and the plan to completed,
// bypassing the aggregation rule. An explicit override, not a derivation.
func (pe *PlanEngine) CompletePlan(sessionID string) CompleteResult {
	state := pe.store.Get(sessionID)
	steps := state.PlanSteps()

	for i := range steps {
		steps[i].Status = StepCompleted
	}
	state.SetPlanSteps(steps)
	state[KeyPlanStatus] = PlanStatusCompleted
	if len(steps) > 0 {
		state[KeyCurrentStepIndex] = len(steps) - 1
	} else {
		state[KeyCurrentStepIndex] = -1
	}

	pe.commit(sessionID, state)
	return CompleteResult{Completed: true}
}

// aggregate derives planStatus from the steps, in precedence order:
// any failed → failed; any in_progress → in_progress; all completed
// (non-empty) → completed with the index forced to the last step.
// Any other combination (all pending, pending/blocked mixes) leaves the
// prior planStatus in place. The leave-unchanged branch can go stale —
// e.g. every step blocked keeps whatever status was already set — and the
// UI shows it as-is; callers that care issue an explicit status update.
func aggregate(state SharedState, steps []PlanStep) {
	anyFailed, anyInProgress := false, false
	allCompleted := len(steps) > 0
	for _, st := range steps {
		switch st.Status {
		case StepFailed:
			anyFailed = true
		case StepInProgress:
			anyInProgress = true
		}
		if st.Status != StepCompleted {
			allCompleted = false
		}
	}

	switch {
	case anyFailed:
		state[KeyPlanStatus] = PlanStatusFailed
	case anyInProgress:
		state[KeyPlanStatus] = PlanStatusInProgress
	case allCompleted:
		state[KeyPlanStatus] = PlanStatusCompleted
		state[KeyCurrentStepIndex] = len(steps) - 1
	}
}

// commit writes the state back and broadcasts the snapshot. The write and
// the emission happen in mutation order; the turn coordinator's exclusive
// session lock keeps concurrent turns off this path.
func (pe *PlanEngine) commit(sessionID string, state SharedState) {
	pe.store.Set(sessionID, state)
	if pe.bus != nil {
		pe.bus.Snapshot(sessionID, state)
	}
}
