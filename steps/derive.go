package steps

// State is a step definition annotated with its derived flags.
type State struct {
	Definition
	Completed  bool
	Accessible bool
}

// Snapshot is the derived view of a party's progress.
type Snapshot struct {
	Steps []State
	// CurrentStep is the first incomplete step, or len(Steps) when none is.
	CurrentStep    int
	CompletedSteps []int
}

// Derive walks defs in order. A step is accessible only when the step before
// it is complete, and CurrentStep stops at the first gap even if later steps
// evaluate complete.
func Derive(defs []Definition, completed func(stepID int) bool) Snapshot {
	snap := Snapshot{
		Steps:          make([]State, len(defs)),
		CurrentStep:    len(defs),
		CompletedSteps: []int{},
	}
	for i, def := range defs {
		done := completed(def.ID)
		snap.Steps[i] = State{
			Definition: def,
			Completed:  done,
			Accessible: i == 0 || snap.Steps[i-1].Completed,
		}
		if done {
			snap.CompletedSteps = append(snap.CompletedSteps, def.ID)
		} else if snap.CurrentStep == len(defs) {
			snap.CurrentStep = i
		}
	}
	return snap
}

// Progress evaluates every rule for role once and derives the snapshot.
func Progress(role Role, ctx Context) (Snapshot, error) {
	defs, err := For(role)
	if err != nil {
		return Snapshot{}, err
	}
	book, err := RulesFor(role)
	if err != nil {
		return Snapshot{}, err
	}
	results := book.EvaluateAll(ctx)
	return Derive(defs, func(stepID int) bool { return results[stepID] }), nil
}
