package progress

import (
	"errors"
	"slices"
	"time"

	"dealflow/document"
	"dealflow/steps"
)

var (
	// ErrInvalidRole signals a role without a step list.
	ErrInvalidRole = errors.New("progress: role must be buyer or seller")
	// ErrInvalidStep signals a step id outside the role's step list.
	ErrInvalidStep = errors.New("progress: step out of range")
	// ErrStepLocked signals an action on a step whose predecessor is incomplete.
	ErrStepLocked = errors.New("progress: step not accessible")
	// ErrOperationNotAllowed signals an upload or download the step does not accept.
	ErrOperationNotAllowed = errors.New("progress: operation not allowed for step")
	// ErrListingNotOwned signals a seller selecting a listing they do not own.
	ErrListingNotOwned = errors.New("progress: listing not owned by seller")
	// ErrMissingOwner signals a request without an owner id.
	ErrMissingOwner = errors.New("progress: owner id required")
)

// Record is the persisted progress for one (role, owner) pair. CurrentStep
// and CompletedSteps hold what was explicitly recorded; the derived view is
// recomputed on every read and never written back.
type Record struct {
	Role              steps.Role
	OwnerID           string
	SelectedListingID *string
	CurrentStep       int
	CompletedSteps    []int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasSelectedListing reports whether a listing has been chosen.
func (r Record) HasSelectedListing() bool {
	return r.SelectedListingID != nil && *r.SelectedListingID != ""
}

func (r Record) listingID() string {
	if r.SelectedListingID == nil {
		return ""
	}
	return *r.SelectedListingID
}

// markCompleted adds stepID to the recorded set and advances CurrentStep.
func (r *Record) markCompleted(stepID int) {
	if !slices.Contains(r.CompletedSteps, stepID) {
		r.CompletedSteps = append(r.CompletedSteps, stepID)
		slices.Sort(r.CompletedSteps)
	}
	r.CurrentStep = max(r.CurrentStep, stepID+1)
}

func (r Record) clone() Record {
	out := r
	out.CompletedSteps = slices.Clone(r.CompletedSteps)
	if r.SelectedListingID != nil {
		v := *r.SelectedListingID
		out.SelectedListingID = &v
	}
	return out
}

// StepView is one derived step with the documents filed against it.
type StepView struct {
	steps.State
	Documents []document.Document
}

// View is the derived progress returned to callers.
type View struct {
	Role              steps.Role
	OwnerID           string
	SelectedListingID *string
	CurrentStep       int
	CompletedSteps    []int
	Steps             []StepView
}

// UploadRequest describes a completed upload for the caller's current listing.
type UploadRequest struct {
	StepID   int
	FileName string
	FileSize int64
}
