package domain

// PartialAmounts splits a settlement between the owner and the advertiser.
// Release goes through the commission split, refund goes back to the payer.
type PartialAmounts struct {
	ReleaseNano Nano
	RefundNano  Nano
}

type TransitionCommand struct {
	DealID         string
	TargetStatus   DealStatus
	ActorID        string
	ActorType      ActorType
	Reason         string
	PartialAmounts *PartialAmounts
}

type TransitionOutcome int

const (
	TransitionSucceeded TransitionOutcome = iota + 1
	TransitionAlreadyInTarget
)

func (o TransitionOutcome) String() string {
	switch o {
	case TransitionSucceeded:
		return "success"
	case TransitionAlreadyInTarget:
		return "already_in_target"
	}
	return "unknown"
}

// TransitionResult is Success(NewStatus) or AlreadyInTargetState(Status).
// Switch on Outcome; the zero value is never returned with a nil error.
type TransitionResult struct {
	Outcome TransitionOutcome
	Status  DealStatus
	Version int64
}

func Succeeded(status DealStatus, version int64) TransitionResult {
	return TransitionResult{Outcome: TransitionSucceeded, Status: status, Version: version}
}

func AlreadyInTarget(status DealStatus, version int64) TransitionResult {
	return TransitionResult{Outcome: TransitionAlreadyInTarget, Status: status, Version: version}
}
