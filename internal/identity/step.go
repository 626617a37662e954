package identity

import "fmt"

// Step marks onboarding progress.
type Step int

const (
	StepAwaitingOTP  Step = 1
	StepAwaitingName Step = 2
	StepAwaitingRole Step = 3
	StepComplete     Step = 4
)

var stepNames = map[Step]string{
	StepAwaitingOTP:  "Verify OTP",
	StepAwaitingName: "Set Name",
	StepAwaitingRole: "Set Role",
	StepComplete:     "Complete",
}

// Valid reports whether s is inside the step domain.
func (s Step) Valid() bool {
	return s >= StepAwaitingOTP && s <= StepComplete
}

// Name returns the label of the action the step is waiting for.
func (s Step) Name() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "Unknown step"
}

// Operation is an onboarding action that moves an identity forward.
type Operation int

const (
	OpVerifyOTP Operation = iota + 1
	OpSetName
	OpSetRole
)

func (o Operation) String() string {
	switch o {
	case OpVerifyOTP:
		return "verify-otp"
	case OpSetName:
		return "set-name"
	case OpSetRole:
		return "set-role"
	default:
		return "unknown"
	}
}

// transitions is the whole onboarding contract: each operation is legal
// from exactly one step and lands on the next one.
var transitions = map[Operation]struct{ from, to Step }{
	OpVerifyOTP: {StepAwaitingOTP, StepAwaitingName},
	OpSetName:   {StepAwaitingName, StepAwaitingRole},
	OpSetRole:   {StepAwaitingRole, StepComplete},
}

// Advance validates op against the current step and returns the next step.
func Advance(current Step, op Operation) (Step, error) {
	t, ok := transitions[op]
	if !ok {
		return current, fmt.Errorf("%w: unknown operation %d", ErrWrongStep, int(op))
	}
	if current != t.from {
		return current, &StepError{Current: current, Op: op}
	}
	return t.to, nil
}

// StepError reports an operation attempted out of sequence.
type StepError struct {
	Current Step
	Op      Operation
}

func (e *StepError) Error() string {
	return fmt.Sprintf("wrong step: %s not allowed at step %d (%s)", e.Op, int(e.Current), e.Current.Name())
}

// Is matches ErrWrongStep.
func (e *StepError) Is(target error) bool {
	return target == ErrWrongStep
}
