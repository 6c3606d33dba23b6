package domain

// Trigger tags the cause of a stage transition. Each trigger carries an
// allow-list of target stages; free-form moves are reserved for the manual
// override trigger, which always requires a human actor.
type Trigger string

const (
	// TriggerCreated tags the opening audit entry written when an
	// opportunity enters the pipeline. It is never a valid transition.
	TriggerCreated Trigger = "created"

	TriggerBookingCreated       Trigger = "booking_created"
	TriggerSuggestionConfirmed  Trigger = "suggestion_confirmed"
	TriggerSuggestionOverridden Trigger = "suggestion_overridden"
	TriggerDepositPaid          Trigger = "deposit_paid"
	TriggerOnboardingComplete   Trigger = "onboarding_complete"
	TriggerMarkLost             Trigger = "mark_lost"
	TriggerMarkComplete         Trigger = "mark_complete"
	TriggerManualOverride       Trigger = "manual_override"
)

// allowedTargets maps each trigger to the stages it may move an opportunity
// into. A nil entry means any known stage is permitted.
var allowedTargets = map[Trigger][]Stage{
	TriggerBookingCreated:       {StageCall1Scheduled, StageCall2Scheduled, StageOnboardingScheduled},
	TriggerSuggestionConfirmed:  nil,
	TriggerSuggestionOverridden: nil,
	TriggerDepositPaid:          {StageDepositPaid},
	TriggerOnboardingComplete:   {StageOnboardingComplete},
	TriggerMarkLost:             {StageLost},
	TriggerMarkComplete:         {StageComplete},
	TriggerManualOverride:       nil,
}

// IsKnownTrigger reports whether the trigger is one of the tagged variants.
func IsKnownTrigger(trigger Trigger) bool {
	_, ok := allowedTargets[trigger]
	return ok
}

// TransitionAllowed reports whether the trigger may move an opportunity into
// the target stage. Targets outside the pipeline are never allowed.
func TransitionAllowed(trigger Trigger, to Stage) bool {
	if !IsKnownStage(to) {
		return false
	}
	targets, ok := allowedTargets[trigger]
	if !ok {
		return false
	}
	if targets == nil {
		return true
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// RequiresActor reports whether the trigger must carry a staff identity.
func RequiresActor(trigger Trigger) bool {
	switch trigger {
	case TriggerManualOverride, TriggerSuggestionOverridden:
		return true
	default:
		return false
	}
}
