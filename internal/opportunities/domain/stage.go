package domain

// Stage is one value from the fixed pipeline sequence an opportunity moves
// through. Complete and Lost are terminal.
type Stage string

const (
	StageNewEnquiry          Stage = "new_enquiry"
	StageCall1Scheduled      Stage = "call1_scheduled"
	StageQualified           Stage = "qualified"
	StageCall2Scheduled      Stage = "call2_scheduled"
	StageProposalAgreed      Stage = "proposal_agreed"
	StageAwaitingDeposit     Stage = "awaiting_deposit"
	StageDepositPaid         Stage = "deposit_paid"
	StageOnboardingScheduled Stage = "onboarding_scheduled"
	StageOnboardingComplete  Stage = "onboarding_complete"
	StageProduction          Stage = "production"
	StageInstallation        Stage = "installation"
	StageComplete            Stage = "complete"
	StageLost                Stage = "lost"
)

var knownStages = map[Stage]struct{}{
	StageNewEnquiry:          {},
	StageCall1Scheduled:      {},
	StageQualified:           {},
	StageCall2Scheduled:      {},
	StageProposalAgreed:      {},
	StageAwaitingDeposit:     {},
	StageDepositPaid:         {},
	StageOnboardingScheduled: {},
	StageOnboardingComplete:  {},
	StageProduction:          {},
	StageInstallation:        {},
	StageComplete:            {},
	StageLost:                {},
}

// IsKnownStage reports whether the value is part of the pipeline.
func IsKnownStage(stage Stage) bool {
	_, ok := knownStages[stage]
	return ok
}

// IsTerminal reports whether no further transitions are permitted.
func IsTerminal(stage Stage) bool {
	return stage == StageComplete || stage == StageLost
}

// Stages returns the pipeline stages in order.
func Stages() []Stage {
	return []Stage{
		StageNewEnquiry,
		StageCall1Scheduled,
		StageQualified,
		StageCall2Scheduled,
		StageProposalAgreed,
		StageAwaitingDeposit,
		StageDepositPaid,
		StageOnboardingScheduled,
		StageOnboardingComplete,
		StageProduction,
		StageInstallation,
		StageComplete,
		StageLost,
	}
}

// StageForBookingType maps a booking type to the stage the opportunity is
// driven into when the booking is created.
func StageForBookingType(bookingType string) (Stage, bool) {
	switch bookingType {
	case "initial-consultation":
		return StageCall1Scheduled, true
	case "design-call":
		return StageCall2Scheduled, true
	case "onboarding-visit":
		return StageOnboardingScheduled, true
	default:
		return "", false
	}
}
