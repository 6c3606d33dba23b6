package domain

import "testing"

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StageComplete) {
		t.Fatalf("expected complete to be terminal")
	}
	if !IsTerminal(StageLost) {
		t.Fatalf("expected lost to be terminal")
	}
	if IsTerminal(StageInstallation) {
		t.Fatalf("expected installation to be non-terminal")
	}
	if IsTerminal(StageNewEnquiry) {
		t.Fatalf("expected new_enquiry to be non-terminal")
	}
}

func TestIsKnownStage(t *testing.T) {
	for _, stage := range Stages() {
		if !IsKnownStage(stage) {
			t.Fatalf("expected %s to be known", stage)
		}
	}
	if IsKnownStage("negotiation") {
		t.Fatalf("expected negotiation to be unknown")
	}
	if IsKnownStage("") {
		t.Fatalf("expected empty stage to be unknown")
	}
}

func TestStageForBookingType(t *testing.T) {
	cases := []struct {
		bookingType string
		want        Stage
	}{
		{"initial-consultation", StageCall1Scheduled},
		{"design-call", StageCall2Scheduled},
		{"onboarding-visit", StageOnboardingScheduled},
	}
	for _, tc := range cases {
		got, ok := StageForBookingType(tc.bookingType)
		if !ok {
			t.Fatalf("expected mapping for %s", tc.bookingType)
		}
		if got != tc.want {
			t.Fatalf("expected %s for %s, got %s", tc.want, tc.bookingType, got)
		}
	}

	if _, ok := StageForBookingType("site-survey"); ok {
		t.Fatalf("expected no mapping for unknown booking type")
	}
}

func TestTransitionAllowed(t *testing.T) {
	if !TransitionAllowed(TriggerBookingCreated, StageCall1Scheduled) {
		t.Fatalf("expected booking_created to allow call1_scheduled")
	}
	if TransitionAllowed(TriggerBookingCreated, StageDepositPaid) {
		t.Fatalf("expected booking_created to reject deposit_paid")
	}
	if !TransitionAllowed(TriggerMarkLost, StageLost) {
		t.Fatalf("expected mark_lost to allow lost")
	}
	if TransitionAllowed(TriggerMarkLost, StageComplete) {
		t.Fatalf("expected mark_lost to reject complete")
	}
	if !TransitionAllowed(TriggerManualOverride, StageProduction) {
		t.Fatalf("expected manual_override to allow any known stage")
	}
	if TransitionAllowed(TriggerManualOverride, "negotiation") {
		t.Fatalf("expected manual_override to reject unknown stage")
	}
	if TransitionAllowed("webhook", StageQualified) {
		t.Fatalf("expected unknown trigger to be rejected")
	}
}

func TestRequiresActor(t *testing.T) {
	if !RequiresActor(TriggerManualOverride) {
		t.Fatalf("expected manual_override to require an actor")
	}
	if !RequiresActor(TriggerSuggestionOverridden) {
		t.Fatalf("expected suggestion_overridden to require an actor")
	}
	if RequiresActor(TriggerSuggestionConfirmed) {
		t.Fatalf("expected suggestion_confirmed to not require an actor")
	}
	if RequiresActor(TriggerBookingCreated) {
		t.Fatalf("expected booking_created to not require an actor")
	}
}
