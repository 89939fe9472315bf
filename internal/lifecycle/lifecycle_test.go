package lifecycle

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusDraft, StatusActive, true},
		{StatusDraft, StatusClosed, true},
		{StatusDraft, StatusVoting, false},
		{StatusActive, StatusActive, true},
		{StatusActive, StatusVoting, true},
		{StatusActive, StatusClosed, true},
		{StatusActive, StatusDraft, false},
		{StatusVoting, StatusActive, true},
		{StatusVoting, StatusClosed, true},
		{StatusVoting, StatusVoting, false},
		{StatusClosed, StatusActive, false},
		{StatusClosed, StatusClosed, false},
		{Status("Bogus"), StatusActive, false},
		{StatusDraft, Status("Bogus"), false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestValid(t *testing.T) {
	for _, status := range []Status{StatusDraft, StatusActive, StatusVoting, StatusClosed} {
		if !Valid(status) {
			t.Errorf("Valid(%s) = false", status)
		}
	}
	if Valid(Status("Paused")) {
		t.Error("Valid(Paused) = true")
	}
}

func TestSupportsVoting(t *testing.T) {
	if !SupportsVoting(TypeOpenEnded, true) {
		t.Error("open_ended with voting enabled should support voting")
	}
	if !SupportsVoting(TypeAssignment, true) {
		t.Error("assignment with voting enabled should support voting")
	}
	if SupportsVoting(TypeOpenEnded, false) {
		t.Error("voting disabled should not support voting")
	}
	if SupportsVoting(TypeStocktake, true) {
		t.Error("stocktake never supports voting")
	}
}

func TestAcceptsSubmissions(t *testing.T) {
	if !AcceptsSubmissions(TypeOpenEnded) || !AcceptsSubmissions(TypeAssignment) {
		t.Error("open_ended and assignment accept submissions")
	}
	if AcceptsSubmissions(TypeStocktake) {
		t.Error("stocktake does not accept submissions")
	}
}
