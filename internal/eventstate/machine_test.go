package eventstate

import (
	"errors"
	"testing"
	"time"
)

func TestAuthorize(t *testing.T) {
	t.Parallel()

	operator := Actor{UserID: "op", Operator: true}
	owner := Actor{UserID: "owner", Owner: true}
	stranger := Actor{UserID: "someone"}

	tests := []struct {
		name       string
		transition Transition
		actor      Actor
		wantErr    error
	}{
		{name: "operator validates", transition: Validate, actor: operator},
		{name: "owner cannot validate", transition: Validate, actor: owner, wantErr: ErrForbidden},
		{name: "owner cancels", transition: Cancel, actor: owner},
		{name: "operator cancels", transition: Cancel, actor: operator},
		{name: "stranger cannot cancel", transition: Cancel, actor: stranger, wantErr: ErrForbidden},
		{name: "owner cannot move", transition: Move, actor: owner, wantErr: ErrForbidden},
		{name: "operator moves", transition: Move, actor: operator},
		{name: "owner cannot reopen", transition: Reopen, actor: owner, wantErr: ErrForbidden},
		{name: "unknown transition", transition: Transition("EXPLODE"), actor: operator, wantErr: ErrInvalidTransition},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Authorize(tc.transition, tc.actor)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    State
		t       Transition
		want    State
		wantErr bool
	}{
		{from: Pending, t: Validate, want: Validated},
		{from: Validated, t: Move, want: Moved},
		{from: Moved, t: Validate, want: Validated},
		{from: InProgress, t: Cancel, want: Cancelled},
		{from: Validated, t: Cancel, want: Cancelled},
		{from: Cancelled, t: Validate, want: Cancelled, wantErr: true},
		{from: Cancelled, t: Move, want: Cancelled, wantErr: true},
		{from: Cancelled, t: Cancel, want: Cancelled, wantErr: true},
		{from: Cancelled, t: Reopen, want: Pending},
		{from: Pending, t: Reopen, want: Pending, wantErr: true},
		{from: Validated, t: Start, want: InProgress},
		{from: Moved, t: Start, want: InProgress},
		{from: Pending, t: Start, want: Pending, wantErr: true},
		{from: InProgress, t: Start, want: InProgress, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(string(tc.from)+"/"+string(tc.t), func(t *testing.T) {
			t.Parallel()
			got, err := Next(tc.from, tc.t)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Next error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if got != tc.want {
				t.Fatalf("Next = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestOnProposal(t *testing.T) {
	t.Parallel()

	if got, changed := OnProposal(Validated, true); got != Pending || !changed {
		t.Fatalf("validated event should return to pending, got %s", got)
	}
	if got, changed := OnProposal(Moved, true); got != Pending || !changed {
		t.Fatalf("moved event should return to pending, got %s", got)
	}
	if got, changed := OnProposal(Validated, false); got != Validated || changed {
		t.Fatalf("unchanged proposal must keep state, got %s", got)
	}
	if got, changed := OnProposal(Pending, true); got != Pending || changed {
		t.Fatalf("pending stays pending without a change record, got %s", got)
	}
}

func TestRecord(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	change := Record(Pending, Validated, "op", "looks good", now)
	if change.From != Pending || change.To != Validated || change.UserID != "op" || change.Reason != "looks good" || !change.Date.Equal(now) {
		t.Fatalf("unexpected change %#v", change)
	}
}

func TestParseTransition(t *testing.T) {
	t.Parallel()

	if tr, ok := ParseTransition("MOVE"); !ok || tr != Move {
		t.Fatalf("expected MOVE, got %q", tr)
	}
	if _, ok := ParseTransition("move"); ok {
		t.Fatalf("transition names are case sensitive")
	}
}
