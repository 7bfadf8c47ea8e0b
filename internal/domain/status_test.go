package domain

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		kind     BookingKind
		current  BookingStatus
		target   BookingStatus
		actor    Actor
		want     Decision
		rejected bool
	}{
		{"webhook pays pending", KindPersonRide, BookingStatusPending, BookingStatusPaid, ActorWebhook, DecisionApply, false},
		{"webhook pays confirmed", KindCarRide, BookingStatusConfirmed, BookingStatusPaid, ActorWebhook, DecisionApply, false},
		{"webhook replay on paid", KindCargo, BookingStatusPaid, BookingStatusPaid, ActorWebhook, DecisionNoop, false},
		{"webhook after sweep", KindPersonRide, BookingStatusEnRoutePickup, BookingStatusPaid, ActorWebhook, DecisionNoop, false},
		{"webhook on cancelled", KindPersonRide, BookingStatusCancelled, BookingStatusPaid, ActorWebhook, DecisionNoop, true},
		{"webhook on completed", KindParcelDrop, BookingStatusCompleted, BookingStatusPaid, ActorWebhook, DecisionNoop, true},
		{"driver cannot pay", KindPersonRide, BookingStatusPending, BookingStatusPaid, ActorDriver, DecisionNoop, true},
		{"sweep starts pending", KindParcelDrop, BookingStatusPending, BookingStatusEnRoutePickup, ActorAutoStarter, DecisionApply, false},
		{"sweep starts paid", KindCargo, BookingStatusPaid, BookingStatusEnRoutePickup, ActorAutoStarter, DecisionApply, false},
		{"sweep past pickup", KindCarRide, BookingStatusAtPickup, BookingStatusEnRoutePickup, ActorAutoStarter, DecisionNoop, false},
		{"sweep on cancelled", KindCarRide, BookingStatusCancelled, BookingStatusEnRoutePickup, ActorAutoStarter, DecisionNoop, true},
		{"driver cannot start", KindPersonRide, BookingStatusPaid, BookingStatusEnRoutePickup, ActorDriver, DecisionNoop, true},
		{"driver arrives at pickup", KindPersonRide, BookingStatusEnRoutePickup, BookingStatusAtPickup, ActorDriver, DecisionApply, false},
		{"driver skips ahead", KindPersonRide, BookingStatusEnRoutePickup, BookingStatusArrived, ActorDriver, DecisionApply, false},
		{"driver before trip start", KindPersonRide, BookingStatusPaid, BookingStatusAtPickup, ActorDriver, DecisionNoop, true},
		{"driver moves backward", KindCargo, BookingStatusArrived, BookingStatusAtPickup, ActorDriver, DecisionNoop, true},
		{"operator confirms", KindCarRide, BookingStatusPending, BookingStatusConfirmed, ActorOperator, DecisionApply, false},
		{"confirmed not defined for cargo", KindCargo, BookingStatusPending, BookingStatusConfirmed, ActorOperator, DecisionNoop, true},
		{"operator cancels paid", KindCargo, BookingStatusPaid, BookingStatusCancelled, ActorOperator, DecisionApply, false},
		{"driver cancels on trip", KindPersonRide, BookingStatusAtPickup, BookingStatusCancelled, ActorDriver, DecisionApply, false},
		{"nobody returns to pending", KindPersonRide, BookingStatusPaid, BookingStatusPending, ActorOperator, DecisionNoop, true},
		{"cancel twice", KindPersonRide, BookingStatusCancelled, BookingStatusCancelled, ActorOperator, DecisionNoop, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Transition(tt.kind, tt.current, tt.target, tt.actor)
			if tt.rejected {
				if !errors.Is(err, ErrTransitionRejected) {
					t.Fatalf("expected rejection, got decision %v err %v", got, err)
				}
				var te *TransitionError
				if !errors.As(err, &te) || te.From != tt.current || te.To != tt.target {
					t.Errorf("expected TransitionError %s -> %s, got %v", tt.current, tt.target, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected decision %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStatusValidFor(t *testing.T) {
	t.Parallel()

	if !BookingStatusConfirmed.ValidFor(KindPersonRide) {
		t.Error("person rides have a confirmed state")
	}
	if BookingStatusConfirmed.ValidFor(KindParcelDrop) {
		t.Error("parcel drops go straight from pending to paid")
	}
	if BookingStatus("boarding").ValidFor(KindCarRide) {
		t.Error("unknown status accepted")
	}
	if BookingStatusPaid.ValidFor(BookingKind("bus")) {
		t.Error("unknown kind accepted")
	}
}

func TestParseBookingKind(t *testing.T) {
	t.Parallel()

	for _, kind := range BookingKinds {
		got, err := ParseBookingKind(string(kind))
		if err != nil || got != kind {
			t.Errorf("ParseBookingKind(%q) = %q, %v", kind, got, err)
		}
	}
	if _, err := ParseBookingKind("bus"); err == nil {
		t.Error("expected error for unknown kind")
	}
	if !KindCarRide.HasCapacity() || KindCargo.HasCapacity() {
		t.Error("only ride kinds track seats")
	}
}
