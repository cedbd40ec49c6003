package subscription

import "github.com/dukerupert/subtrack/internal/model"

// Action is something the user can do from the dashboard.
type Action string

const (
	ActionSubscribe Action = "subscribe"
	ActionUpgrade   Action = "upgrade"
	ActionCancel    Action = "cancel"
	ActionRenew     Action = "renew"
)

// transitions lists the status changes a confirmed response may produce.
// Staying in the same status is always allowed.
var transitions = map[model.SubscriptionStatus][]model.SubscriptionStatus{
	model.StatusNone:      {model.StatusActive},
	model.StatusActive:    {model.StatusCancelled, model.StatusExpired, model.StatusNone},
	model.StatusCancelled: {model.StatusActive, model.StatusExpired, model.StatusNone},
	model.StatusExpired:   {model.StatusActive, model.StatusNone},
}

// ValidTransition reports whether moving from one status to another is part
// of the subscription lifecycle. Expiry is only ever observed on a refresh;
// it is never inferred from the clock.
func ValidTransition(from, to model.SubscriptionStatus) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AvailableActions returns the dashboard actions for sub.
func AvailableActions(sub model.Subscription) []Action {
	switch {
	case !sub.Exists():
		return []Action{ActionSubscribe}
	case sub.Status == model.StatusActive:
		return []Action{ActionUpgrade, ActionCancel}
	default:
		return []Action{ActionRenew}
	}
}
