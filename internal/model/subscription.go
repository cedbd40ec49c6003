package model

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "ACTIVE"
	StatusExpired   SubscriptionStatus = "EXPIRED"
	StatusCancelled SubscriptionStatus = "CANCELLED"
	// StatusNone is local only: no subscription exists or none was fetched.
	StatusNone SubscriptionStatus = "NONE"
)

type Subscription struct {
	PlanID      int64              `json:"planId"`
	PlanName    string             `json:"planName"`
	Status      SubscriptionStatus `json:"status"`
	StartDate   Date               `json:"startDate"`
	ExpiryDate  Date               `json:"expiryDate"`
	AutoRenewal bool               `json:"autoRenewal"`
}

// NoSubscription is the NONE sentinel. It is a normal state, not an error.
var NoSubscription = Subscription{Status: StatusNone}

// Exists reports whether s describes a real subscription record.
func (s Subscription) Exists() bool {
	return s.Status != "" && s.Status != StatusNone
}
