package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{`"2025-01-01"`, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{`"2025-01-01T10:30:00"`, time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)},
		{`"2025-01-01T10:30:00.123456"`, time.Date(2025, 1, 1, 10, 30, 0, 123456000, time.UTC)},
		{`"2025-01-01T10:30:00Z"`, time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)},
		{`null`, time.Time{}},
		{`""`, time.Time{}},
	}

	for _, tt := range tests {
		var d Date
		if err := json.Unmarshal([]byte(tt.input), &d); err != nil {
			t.Errorf("unmarshal %s: %v", tt.input, err)
			continue
		}
		if !d.Time.Equal(tt.want) {
			t.Errorf("unmarshal %s = %v, want %v", tt.input, d.Time, tt.want)
		}
	}
}

func TestDateUnmarshalInvalid(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"next tuesday"`), &d); err == nil {
		t.Error("expected error for unrecognized date")
	}
	if err := json.Unmarshal([]byte(`42`), &d); err == nil {
		t.Error("expected error for non-string date")
	}
}

func TestDateString(t *testing.T) {
	if got := (Date{}).String(); got != "N/A" {
		t.Errorf("zero date = %q, want %q", got, "N/A")
	}
	if got := NewDate(2025, time.March, 4).String(); got != "March 4, 2025" {
		t.Errorf("date = %q, want %q", got, "March 4, 2025")
	}
}

func TestSubscriptionDecode(t *testing.T) {
	payload := `{"planId":2,"planName":"BASIC","status":"ACTIVE","startDate":"2024-12-01","expiryDate":"2025-01-01","autoRenewal":true}`

	var sub Subscription
	if err := json.Unmarshal([]byte(payload), &sub); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sub.PlanID != 2 || sub.PlanName != "BASIC" {
		t.Errorf("plan = %d/%q, want 2/BASIC", sub.PlanID, sub.PlanName)
	}
	if sub.Status != StatusActive {
		t.Errorf("status = %q, want %q", sub.Status, StatusActive)
	}
	if !sub.ExpiryDate.Equal(NewDate(2025, time.January, 1).Time) {
		t.Errorf("expiry = %v", sub.ExpiryDate)
	}
	if !sub.AutoRenewal {
		t.Error("expected auto renewal")
	}
	if !sub.Exists() {
		t.Error("expected decoded subscription to exist")
	}
}

func TestNoSubscription(t *testing.T) {
	if NoSubscription.Exists() {
		t.Error("NONE sentinel must not exist")
	}
	if (Subscription{}).Exists() {
		t.Error("zero subscription must not exist")
	}
}
