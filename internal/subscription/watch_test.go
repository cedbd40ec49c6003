package subscription

import (
	"testing"

	"github.com/dukerupert/subtrack/internal/model"
)

func TestWatcherSkipsOlderVersions(t *testing.T) {
	var got []model.SubscriptionStatus
	w := &watcher{fn: func(sub model.Subscription) { got = append(got, sub.Status) }}

	w.notify(2, model.Subscription{Status: model.StatusActive})
	w.notify(1, model.NoSubscription)
	w.notify(2, model.Subscription{Status: model.StatusActive})
	w.notify(3, model.Subscription{Status: model.StatusCancelled})

	want := []model.SubscriptionStatus{model.StatusActive, model.StatusCancelled}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("delivered %v, want %v", got, want)
	}
}
