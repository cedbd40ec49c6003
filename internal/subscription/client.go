// Package subscription manages the signed-in user's subscription and reads
// the plan catalog. Local state only ever changes to a record the server has
// confirmed.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/subtrack/internal/apiclient"
	"github.com/dukerupert/subtrack/internal/model"
)

// CancelPrompt is the question passed to the ConfirmFunc before cancelling.
const CancelPrompt = "Are you sure you want to cancel your subscription?"

var (
	// ErrMutationInFlight is returned when Subscribe, Cancel or Upgrade is
	// called while another of them is still pending. No request is sent.
	ErrMutationInFlight = errors.New("another subscription change is in progress")
	// ErrDeclined is returned by Cancel when the user did not confirm.
	ErrDeclined = errors.New("cancellation declined")
)

// Session is the part of the session store the client depends on.
type Session interface {
	apiclient.Authenticator
	IsAuthenticated() bool
	Epoch() uint64
}

// ConfirmFunc asks the user a yes/no question.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Client is the subscription client. It is safe for concurrent use.
type Client struct {
	public  *apiclient.Client
	api     *apiclient.Client
	sess    Session
	logger  *slog.Logger
	confirm ConfirmFunc

	reads    singleflight.Group
	mutating atomic.Bool

	mu      sync.RWMutex
	current model.Subscription
	known   bool
	epoch   uint64

	// gen advances when a mutation starts and when it lands. A read that
	// saw an older gen is stale.
	gen      uint64
	version  uint64
	watchers map[int]*watcher
	nextID   int
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithConfirm sets the prompt used before a cancellation. Without one,
// Cancel proceeds without asking.
func WithConfirm(fn ConfirmFunc) Option {
	return func(c *Client) {
		c.confirm = fn
	}
}

// NewClient returns a client that calls api. Authenticated calls are signed
// by sess, and a rejected credential is reported back to it.
func NewClient(api *apiclient.Client, sess Session, opts ...Option) *Client {
	c := &Client{
		public:   api,
		api:      api.WithAuth(sess),
		sess:     sess,
		logger:   slog.Default(),
		watchers: make(map[int]*watcher),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPlans returns the plan catalog in server order. An empty catalog is
// not an error.
func (c *Client) ListPlans(ctx context.Context) ([]model.Plan, error) {
	v, err := c.read(ctx, "plans", func(ctx context.Context) (any, error) {
		var plans []model.Plan
		if err := c.public.Do(ctx, http.MethodGet, "/plans", nil, &plans); err != nil {
			return nil, err
		}
		if plans == nil {
			plans = []model.Plan{}
		}
		return plans, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return slices.Clone(v.([]model.Plan)), nil
}

// GetCurrentSubscription fetches the user's subscription. A user without one
// gets model.NoSubscription and a nil error.
func (c *Client) GetCurrentSubscription(ctx context.Context) (model.Subscription, error) {
	if !c.sess.IsAuthenticated() {
		return model.Subscription{}, fmt.Errorf("get subscription: %w", apiclient.ErrUnauthenticated)
	}
	epoch := c.sess.Epoch()
	gen := c.generation()

	key := "subscription:" + strconv.FormatUint(epoch, 10) + ":" + strconv.FormatUint(gen, 10)
	v, err := c.read(ctx, key, func(ctx context.Context) (any, error) {
		sub, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.apply("refresh", epoch, gen, false, sub)
		return sub, nil
	})
	if err != nil {
		return model.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return v.(model.Subscription), nil
}

// Subscribe starts a subscription to planID.
func (c *Client) Subscribe(ctx context.Context, planID int64) (model.Subscription, error) {
	return c.mutate(ctx, "subscribe", func(ctx context.Context) (*model.Subscription, error) {
		var sub *model.Subscription
		path := "/subscriptions/subscribe/" + strconv.FormatInt(planID, 10)
		err := c.api.Do(ctx, http.MethodPost, path, nil, &sub)
		return sub, err
	})
}

// Upgrade moves the current subscription to newPlanID.
func (c *Client) Upgrade(ctx context.Context, newPlanID int64) (model.Subscription, error) {
	return c.mutate(ctx, "upgrade", func(ctx context.Context) (*model.Subscription, error) {
		var sub *model.Subscription
		body := struct {
			PlanID int64 `json:"planId"`
		}{newPlanID}
		err := c.api.Do(ctx, http.MethodPut, "/subscriptions/upgrade", body, &sub)
		return sub, err
	})
}

// Cancel asks for confirmation and then cancels the subscription. The new
// state is whatever the server reports afterwards; it may still be ACTIVE
// when cancellation takes effect at the end of the period.
//
// Cancelling without a subscription fails with an error that matches both
// apiclient.ErrValidation and apiclient.ErrNotFound.
func (c *Client) Cancel(ctx context.Context) error {
	_, err := c.mutate(ctx, "cancel", func(ctx context.Context) (*model.Subscription, error) {
		if c.confirm != nil {
			ok, err := c.confirm(ctx, CancelPrompt)
			if err != nil {
				return nil, fmt.Errorf("confirm: %w", err)
			}
			if !ok {
				return nil, ErrDeclined
			}
		}

		var sub *model.Subscription
		err := c.api.Do(ctx, http.MethodPut, "/subscriptions/cancel", nil, &sub)
		if errors.Is(err, apiclient.ErrNotFound) {
			err = apiclient.Reclassify(err, apiclient.ErrValidation)
		}
		return sub, err
	})
	return err
}

// Current returns the last server-confirmed subscription for the current
// session. ok is false until one has been fetched.
func (c *Client) Current() (sub model.Subscription, ok bool) {
	epoch := c.sess.Epoch()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.known || c.epoch != epoch {
		return model.Subscription{}, false
	}
	return c.current, true
}

// mutate runs one state-changing call. Only one may be pending at a time.
// A nil record from call means the server confirmed without a body, and the
// subscription is fetched again.
func (c *Client) mutate(ctx context.Context, op string, call func(context.Context) (*model.Subscription, error)) (model.Subscription, error) {
	if !c.sess.IsAuthenticated() {
		return model.Subscription{}, fmt.Errorf("%s: %w", op, apiclient.ErrUnauthenticated)
	}
	if !c.mutating.CompareAndSwap(false, true) {
		return model.Subscription{}, fmt.Errorf("%s: %w", op, ErrMutationInFlight)
	}
	defer c.mutating.Store(false)

	epoch := c.sess.Epoch()
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	confirmed, err := call(ctx)
	if err != nil {
		return model.Subscription{}, fmt.Errorf("%s: %w", op, err)
	}

	var sub model.Subscription
	if confirmed != nil && confirmed.Status != "" {
		sub = *confirmed
	} else {
		sub, err = c.fetch(ctx)
		if err != nil {
			return model.Subscription{}, fmt.Errorf("%s: refresh: %w", op, err)
		}
	}

	c.apply(op, epoch, gen, true, sub)
	c.logger.Info("subscription changed", "op", op, "status", sub.Status, "plan", sub.PlanName)
	return sub, nil
}

func (c *Client) fetch(ctx context.Context) (model.Subscription, error) {
	var sub *model.Subscription
	err := c.api.Do(ctx, http.MethodGet, "/subscriptions", nil, &sub)
	if errors.Is(err, apiclient.ErrNotFound) {
		return model.NoSubscription, nil
	}
	if err != nil {
		return model.Subscription{}, err
	}
	if sub == nil || (sub.Status == "" && sub.PlanID == 0) {
		return model.NoSubscription, nil
	}
	return *sub, nil
}

// read coalesces identical concurrent reads. The request outlives a caller
// that gives up; its result is still applied if the session is unchanged.
func (c *Client) read(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.reads.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// apply records sub as the confirmed state if the session that issued the
// request is still the current one and no mutation has started or landed
// since it was sent, then notifies watchers. A mutation advances gen again
// when it lands so reads sent while it was pending are dropped too.
func (c *Client) apply(op string, epoch, gen uint64, mutation bool, sub model.Subscription) {
	c.mu.Lock()
	if c.sess.Epoch() != epoch {
		c.mu.Unlock()
		c.logger.Debug("discarding result from an ended session", "op", op)
		return
	}
	if c.gen != gen {
		c.mu.Unlock()
		c.logger.Debug("discarding result overtaken by a subscription change", "op", op)
		return
	}
	if mutation {
		c.gen++
	}

	from := model.StatusNone
	if c.known && c.epoch == epoch {
		from = c.current.Status
	}
	if !ValidTransition(from, sub.Status) {
		c.logger.Warn("unexpected subscription transition", "op", op, "from", from, "to", sub.Status)
	}

	c.current = sub
	c.known = true
	c.epoch = epoch
	c.version++
	version := c.version
	watchers := make([]*watcher, 0, len(c.watchers))
	for _, w := range c.watchers {
		watchers = append(watchers, w)
	}
	c.mu.Unlock()

	for _, w := range watchers {
		w.notify(version, sub)
	}
}
