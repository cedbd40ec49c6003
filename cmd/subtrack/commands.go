package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/dukerupert/subtrack/internal/apiclient"
	"github.com/dukerupert/subtrack/internal/model"
	"github.com/dukerupert/subtrack/internal/pricing"
	"github.com/dukerupert/subtrack/internal/session"
	"github.com/dukerupert/subtrack/internal/subscription"
)

var errPasswordMismatch = errors.New("passwords do not match")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"login", "sign in with email and password", runLogin},
	{"register", "create an account and sign in", runRegister},
	{"logout", "sign out and forget the stored session", runLogout},
	{"whoami", "show the signed-in user", runWhoami},
	{"plans", "list available plans", runPlans},
	{"status", "show your subscription", runStatus},
	{"subscribe", "subscribe to a plan: subscribe PLAN_ID", runSubscribe},
	{"upgrade", "change to another plan: upgrade PLAN_ID", runUpgrade},
	{"cancel", "cancel your subscription", runCancel},
}

func findCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

func newFlags(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login", a.out)
	email := fs.StringP("email", "e", "", "account email")
	password := fs.StringP("password", "p", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if *email, err = a.prompt("Email", *email); err != nil {
		return err
	}
	if *password, err = a.promptSecret("Password", *password); err != nil {
		return err
	}

	identity, err := a.session.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s.\n", identity.Email)
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlags("register", a.out)
	name := fs.StringP("name", "n", "", "user name")
	email := fs.StringP("email", "e", "", "account email")
	password := fs.StringP("password", "p", "", "account password")
	confirm := fs.String("confirm-password", "", "account password again")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	profile := model.Profile{}
	if profile.UserName, err = a.prompt("Name", *name); err != nil {
		return err
	}
	if profile.Email, err = a.prompt("Email", *email); err != nil {
		return err
	}
	if profile.Password, err = a.promptSecret("Password", *password); err != nil {
		return err
	}
	if *confirm, err = a.promptSecret("Confirm password", *confirm); err != nil {
		return err
	}
	if profile.Password != *confirm {
		return errPasswordMismatch
	}

	identity, err := a.session.Register(ctx, profile)
	if errors.Is(err, session.ErrRegisteredNotSignedIn) {
		fmt.Fprintln(a.out, "Your account was created, but signing in failed. Run \"subtrack login\".")
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Account created. Signed in as %s.\n", identity.Email)
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	a.session.Logout()
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	identity, ok := a.session.CurrentIdentity()
	if !ok {
		return apiclient.ErrUnauthenticated
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	if identity.DisplayName != "" {
		fmt.Fprintf(tw, "Name:\t%s\n", identity.DisplayName)
	}
	fmt.Fprintf(tw, "Email:\t%s\n", identity.Email)
	fmt.Fprintf(tw, "Role:\t%s\n", identity.Role)
	if cred, ok := a.session.Credential(); ok && !cred.IssuedAt.IsZero() {
		fmt.Fprintf(tw, "Signed in:\t%s\n", humanize.Time(cred.IssuedAt))
	}
	return tw.Flush()
}

func runPlans(ctx context.Context, a *app, args []string) error {
	fs := newFlags("plans", a.out)
	yearly := fs.Bool("yearly", false, "show yearly prices")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cycle := pricing.Monthly
	if *yearly {
		cycle = pricing.Yearly
	}

	plans, err := a.subs.ListPlans(ctx)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Fprintln(a.out, "No plans available.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLAN\tPRICE\tBILLED\tFEATURES")
	for _, p := range plans {
		q := pricing.PriceFor(p, cycle)
		name := p.Name
		if p.Name == pricing.FeaturedPlan {
			name += " *"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.ID, name, perMonth(q), billed(q), strings.Join(p.Features, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if cycle == pricing.Yearly {
		fmt.Fprintf(a.out, "\nYearly billing saves %d%%.\n", pricing.DiscountPercent())
	}
	return nil
}

func perMonth(q pricing.Quote) string {
	if q.Free() {
		return "Free"
	}
	return humanize.Commaf(q.PerMonth) + "/month"
}

func billed(q pricing.Quote) string {
	if q.Free() {
		return "-"
	}
	return humanize.Commaf(q.Billed) + " " + string(q.Cycle)
}

func runStatus(ctx context.Context, a *app, args []string) error {
	sub, err := a.subs.GetCurrentSubscription(ctx)
	if err != nil {
		return err
	}
	printSubscription(a.out, sub)
	return nil
}

func printSubscription(w io.Writer, sub model.Subscription) {
	if !sub.Exists() {
		fmt.Fprintln(w, "No subscription.")
		printActions(w, sub)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Plan:\t%s\n", planLabel(sub))
	fmt.Fprintf(tw, "Status:\t%s\n", sub.Status)
	fmt.Fprintf(tw, "Started:\t%s\n", sub.StartDate)
	expiry := sub.ExpiryDate.String()
	if !sub.ExpiryDate.IsZero() {
		expiry += " (" + humanize.Time(sub.ExpiryDate.Time) + ")"
	}
	fmt.Fprintf(tw, "Expires:\t%s\n", expiry)
	fmt.Fprintf(tw, "Auto-renewal:\t%s\n", onOff(sub.AutoRenewal))
	tw.Flush()
	printActions(w, sub)
}

func planLabel(sub model.Subscription) string {
	if sub.PlanName != "" {
		return sub.PlanName
	}
	return "#" + strconv.FormatInt(sub.PlanID, 10)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printActions(w io.Writer, sub model.Subscription) {
	var hints []string
	for _, act := range subscription.AvailableActions(sub) {
		switch act {
		case subscription.ActionSubscribe:
			hints = append(hints, "subtrack subscribe PLAN_ID")
		case subscription.ActionUpgrade:
			hints = append(hints, "subtrack upgrade PLAN_ID")
		case subscription.ActionCancel:
			hints = append(hints, "subtrack cancel")
		case subscription.ActionRenew:
			hints = append(hints, "subtrack subscribe PLAN_ID (renew)")
		}
	}
	fmt.Fprintf(w, "\nNext: %s\n", strings.Join(hints, " | "))
}

func planArg(cmd string, args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: subtrack %s PLAN_ID", cmd)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid plan id %q", args[0])
	}
	return id, nil
}

func runSubscribe(ctx context.Context, a *app, args []string) error {
	id, err := planArg("subscribe", args)
	if err != nil {
		return err
	}
	sub, err := a.subs.Subscribe(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Subscribed.")
	printSubscription(a.out, sub)
	return nil
}

func runUpgrade(ctx context.Context, a *app, args []string) error {
	id, err := planArg("upgrade", args)
	if err != nil {
		return err
	}
	sub, err := a.subs.Upgrade(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Plan changed.")
	printSubscription(a.out, sub)
	return nil
}

func runCancel(ctx context.Context, a *app, args []string) error {
	fs := newFlags("cancel", a.out)
	yes := fs.BoolP("yes", "y", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.assumeYes = *yes

	err := a.subs.Cancel(ctx)
	if errors.Is(err, subscription.ErrDeclined) {
		fmt.Fprintln(a.out, "Cancellation aborted.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Subscription cancelled.")
	if sub, ok := a.subs.Current(); ok {
		printSubscription(a.out, sub)
	}
	return nil
}
