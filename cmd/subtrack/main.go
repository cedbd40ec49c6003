package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/dukerupert/subtrack/internal/apiclient"
	"github.com/dukerupert/subtrack/internal/config"
	"github.com/dukerupert/subtrack/internal/database"
	"github.com/dukerupert/subtrack/internal/logging"
	"github.com/dukerupert/subtrack/internal/session"
	"github.com/dukerupert/subtrack/internal/store"
	"github.com/dukerupert/subtrack/internal/subscription"
	"github.com/dukerupert/subtrack/internal/telemetry"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("subtrack", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(stderr)
	configPath := flags.StringP("config", "c", "", "YAML config file")
	logLevel := flags.String("log-level", "", "log level (overrides SUBTRACK_LOG_LEVEL)")
	flags.Usage = func() { printUsage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() == 0 {
		printUsage(stderr, flags)
		return 2
	}

	name := flags.Arg(0)
	cmd := findCommand(name)
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		printUsage(stderr, flags)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := logging.Setup(stderr, cfg.LogLevel)

	shutdown := telemetry.Setup(ctx, "subtrack", version, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	a, err := newApp(cfg, logger, stdin, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer a.Close()

	err = cmd.run(ctx, a, flags.Args()[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		logger.Debug("command failed", "command", name, "error", err)
		fmt.Fprintf(stderr, "error: %s\n", apiclient.UserMessage(err))
		if errors.Is(err, apiclient.ErrUnauthenticated) {
			fmt.Fprintln(stderr, "Run \"subtrack login\" to sign in.")
		}
		return 1
	}
	return 0
}

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: subtrack [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, flags.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprint(w, config.Usage())
}

// app holds everything a command needs.
type app struct {
	db        *sql.DB
	session   *session.Store
	subs      *subscription.Client
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool

	// passwordFd is the terminal passwords are read from with echo off, or
	// -1 when stdin is not a terminal.
	passwordFd   int
	readPassword func(fd int) ([]byte, error)
}

func newApp(cfg *config.Config, logger *slog.Logger, stdin io.Reader, stdout io.Writer) (*app, error) {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var kvOpts []store.Option
	if cfg.StoreKey != "" {
		sealer, err := store.NewSealer(cfg.StoreKey)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("store key: %w", err)
		}
		kvOpts = append(kvOpts, store.WithSealer(sealer))
	}

	api := apiclient.New(cfg.APIURL,
		apiclient.WithTimeout(cfg.RequestTimeout),
		apiclient.WithLogger(logger.With("component", "api")),
	)

	a := &app{
		db:           db,
		in:           bufio.NewReader(stdin),
		out:          stdout,
		passwordFd:   -1,
		readPassword: term.ReadPassword,
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		a.passwordFd = int(f.Fd())
	}
	a.session = session.New(store.NewKVStore(db, kvOpts...), api, logger.With("component", "session"))
	a.subs = subscription.NewClient(api, a.session,
		subscription.WithLogger(logger.With("component", "subscription")),
		subscription.WithConfirm(a.confirm),
	)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) confirm(ctx context.Context, prompt string) (bool, error) {
	if a.assumeYes {
		return true, nil
	}
	fmt.Fprintf(a.out, "%s [y/N] ", prompt)
	line, err := a.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// readLine reads one trimmed line. EOF after a partial line is not an error.
func (a *app) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// prompt returns value, or asks for it when it is empty.
func (a *app) prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(a.out, "%s: ", label)
	return a.readLine()
}

// promptSecret is prompt with echo disabled when stdin is a terminal. Piped
// input is read one line at a time.
func (a *app) promptSecret(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	if a.passwordFd < 0 {
		return a.prompt(label, "")
	}

	fmt.Fprintf(a.out, "%s: ", label)
	secret, err := a.readPassword(a.passwordFd)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return string(secret), nil
}
