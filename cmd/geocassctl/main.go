// Command geocassctl runs administrative tasks against the GeoCass database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/hearthweave/geocass/internal/auth"
	"github.com/hearthweave/geocass/internal/config"
	"github.com/hearthweave/geocass/internal/database"
	"github.com/hearthweave/geocass/internal/repository"
)

const usage = `usage: geocassctl <command> [flags]

commands:
  migrate                                   apply database migrations
  create-account -username U -email E       create an account (password from GEOCASS_PASSWORD or prompt)
  issue-key -username U [-label L] [-ttl D] issue an API key and print it once
  rebuild-tags                              recompute directory tag counts
`

// passwordEnv is read before prompting so the tool can run unattended.
const passwordEnv = config.EnvPrefix + "PASSWORD"

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "geocassctl:", err)
		}
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	db     *database.DB
	log    *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	var fn func(context.Context, *app, []string) error
	switch cmd {
	case "migrate":
		fn = cmdMigrate
	case "create-account":
		fn = cmdCreateAccount
	case "issue-key":
		fn = cmdIssueKey
	case "rebuild-tags":
		fn = cmdRebuildTags
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	a := &app{cfg: cfg, db: db, log: log, stdout: stdout, stderr: stderr}
	return fn(ctx, a, rest)
}

func (a *app) authService() auth.Service {
	return auth.NewService(repository.NewAccountRepo(a.db), repository.NewAPIKeyRepo(a.db), auth.Options{
		KeyPrefix:   a.cfg.APIKeyPrefix,
		LoginKeyTTL: a.cfg.LoginKeyTTL,
	}, a.log)
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func cmdMigrate(ctx context.Context, a *app, args []string) error {
	if err := a.flags("migrate").Parse(args); err != nil {
		return errUsage
	}
	if err := a.db.Migrate(ctx, a.log); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "migrations applied")
	return nil
}

func cmdCreateAccount(ctx context.Context, a *app, args []string) error {
	fs := a.flags("create-account")
	username := fs.String("username", "", "account username")
	email := fs.String("email", "", "account email")
	displayName := fs.String("display-name", "", "display name (defaults to username)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *username == "" || *email == "" {
		fs.Usage()
		return errUsage
	}

	password, err := a.password()
	if err != nil {
		return err
	}
	if err := a.db.Migrate(ctx, a.log); err != nil {
		return err
	}
	acc, err := a.authService().Register(ctx, auth.RegisterInput{
		Username:    *username,
		Email:       *email,
		Password:    password,
		DisplayName: *displayName,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "created account %s (%s)\n", acc.Username, acc.ID)
	return nil
}

func cmdIssueKey(ctx context.Context, a *app, args []string) error {
	fs := a.flags("issue-key")
	username := fs.String("username", "", "account username")
	label := fs.String("label", "geocassctl", "key label")
	ttl := fs.Duration("ttl", 0, "key lifetime, e.g. 720h (0 never expires)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *username == "" || *ttl < 0 {
		fs.Usage()
		return errUsage
	}

	acc, err := repository.NewAccountRepo(a.db).GetByUsername(ctx, *username)
	if err != nil {
		return fmt.Errorf("look up %q: %w", *username, err)
	}
	issued, err := a.authService().IssueKey(ctx, acc.ID, *label, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, issued.Plaintext)
	if issued.Key.ExpiresAt != nil {
		fmt.Fprintf(a.stderr, "key %s expires at %s\n", issued.Key.KeyPrefix, issued.Key.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func cmdRebuildTags(ctx context.Context, a *app, args []string) error {
	if err := a.flags("rebuild-tags").Parse(args); err != nil {
		return errUsage
	}
	dir := repository.NewDirectoryRepo(a.db)
	if err := dir.RebuildTagCounts(ctx); err != nil {
		return err
	}
	tags, err := dir.PopularTags(ctx, 10)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "rebuilt tag counts (%d top tags)\n", len(tags))
	for _, t := range tags {
		fmt.Fprintf(a.stdout, "  %-32s %d\n", t.Tag, t.Count)
	}
	return nil
}

// password reads the new account password from the environment, or prompts
// twice on a terminal.
func (a *app) password() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; set %s", passwordEnv)
	}

	fmt.Fprint(a.stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(a.stderr)
	if err != nil {
		return "", err
	}
	fmt.Fprint(a.stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(a.stderr)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return strings.TrimRight(string(first), "\r\n"), nil
}
