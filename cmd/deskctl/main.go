// deskctl is a terminal ticket panel for the support-desk service. It lists,
// shows, opens and replies to tickets, and lets staff resolve or close them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/client"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/desk"
	"github.com/spec-kit/support-desk/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli{out: os.Stdout, newAPI: newHTTPAPI}
	if err := app.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// apiFactory builds the collaborator the panel talks to.
type apiFactory func(cfg config.ClientConfig, logger *zap.Logger) desk.API

func newHTTPAPI(cfg config.ClientConfig, logger *zap.Logger) desk.API {
	return client.New(client.Options{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Tokens:  client.StaticToken(cfg.Token),
		Logger:  logger,
	})
}

type cli struct {
	out    io.Writer
	newAPI apiFactory
}

type options struct {
	profile string
	baseURL string
	token   string
	admin   bool
	verbose bool

	status string
	query  string
	limit  int
	cursor string
	title  string
	text   string

	subject string
	email   string
	name    string
	role    string
}

func (c *cli) flagSet(opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("deskctl", pflag.ContinueOnError)
	flagSet.SetOutput(c.out)
	flagSet.StringVar(&opts.profile, "profile", defaultProfilePath(), "YAML profile with base_url, token, timeout and admin")
	flagSet.StringVar(&opts.baseURL, "base-url", "", "service base URL")
	flagSet.StringVar(&opts.token, "token", "", "bearer token")
	flagSet.BoolVar(&opts.admin, "admin", false, "act as staff")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log requests to stderr")

	flagSet.StringVar(&opts.status, "status", "", "list: status filter (ANY, OPEN, IN_PROGRESS, RESOLVED, CLOSED)")
	flagSet.StringVarP(&opts.query, "query", "q", "", "list: match title or snippet")
	flagSet.IntVar(&opts.limit, "limit", 0, "list: page size")
	flagSet.StringVar(&opts.cursor, "cursor", "", "list: continue from a previous page")
	flagSet.StringVar(&opts.title, "title", "", "create: ticket title")
	flagSet.StringVar(&opts.text, "text", "", "create, reply: message text")

	flagSet.StringVar(&opts.subject, "subject", "", "token: subject id")
	flagSet.StringVar(&opts.email, "email", "", "token: email")
	flagSet.StringVar(&opts.name, "name", "", "token: display name")
	flagSet.StringVar(&opts.role, "role", "USER", "token: USER or ADMIN")
	flagSet.Usage = func() { c.usage(flagSet) }
	return flagSet
}

func (c *cli) run(ctx context.Context, args []string) error {
	var opts options
	flagSet := c.flagSet(&opts)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		c.usage(flagSet)
		return errors.New("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	profile, err := config.LoadProfile(opts.profile)
	if err != nil {
		return err
	}
	if err := profile.Apply(&cfg.Client); err != nil {
		return err
	}
	if flagSet.Changed("base-url") {
		cfg.Client.BaseURL = opts.baseURL
	}
	if flagSet.Changed("token") {
		cfg.Client.Token = opts.token
	}
	if flagSet.Changed("admin") {
		cfg.Client.Admin = opts.admin
	}

	logCfg := config.LoggerConfig{Level: "warn", Encoding: "console", Output: "stderr"}
	if opts.verbose {
		logCfg.Level = "debug"
	}
	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	command, params := rest[0], rest[1:]
	if command == "token" {
		return c.mintToken(cfg.Auth, opts)
	}

	panel := newPanel(c.newAPI(cfg.Client, logger), cfg, logger)
	defer panel.Wait()

	switch command {
	case "list":
		return c.list(ctx, panel, cfg.Client.Admin, opts)
	case "show":
		id, err := oneArg(command, params)
		if err != nil {
			return err
		}
		return c.show(ctx, panel, cfg.Client.Admin, id)
	case "create":
		return c.create(ctx, panel, opts)
	case "reply":
		id, err := oneArg(command, params)
		if err != nil {
			return err
		}
		return c.reply(ctx, panel, id, opts.text)
	case "status":
		if len(params) != 2 {
			return fmt.Errorf("status expects <ticket-id> <RESOLVED|CLOSED>")
		}
		return c.changeStatus(ctx, panel, params[0], params[1])
	default:
		c.usage(flagSet)
		return fmt.Errorf("unknown command %q", command)
	}
}

func oneArg(command string, params []string) (string, error) {
	if len(params) != 1 {
		return "", fmt.Errorf("%s expects exactly one ticket id", command)
	}
	return params[0], nil
}

func defaultProfilePath() string {
	if path := os.Getenv("DESK_PROFILE"); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "deskctl", "profile.yaml")
}

func (c *cli) usage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(c.out, `Usage: deskctl [flags] <command> [args]

Commands:
  list                       list tickets (--status, --query, --limit, --cursor)
  show <id>                  show a ticket and its conversation
  create --title --text      open a ticket
  reply <id> --text          reply to a ticket
  status <id> <status>       staff only: set RESOLVED or CLOSED
  token                      mint a development token (--subject, --email, --role)

Flags:
%s`, flagSet.FlagUsages())
}
