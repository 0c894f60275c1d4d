package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/redkey-web/DewaterQuote-sub003/cmd/dewaterctl/ops"
	"github.com/redkey-web/DewaterQuote-sub003/internal/app"
	"github.com/redkey-web/DewaterQuote-sub003/internal/platform/db"
	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
	"github.com/redkey-web/DewaterQuote-sub003/jobs"
	"github.com/redkey-web/DewaterQuote-sub003/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dewaterctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dewaterctl",
		Usage: "operate the Dewater quote service",
		Commands: []*cli.Command{
			migrateCommand(),
			adminCommand(),
			quotesCommand(),
			jobsCommand(),
		},
	}
}

func loadEnv() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}

// withContainer builds the full service graph for commands that need it.
func withContainer(cCtx *cli.Context, fn func(*app.Container) error) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	c, err := app.Build(cCtx.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func migrateCommand() *cli.Command {
	run := func(fn func(*db.Migrator) error) cli.ActionFunc {
		return func(cCtx *cli.Context) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			m, err := db.NewMigrator(migrations.FS, cfg.PGDSN, logger)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return fn(m)
		}
	}
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply or roll back schema migrations",
		Subcommands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "apply every pending migration",
				Action: run(func(m *db.Migrator) error { return m.Up() }),
			},
			{
				Name:  "down",
				Usage: "roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
				},
				Action: func(cCtx *cli.Context) error {
					steps := cCtx.Int("steps")
					if steps <= 0 {
						return cli.Exit("--steps must be positive", 2)
					}
					return run(func(m *db.Migrator) error { return m.Steps(-steps) })(cCtx)
				},
			},
			{
				Name:  "version",
				Usage: "print the applied schema version",
				Action: run(func(m *db.Migrator) error {
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					fmt.Printf("version %d dirty=%t\n", v, dirty)
					return nil
				}),
			},
		},
	}
}

func adminCommand() *cli.Command {
	passwordFlag := &cli.StringFlag{
		Name:     "password",
		Usage:    "new password, at least 12 characters",
		EnvVars:  []string{"DEWATER_ADMIN_PASSWORD"},
		Required: true,
	}
	return &cli.Command{
		Name:  "admin",
		Usage: "manage admin accounts",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create an admin account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					passwordFlag,
				},
				Action: func(cCtx *cli.Context) error {
					return withContainer(cCtx, func(c *app.Container) error {
						user, err := c.Auth.CreateAdmin(cCtx.Context, cCtx.String("email"), cCtx.String("name"), cCtx.String("password"))
						if err != nil {
							return err
						}
						fmt.Printf("created admin %d <%s>\n", user.ID, user.Email)
						return nil
					})
				},
			},
			{
				Name:  "reset-password",
				Usage: "set a new password for an admin account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					passwordFlag,
				},
				Action: func(cCtx *cli.Context) error {
					return withContainer(cCtx, func(c *app.Container) error {
						if err := c.Auth.ResetPassword(cCtx.Context, cCtx.String("email"), cCtx.String("password")); err != nil {
							return err
						}
						fmt.Println("password updated")
						return nil
					})
				},
			},
		},
	}
}

func quotesCommand() *cli.Command {
	return &cli.Command{
		Name:  "quotes",
		Usage: "export and send quotes",
		Subcommands: []*cli.Command{
			{
				Name:  "export",
				Usage: "write matching quotes to an xlsx workbook",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Value: fmt.Sprintf("quotes-%s.xlsx", time.Now().Format("20060102"))},
					&cli.StringFlag{Name: "status", Usage: "only quotes in this status"},
					&cli.StringFlag{Name: "q", Usage: "search number, company, contact or email"},
					&cli.BoolFlag{Name: "deleted", Usage: "include soft deleted quotes"},
				},
				Action: func(cCtx *cli.Context) error {
					return withContainer(cCtx, func(c *app.Container) error {
						filter := quotes.ListFilter{
							Status:         quotes.Status(strings.TrimSpace(cCtx.String("status"))),
							Search:         strings.TrimSpace(cCtx.String("q")),
							IncludeDeleted: cCtx.Bool("deleted"),
						}
						out := cCtx.String("out")
						n, err := ops.ExportQuotes(cCtx.Context, c.Quotes, filter, c.Config.Location(), out)
						if err != nil {
							return err
						}
						fmt.Printf("wrote %d quotes to %s\n", n, out)
						return nil
					})
				},
			},
			{
				Name:  "send",
				Usage: "send a quote to its customer as the system",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id", Required: true},
					&cli.StringFlag{Name: "shipping", Usage: "shipping cost override in dollars"},
					&cli.StringFlag{Name: "message", Usage: "custom message for the customer email"},
					&cli.BoolFlag{Name: "queue", Usage: "enqueue for the worker instead of sending inline"},
				},
				Action: sendQuote,
			},
		},
	}
}

func sendQuote(cCtx *cli.Context) error {
	var shipping *decimal.Decimal
	if raw := strings.TrimSpace(cCtx.String("shipping")); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			return cli.Exit(fmt.Sprintf("invalid --shipping %q", raw), 2)
		}
		shipping = &d
	}
	id := cCtx.Int64("id")
	message := cCtx.String("message")

	return withContainer(cCtx, func(c *app.Container) error {
		if cCtx.Bool("queue") {
			redisOpt, err := c.AsynqRedis()
			if err != nil {
				return err
			}
			helper := ops.NewJobsCLI(redisOpt)
			defer func() { _ = helper.Close() }()
			info, err := helper.EnqueueSend(cCtx.Context, jobs.QuoteSendPayload{QuoteID: id, ShippingCost: shipping, CustomMessage: message})
			if err != nil {
				return err
			}
			fmt.Printf("queued %s on %s\n", info.ID, info.Queue)
			return nil
		}
		res, err := c.Quotes.Send(cCtx.Context, quotes.SystemAuthorization{QuoteID: id}, quotes.SendRequest{
			ShippingCost:  shipping,
			CustomMessage: message,
		})
		if err != nil {
			if errors.Is(err, quotes.ErrNotFound) {
				return cli.Exit(fmt.Sprintf("quote %d not found", id), 1)
			}
			return err
		}
		fmt.Printf("%s: %s\n", res.QuoteNumber, res.Message)
		return nil
	})
}

func jobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "inspect and trigger background jobs",
		Subcommands: []*cli.Command{
			{
				Name:  "reconcile",
				Usage: "settle stale send attempts",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50},
					&cli.BoolFlag{Name: "enqueue", Usage: "hand the pass to the worker"},
				},
				Action: func(cCtx *cli.Context) error {
					return withContainer(cCtx, func(c *app.Container) error {
						if cCtx.Bool("enqueue") {
							redisOpt, err := c.AsynqRedis()
							if err != nil {
								return err
							}
							client := jobs.NewClient(redisOpt)
							defer func() { _ = client.Close() }()
							info, err := client.EnqueueReconcile(cCtx.Context, cCtx.Int("limit"))
							if err != nil {
								return err
							}
							fmt.Printf("queued %s\n", info.ID)
							return nil
						}
						res, err := c.Quotes.Reconcile(cCtx.Context, cCtx.Int("limit"))
						if err != nil {
							return err
						}
						fmt.Printf("reconciled: scanned=%d finalized=%d stalled=%d skipped=%d failed=%d\n", res.Scanned, res.Finalized, res.Stalled, res.Skipped, res.Failed)
						return nil
					})
				},
			},
			{
				Name:  "trigger",
				Usage: "enqueue a scheduled job now",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Required: true, Usage: jobs.TaskReconcileStale + " or " + jobs.TaskPurgeProcessedKeys},
				},
				Action: func(cCtx *cli.Context) error {
					cfg, _, err := loadEnv()
					if err != nil {
						return err
					}
					redisOpt, err := app.AsynqRedisOpt(cfg.RedisAddr)
					if err != nil {
						return err
					}
					helper := ops.NewJobsCLI(redisOpt)
					defer func() { _ = helper.Close() }()
					info, err := helper.Trigger(cCtx.Context, cCtx.String("type"))
					if err != nil {
						return err
					}
					fmt.Printf("queued %s on %s\n", info.ID, info.Queue)
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "print queue depth",
				Action: func(cCtx *cli.Context) error {
					cfg, _, err := loadEnv()
					if err != nil {
						return err
					}
					redisOpt, err := app.AsynqRedisOpt(cfg.RedisAddr)
					if err != nil {
						return err
					}
					helper := ops.NewJobsCLI(redisOpt)
					defer func() { _ = helper.Close() }()
					stats, err := helper.InspectQueues(cCtx.Context)
					if err != nil {
						return err
					}
					for _, s := range stats {
						fmt.Printf("%-9s pending=%d active=%d scheduled=%d retry=%d archived=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
					}
					return nil
				},
			},
		},
	}
}
