package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/database"
	"github.com/noah-isme/modengine-api/internal/dto"
	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/repository"
	"github.com/noah-isme/modengine-api/internal/service"
)

type dbOpener func(dsn string) (*gorm.DB, error)

func main() {
	app := newApp(database.ConnectPostgres, os.Stdout)
	app.RunAndExitOnError()
}

func newApp(open dbOpener, out io.Writer) *cli.App {
	app := &cli.App{
		Name:      "modctl",
		Usage:     "operate the moderation engine from the command line",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "postgres DSN",
				EnvVars: []string{"MODENGINE_DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "redis URL used to invalidate the stats cache",
				EnvVars: []string{"MODENGINE_REDIS_URL"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log engine activity to stderr",
			},
		},
	}

	caseFlag := func() cli.Flag {
		return &cli.UintFlag{Name: "case", Usage: "moderation case id", Required: true}
	}
	adminFlag := func() cli.Flag {
		return &cli.UintFlag{Name: "admin", Usage: "acting admin id", Required: true}
	}

	app.Commands = []*cli.Command{
		{
			Name:  "migrate",
			Usage: "create or update the moderation tables",
			Action: func(cctx *cli.Context) error {
				db, err := openDB(cctx, open)
				if err != nil {
					return err
				}
				if err := db.AutoMigrate(models.All()...); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(cctx.App.Writer, "migration complete")
				return nil
			},
		},
		{
			Name:  "claim",
			Usage: "claim a pending case for review",
			Flags: []cli.Flag{caseFlag(), adminFlag()},
			Action: func(cctx *cli.Context) error {
				eng, err := newEngine(cctx, open)
				if err != nil {
					return err
				}
				result, err := eng.resolver.Claim(cctx.Context, cctx.Uint("case"), cliActor(cctx))
				if err != nil {
					return err
				}
				return printJSON(cctx.App.Writer, result)
			},
		},
		{
			Name:  "resolve",
			Usage: "resolve a case with a decision",
			Flags: []cli.Flag{
				caseFlag(),
				adminFlag(),
				&cli.StringFlag{Name: "resolution", Usage: "warn, remove, suspend, dismiss, approve or reject", Required: true},
				&cli.StringFlag{Name: "notes", Usage: "reviewer notes"},
			},
			Action: func(cctx *cli.Context) error {
				eng, err := newEngine(cctx, open)
				if err != nil {
					return err
				}
				result, err := eng.resolver.Resolve(cctx.Context, cctx.Uint("case"), cliActor(cctx), dto.ResolveCaseRequest{
					Resolution: cctx.String("resolution"),
					Notes:      cctx.String("notes"),
				})
				if err != nil {
					return err
				}
				return printJSON(cctx.App.Writer, result)
			},
		},
		{
			Name:  "stats",
			Usage: "print case counts by status and reason",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "kind", Usage: "restrict to one case kind"},
			},
			Action: func(cctx *cli.Context) error {
				eng, err := newEngine(cctx, open)
				if err != nil {
					return err
				}
				result, err := eng.query.Stats(cctx.Context, cctx.String("kind"))
				if err != nil {
					return err
				}
				return printJSON(cctx.App.Writer, result)
			},
		},
		{
			Name:  "audit",
			Usage: "inspect the audit log",
			Subcommands: []*cli.Command{
				{
					Name:  "verify",
					Usage: "verify the hash chain of one target",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "target-type", Value: service.AuditTargetCase},
						&cli.StringFlag{Name: "target-id", Required: true},
					},
					Action: func(cctx *cli.Context) error {
						eng, err := newEngine(cctx, open)
						if err != nil {
							return err
						}
						result, err := eng.audit.Verify(cctx.Context, cctx.String("target-type"), cctx.String("target-id"))
						if err != nil {
							return err
						}
						if err := printJSON(cctx.App.Writer, result); err != nil {
							return err
						}
						if !result.Valid {
							return cli.Exit("audit chain broken", 2)
						}
						return nil
					},
				},
			},
		},
	}

	return app
}

type engine struct {
	resolver service.CaseResolver
	query    service.CaseQueryService
	audit    service.AuditService
}

func newEngine(cctx *cli.Context, open dbOpener) (*engine, error) {
	db, err := openDB(cctx, open)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if cctx.Bool("verbose") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	var redisClient *redis.Client
	if url := cctx.String("redis-url"); url != "" {
		redisClient, err = database.ConnectRedis(url)
		if err != nil {
			return nil, err
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	store := repository.NewModerationStore(db)
	auditService := service.NewAuditService(store.Audit(), logger)
	query := service.NewCaseQueryService(store.Cases(), redisClient, 0, logger)

	// Notifications stay in the database; the API process owns broker delivery.
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), validate, logger, service.NotificationConfig{})

	resolver := service.NewCaseResolver(service.CaseResolverDeps{
		Store:         store,
		Audit:         auditService,
		Notifications: notifications,
		Stats:         query,
	}, validate, logger)

	return &engine{resolver: resolver, query: query, audit: auditService}, nil
}

func openDB(cctx *cli.Context, open dbOpener) (*gorm.DB, error) {
	dsn := cctx.String("database-url")
	if dsn == "" {
		return nil, cli.Exit("--database-url or MODENGINE_DATABASE_URL is required", 1)
	}
	return open(dsn)
}

func cliActor(cctx *cli.Context) service.Actor {
	return service.Actor{ID: cctx.Uint("admin"), Role: "admin", IP: "cli"}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
