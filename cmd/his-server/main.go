package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/his/his/internal/config"
	"github.com/his/his/internal/domain/identity"
	"github.com/his/his/internal/domain/records"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/events"
	"github.com/his/his/internal/platform/telemetry"
	"github.com/his/his/internal/platform/webhook"
	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "his-server",
		Short: "Hospital information system API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HIS API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				migrator := db.NewMigrator(pool, migrationsDir(dir, cfg))
				count, err := migrator.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, migrationsDir(dir, cfg)).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(os.Stdout, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage console user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			roleFlag, _ := cmd.Flags().GetString("role")

			role, ok := access.ParseRole(roleFlag)
			if !ok {
				return fmt.Errorf("unknown role %q", roleFlag)
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				svc := identity.NewService(identity.NewAccountRepo(pool), nil)
				acct, err := svc.CreateAccount(ctx, hisapi.InviteRequest{
					Username: username,
					Password: password,
					Name:     name,
					Email:    email,
					Role:     role,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Created user %s (%s) with role %s.\n", acct.Username, acct.ID, acct.Role)
				return nil
			})
		},
	}
	createCmd.Flags().String("username", "", "Login name")
	createCmd.Flags().String("password", "", "Initial password")
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("email", "", "Email address")
	createCmd.Flags().String("role", "", "Role, e.g. admin or \"Lab Technician\"")
	for _, f := range []string{"username", "password", "name", "email", "role"} {
		_ = createCmd.MarkFlagRequired(f)
	}
	cmd.AddCommand(createCmd)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the users listed in a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				svc := identity.NewService(identity.NewAccountRepo(pool), nil).
					WithTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
						return db.WithinTx(ctx, pool, fn)
					})
				n, err := svc.SeedFromFile(ctx, file)
				if err != nil {
					return err
				}
				fmt.Printf("Seeded %d user(s).\n", n)
				return nil
			})
		},
	}
	seedCmd.Flags().String("file", "users.yaml", "YAML users file")
	cmd.AddCommand(seedCmd)

	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	checks := []db.Check{db.PoolCheck(pool)}

	// Token revocation is shared through Redis when configured so that a
	// logout on one replica is honoured by all of them.
	var revocations auth.RevocationStore
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		revocations = auth.NewRedisRevocationStore(rdb, cfg.TokenTTL)
		checks = append(checks, db.RedisCheck(rdb))
		logger.Info().Msg("using redis token revocation")
	} else {
		mem := auth.NewMemoryRevocationStore(cfg.TokenTTL)
		defer mem.Close()
		revocations = mem
	}

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    "his-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		SampleRate:     cfg.OTelSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up telemetry")
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()
	if err := tel.ObservePool(func() *db.PoolStats { return db.GetPoolStats(pool) }); err != nil {
		logger.Fatal().Err(err).Msg("failed to register pool metrics")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		publisher = p
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing record events")
	}
	if len(cfg.WebhookURLs) > 0 {
		endpoints := make([]webhook.Endpoint, len(cfg.WebhookURLs))
		for i, u := range cfg.WebhookURLs {
			endpoints[i] = webhook.Endpoint{URL: u, Secret: cfg.WebhookSecret, Events: cfg.WebhookEvents}
		}
		hooks, err := webhook.NewPublisher(endpoints, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid webhook configuration")
		}
		publisher = events.Fanout(publisher, hooks)
		logger.Info().Int("endpoints", len(endpoints)).Msg("forwarding record events to webhooks")
	}
	publisher = tel.CountingPublisher(publisher)
	defer publisher.Close()

	identitySvc := identity.NewService(identity.NewAccountRepo(pool), revocations).
		WithTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithinTx(ctx, pool, fn)
		})
	recordsSvc := records.NewService(records.NewDocumentRepo(pool), records.DefaultRegistry(), publisher, logger)

	e := newRouter(routerDeps{
		cfg:         cfg,
		logger:      logger,
		issuer:      auth.NewIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL),
		revocations: revocations,
		identity:    identitySvc,
		records:     recordsSvc,
		poolStats:   func() *db.PoolStats { return db.GetPoolStats(pool) },
		checks:      checks,
		telemetry:   tel,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
