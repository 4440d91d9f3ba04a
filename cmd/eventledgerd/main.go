package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/eventledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/eventledger/internal/metrics"
	"github.com/MarkoPoloResearchLab/eventledger/internal/oplog"
	"github.com/MarkoPoloResearchLab/eventledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/eventledger/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/eventledger/internal/store/rediscache"
	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errDriftDetected = errors.New("wallet drift detected")

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eventledgerd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "eventledgerd",
		Short:         "Event wallet ledger and commission engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "postgres:// URL, sqlite:// URL or SQLite file path")
	cmd.AddCommand(newServeCommand(), newExpireCommand(), newReconcileCommand(), newMigrateCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the wallet HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
	flags := cmd.Flags()
	flags.String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	flags.String(flagAllowedOrigins, defaultAllowedOrigins, "comma-separated CORS origins")
	flags.String(flagJWTSigningKey, "", "HS256 key of session tokens")
	flags.String(flagJWTIssuer, defaultJWTIssuer, "expected session token issuer")
	flags.String(flagJWTCookieName, defaultJWTCookieName, "session cookie name")
	flags.String(flagRedisAddr, "", "Redis address for idempotent responses (disabled when empty)")
	flags.Duration(flagIdempotencyTTL, defaultIdempotencyTTL, "how long idempotent responses are replayed")
	flags.Int64(flagTicketCommissionPercent, defaultTicketCommissionPercent, "platform share of ticket sales")
	flags.Uint(flagMaxConflictAttempts, defaultMaxConflictAttempts, "optimistic retries per wallet posting")
	flags.Duration(flagRequestTimeout, defaultRequestTimeout, "per-request timeout")
	flags.Float64(flagRateLimitRPS, defaultRateLimitRPS, "POST requests per second per user")
	flags.Int(flagRateLimitBurst, defaultRateLimitBurst, "POST burst per user")
	return cmd
}

func newExpireCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire elapsed boosts and premium subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL, err := loadDatabaseURL(cmd)
			if err != nil {
				return err
			}
			interval, err := cmd.Flags().GetDuration(flagInterval)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runExpiry(ctx, databaseURL, interval)
		},
	}
	cmd.Flags().Duration(flagInterval, 0, "repeat the sweep at this interval (0 runs once)")
	return cmd
}

func newReconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Report wallet drift and recorded compensation failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL, err := loadDatabaseURL(cmd)
			if err != nil {
				return err
			}
			since, err := cmd.Flags().GetDuration(flagSince)
			if err != nil {
				return err
			}
			limit, err := cmd.Flags().GetInt(flagLimit)
			if err != nil {
				return err
			}
			failOnDrift, err := cmd.Flags().GetBool(flagFailOnDrift)
			if err != nil {
				return err
			}
			return runReconcile(cmd.Context(), cmd.OutOrStdout(), databaseURL, since, limit, failOnDrift)
		},
	}
	cmd.Flags().Duration(flagSince, defaultReconcileWindow, "compensation failure lookback window")
	cmd.Flags().Int(flagLimit, defaultReconcileLimit, "maximum compensation failures to list")
	cmd.Flags().Bool(flagFailOnDrift, false, "exit non-zero when any wallet drifts")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL, err := loadDatabaseURL(cmd)
			if err != nil {
				return err
			}
			gormDB, cleanup, _, err := gormstore.Open(cmd.Context(), databaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer cleanup()
			if err := gormstore.Migrate(cmd.Context(), gormDB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func runServer(ctx context.Context, cfg runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := gormstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()
	if driver == gormstore.DriverSQLite {
		if err := gormstore.Migrate(ctx, gormDB); err != nil {
			return err
		}
	}

	recorder := metrics.New()
	commission, err := ledger.NewPercent(cfg.TicketCommissionPercent)
	if err != nil {
		return fmt.Errorf("ticket commission: %w", err)
	}
	service, err := newService(gormDB,
		ledger.WithOperationLogger(oplog.New(logger)),
		ledger.WithOperationLogger(recorder),
		ledger.WithTicketCommissionPercent(commission),
		ledger.WithMaxConflictAttempts(cfg.MaxConflictAttempts),
	)
	if err != nil {
		return err
	}

	deps := httpapi.Dependencies{Service: service, Logger: logger, Metrics: recorder}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		deps.Idempotency = rediscache.New(client, cfg.IdempotencyTTL, 0)
	}
	return httpapi.Run(ctx, cfg.HTTP, deps)
}

func runExpiry(ctx context.Context, databaseURL string, interval time.Duration) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, _, err := gormstore.Open(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()
	service, err := newService(gormDB, ledger.WithOperationLogger(oplog.New(logger)))
	if err != nil {
		return err
	}

	sweep := func() error {
		now := time.Now().UTC().Unix()
		boosts, err := service.ExpireBoosts(ctx, now)
		if err != nil {
			return fmt.Errorf("expire boosts: %w", err)
		}
		subscriptions, err := service.ExpireSubscriptions(ctx, now)
		if err != nil {
			return fmt.Errorf("expire subscriptions: %w", err)
		}
		logger.Info("expiry sweep", zap.Int64("boosts", boosts), zap.Int64("subscriptions", subscriptions))
		return nil
	}
	if interval <= 0 {
		return sweep()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := sweep(); err != nil {
			logger.Error("expiry sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type reconcileReport struct {
	Drift                []driftRow        `json:"drift"`
	CompensationFailures []compensationRow `json:"compensation_failures"`
}

type driftRow struct {
	WalletID  string `json:"wallet_id"`
	OwnerID   string `json:"owner_id"`
	Kind      string `json:"kind"`
	Balance   string `json:"balance"`
	LedgerSum string `json:"ledger_sum"`
}

type compensationRow struct {
	ID             string `json:"id"`
	Flow           string `json:"flow"`
	Step           string `json:"step"`
	ReferenceID    string `json:"reference_id"`
	Cause          string `json:"cause"`
	Error          string `json:"error"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

func runReconcile(ctx context.Context, out io.Writer, databaseURL string, since time.Duration, limit int, failOnDrift bool) error {
	reader, cleanup, err := openReconciliationReader(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer cleanup()

	drifts, err := reader.WalletDrift(ctx)
	if err != nil {
		return err
	}
	sinceUnixUTC := time.Now().UTC().Add(-since).Unix()
	failures, err := reader.CompensationFailures(ctx, sinceUnixUTC, limit)
	if err != nil {
		return err
	}

	report := reconcileReport{Drift: []driftRow{}, CompensationFailures: []compensationRow{}}
	for _, drift := range drifts {
		report.Drift = append(report.Drift, driftRow{
			WalletID:  drift.WalletID.String(),
			OwnerID:   drift.OwnerID.String(),
			Kind:      string(drift.Kind),
			Balance:   drift.BalanceCents.String(),
			LedgerSum: drift.LedgerSumCents.String(),
		})
	}
	for _, failure := range failures {
		report.CompensationFailures = append(report.CompensationFailures, compensationRow(failure))
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if failOnDrift && len(drifts) > 0 {
		return fmt.Errorf("%w: %d wallet(s)", errDriftDetected, len(drifts))
	}
	return nil
}

// openReconciliationReader reads Postgres through a pgx pool and SQLite through gorm.
func openReconciliationReader(ctx context.Context, databaseURL string) (ledger.ReconciliationReader, func(), error) {
	driver, _, err := gormstore.ResolveDriver(databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if driver == gormstore.DriverPostgres {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pgx pool: %w", err)
		}
		return pgstore.New(pool), pool.Close, nil
	}
	gormDB, cleanup, _, err := gormstore.Open(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	return gormstore.New(gormDB), func() { _ = cleanup() }, nil
}

func newService(gormDB *gorm.DB, options ...ledger.ServiceOption) (*ledger.Service, error) {
	store := gormstore.New(gormDB)
	catalog := gormstore.NewCatalog(gormDB)
	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := ledger.NewService(store, ledger.Catalogs{Events: catalog, Plans: catalog, BoostPrices: catalog}, clock, options...)
	if err != nil {
		return nil, fmt.Errorf("ledger service init: %w", err)
	}
	return service, nil
}
