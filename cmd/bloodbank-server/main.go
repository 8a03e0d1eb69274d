package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bloodlink/bloodlink/internal/config"
	"github.com/bloodlink/bloodlink/internal/domain/donation"
	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/domain/emergency"
	"github.com/bloodlink/bloodlink/internal/domain/inventory"
	"github.com/bloodlink/bloodlink/internal/domain/request"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/internal/platform/notification"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
	"github.com/bloodlink/bloodlink/pkg/pagination"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bloodbank-server",
		Short: "Blood inventory ledger and donor matching engine",
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(inventoryCmd())
	rootCmd.AddCommand(stockCmd())
	rootCmd.AddCommand(donorsCmd())
	rootCmd.AddCommand(healthCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, "bloodbank-server", cfg.DBMaxConns, cfg.DBMinConns)
}

// logEmailSender and logSMSSender stand in for real delivery providers,
// which sit outside this service. Alerts are logged, not transmitted.
type logEmailSender struct{ logger zerolog.Logger }

func (s *logEmailSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.logger.Info().Str("to", to).Str("subject", subject).Msg("email alert")
	return nil
}

type logSMSSender struct{ logger zerolog.Logger }

func (s *logSMSSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().Str("to", to).Str("body", body).Msg("sms alert")
	return nil
}

// services is the wired object graph shared by the CLI commands.
type services struct {
	donors      *donor.Service
	inventory   *inventory.Service
	requests    *request.Service
	emergencies *emergency.Service
	donations   *donation.Service
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *services {
	donorRepo := donor.NewRepoPG(pool)
	defaults := inventory.Thresholds{
		Critical: cfg.StockCritical,
		Low:      cfg.StockLow,
		Good:     cfg.StockGood,
	}
	invRepo := inventory.NewRepoPG(pool, defaults)
	reqRepo := request.NewRepoPG(pool)
	emRepo := emergency.NewRepoPG(pool)
	donationRepo := donation.NewRepoPG(pool)

	var alerts emergency.AlertSender
	if cfg.AlertsEnabled {
		alerts = notification.NewManager(
			&logEmailSender{logger: logger},
			&logSMSSender{logger: logger},
			notification.NewTemplateEngine(),
		)
	}

	invSvc := inventory.NewService(invRepo, alerts, cfg.StockAlertRecipient, logger)
	reqSvc := request.NewService(reqRepo, donorRepo, alerts, cfg.AlertChannel, logger)
	emSvc := emergency.NewService(emRepo, donorRepo, alerts, cfg.AlertChannel, logger)
	return &services{
		donors:      donor.NewService(donorRepo),
		inventory:   invSvc,
		requests:    reqSvc,
		emergencies: emSvc,
		donations:   donation.NewService(donationRepo, donorRepo, invSvc, reqSvc, emSvc, alerts, cfg.AlertChannel, logger),
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

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// sweepCmd runs the expiry sweeps: batches past their expiry date,
// requests past required-by, emergencies past their window, and missed
// donation appointments. One-shot by default, periodic with --loop.
func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the expiry sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			loop, _ := cmd.Flags().GetBool("loop")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svcs := newServices(cfg, pool, logger)
			if !loop {
				return runSweep(ctx, svcs, logger)
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info().Dur("interval", cfg.SweepInterval).Msg("sweep loop started")
			ticker := time.NewTicker(cfg.SweepInterval)
			defer ticker.Stop()
			for {
				if err := runSweep(ctx, svcs, logger); err != nil {
					logger.Error().Err(err).Msg("sweep run failed")
				}
				select {
				case <-ctx.Done():
					logger.Info().Msg("sweep loop stopped")
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().Bool("loop", false, "Keep sweeping on the configured interval")
	return cmd
}

func runSweep(ctx context.Context, svcs *services, logger zerolog.Logger) error {
	report, err := svcs.inventory.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("inventory sweep: %w", err)
	}
	expiredRequests, err := svcs.requests.ExpireOverdue(ctx)
	if err != nil {
		return fmt.Errorf("request sweep: %w", err)
	}
	expiredEmergencies, err := svcs.emergencies.ExpireOverdue(ctx)
	if err != nil {
		return fmt.Errorf("emergency sweep: %w", err)
	}
	missed, err := svcs.donations.ExpireOverdue(ctx, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("donation sweep: %w", err)
	}

	logger.Info().
		Int("expired_units", report.TotalUnits).
		Int("expired_requests", expiredRequests).
		Int("expired_emergencies", expiredEmergencies).
		Int("missed_donations", missed).
		Msg("sweep completed")
	return nil
}

func inventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Inspect the inventory ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show stock levels for all blood types",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svcs := newServices(cfg, pool, newLogger(cfg))
			reports, err := svcs.inventory.Report(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("%-6s %-10s %-9s %s\n", "TYPE", "AVAILABLE", "EXPIRED", "STATUS")
			for _, r := range reports {
				fmt.Printf("%-6s %-10d %-9d %s\n", r.BloodType, r.AvailableUnits, r.ExpiredUnits, r.Status)
			}
			return nil
		},
	})

	return cmd
}

func stockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Add or remove blood units",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a batch of units",
		RunE: func(cmd *cobra.Command, args []string) error {
			typeArg, _ := cmd.Flags().GetString("type")
			units, _ := cmd.Flags().GetInt("units")
			days, _ := cmd.Flags().GetInt("expiry-days")
			location, _ := cmd.Flags().GetString("location")

			bt, err := bloodtype.Parse(typeArg)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svcs := newServices(cfg, pool, newLogger(cfg))
			var loc *string
			if location != "" {
				loc = &location
			}
			batch, available, err := svcs.inventory.AddStock(ctx, bt, units,
				time.Now().AddDate(0, 0, days), nil, loc)
			if err != nil {
				return err
			}
			fmt.Printf("Added batch %s; %d %s unit(s) now available.\n", batch.BatchID, available, bt)
			return nil
		},
	}
	addCmd.Flags().String("type", "", "Blood type, e.g. O+ or AB-")
	addCmd.Flags().Int("units", 1, "Unit count")
	addCmd.Flags().Int("expiry-days", 42, "Days until the batch expires")
	addCmd.Flags().String("location", "", "Storage location")
	_ = addCmd.MarkFlagRequired("type")
	cmd.AddCommand(addCmd)

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove units, soonest expiry first",
		RunE: func(cmd *cobra.Command, args []string) error {
			typeArg, _ := cmd.Flags().GetString("type")
			units, _ := cmd.Flags().GetInt("units")
			reason, _ := cmd.Flags().GetString("reason")

			bt, err := bloodtype.Parse(typeArg)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svcs := newServices(cfg, pool, newLogger(cfg))
			available, err := svcs.inventory.RemoveStock(ctx, bt, units, reason)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d unit(s); %d %s unit(s) remain.\n", units, available, bt)
			return nil
		},
	}
	removeCmd.Flags().String("type", "", "Blood type, e.g. O+ or AB-")
	removeCmd.Flags().Int("units", 1, "Unit count")
	removeCmd.Flags().String("reason", "", "Reason for the removal")
	_ = removeCmd.MarkFlagRequired("type")
	cmd.AddCommand(removeCmd)

	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the database and show pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			stats, err := db.Check(ctx, pool)
			if err != nil {
				return fmt.Errorf("database unhealthy: %w", err)
			}
			fmt.Printf("Database healthy; %d/%d connection(s) open, %d idle.\n",
				stats.TotalConns, stats.MaxConns, stats.IdleConns)
			return nil
		},
	}
}

func donorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "donors",
		Short: "Inspect registered donors",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered donors",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			forType, _ := cmd.Flags().GetString("for")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			params := pagination.Params{Limit: limit, Offset: offset}.Normalize()

			svcs := newServices(cfg, pool, newLogger(cfg))
			donors, total, err := svcs.donors.List(ctx, params.Limit, params.Offset)
			if err != nil {
				return err
			}
			if forType != "" {
				recipient, err := bloodtype.Parse(forType)
				if err != nil {
					return err
				}
				donors = svcs.donors.RankForRecipient(recipient, donors)
			}

			page := pagination.NewResponse(donors, total, params.Limit, params.Offset)
			fmt.Printf("%-38s %-5s %-20s %s\n", "ID", "TYPE", "CITY", "NAME")
			for _, d := range donors {
				fmt.Printf("%-38s %-5s %-20s %s\n", d.ID, d.BloodType, d.City, d.Name)
			}
			fmt.Printf("Showing %d of %d donor(s)", len(donors), page.Total)
			if page.HasMore {
				fmt.Printf("; next offset %d", params.NextOffset())
			}
			fmt.Println()
			return nil
		},
	}
	listCmd.Flags().Int("limit", 50, "Page size")
	listCmd.Flags().Int("offset", 0, "Page offset")
	listCmd.Flags().String("for", "", "Rank by compatibility with this recipient blood type")
	cmd.AddCommand(listCmd)

	return cmd
}
