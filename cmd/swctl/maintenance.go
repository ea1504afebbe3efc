package main

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"siteworker/internal"
	"siteworker/internal/analytics"
	"siteworker/internal/comments"
	"siteworker/internal/jobs"
	"siteworker/internal/sites"
	"siteworker/internal/users"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the schema and seed default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := internal.Migrate(e.dbManager, e.cfg); err != nil {
			return err
		}
		fmt.Println("Migrations completed")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete analytics rows older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		job := jobs.NewRetentionSweepJob(e.dbManager, e.logger, e.cfg)
		result, err := job.Sweep(time.Now().UTC())
		if err != nil {
			return err
		}

		fields := []field{{"Cutoff", time.Unix(result.Cutoff, 0).UTC().Format(time.RFC3339)}}
		for _, table := range slices.Sorted(maps.Keys(result.Deleted)) {
			fields = append(fields, field{table, result.Deleted[table]})
		}
		fields = append(fields,
			field{"admin_sessions", result.AdminSessions},
			field{"rate_limits", result.RateLimits},
		)
		printReport("Retention sweep (rows deleted)", fields)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and installation status",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		db := e.dbManager.GetConnection()
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			return fmt.Errorf("database unreachable")
		}

		all, err := sites.List(db)
		if err != nil {
			return err
		}
		admins, err := users.Count(db)
		if err != nil {
			return err
		}

		var events, sessions, commentCount int64
		db.Model(&analytics.Event{}).Count(&events)
		db.Model(&analytics.Session{}).Count(&sessions)
		db.Model(&comments.Comment{}).Count(&commentCount)

		printReport("siteworker status", []field{
			{"Environment", e.cfg.Environment},
			{"Database", e.cfg.DatabaseType},
			{"Sites", len(all)},
			{"Admin users", admins},
			{"Setup disabled", users.SetupDisabled(db)},
			{"Retention days", jobs.RetentionDays(db, e.cfg)},
			{"Events", events},
			{"Sessions", sessions},
			{"Comments", commentCount},
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, sweepCmd, statusCmd)
}
