package cli

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"traffic-quiz-service/internal/config"
	"traffic-quiz-service/internal/infra/excel"
	pgstore "traffic-quiz-service/internal/infra/postgres"
	"traffic-quiz-service/internal/logger"
)

// NewImportCmd loads questions from an .xlsx file into Postgres.
func NewImportCmd(configPath *string) *cobra.Command {
	importCfg := excel.DefaultImportConfig()
	cmd := &cobra.Command{
		Use:   "import-questions <file.xlsx>",
		Short: "Import the question bank from an Excel sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			questions, report, err := excel.ReadQuestions(args[0], importCfg)
			if err != nil {
				return err
			}
			for _, msg := range report.Errors {
				log.Warn("row skipped", "reason", msg)
			}

			ctx := cmd.Context()
			if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := pgstore.NewQuestionLoader(pool).UpsertQuestions(ctx, questions)
			if err != nil {
				return err
			}
			log.Info("questions imported", "imported", n, "processed", report.TotalProcessed, "skipped", report.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&importCfg.SheetName, "sheet", importCfg.SheetName, "sheet name")
	cmd.Flags().IntVar(&importCfg.StartRow, "start-row", importCfg.StartRow, "first data row (1-based)")
	cmd.Flags().StringVar(&importCfg.OptionSeparator, "separator", importCfg.OptionSeparator, "option separator")
	return cmd
}
