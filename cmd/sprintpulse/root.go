package main

import (
	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	envFile string
	cfg     config.Config
	log     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sprintpulse",
	Short: "Time spent per Jira status, averaged per sprint",
	Long: `sprintpulse exports how long every issue of a sprint spent in each workflow status into a
cumulative table (an xlsx workbook or Postgres) and keeps a per-sprint average summary next to it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		log = logger.New(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded when APP_ENV=dev (default .env)")
	rootCmd.AddCommand(exportCmd, sprintsCmd, summaryCmd, serveCmd, configCmd)
}
