package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bankbatch/internal/aggregate"
	"github.com/dvloznov/bankbatch/internal/archive"
	"github.com/dvloznov/bankbatch/internal/batchfile"
	"github.com/dvloznov/bankbatch/internal/config"
	"github.com/dvloznov/bankbatch/internal/logger"
	"github.com/dvloznov/bankbatch/internal/pipeline"
	"github.com/dvloznov/bankbatch/internal/store"
)

var inputPath string

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one batch file: validate, load, aggregate, report",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New()

		cfg, err := config.Load()
		if err != nil {
			log.Error().Err(err).Msg("invalid configuration")
			return err
		}

		batch, err := batchfile.Read(inputPath)
		if err != nil {
			log.Error().Err(err).Msg("cannot read batch file")
			return err
		}

		// Ctrl-C / SIGTERM cancels between chunks; committed chunks stay.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logger.WithContext(ctx, log)

		st, err := store.Open(ctx, cfg, log)
		if err != nil {
			log.Error().Err(err).Msg("durable store unavailable")
			return err
		}
		defer st.Close()

		var archiver pipeline.Archiver
		if cfg.ArchiveBucket != "" {
			archiver = archive.New(cfg.ArchiveBucket, cfg.ArchiveEndpoint)
		}

		orch, err := pipeline.NewOrchestrator(cfg, st, aggregate.NewEngine(st, log), archiver, log)
		if err != nil {
			return err
		}

		report := orch.Run(ctx, batch)

		out, err := report.JSON()
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		fmt.Println(string(out))

		if report.Aborted {
			return fmt.Errorf("run aborted: %s", report.AbortReason)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVarP(&inputPath, "input", "i", "", "path to the batch CSV file (required)")
	processCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(processCmd)
}
