package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bankbatch/internal/config"
	"github.com/dvloznov/bankbatch/internal/logger"
	"github.com/dvloznov/bankbatch/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the contract schema and its indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New()

		cfg, err := config.Load()
		if err != nil {
			log.Error().Err(err).Msg("invalid configuration")
			return err
		}

		st, err := store.Open(cmd.Context(), cfg, log)
		if err != nil {
			log.Error().Err(err).Msg("durable store unavailable")
			return err
		}
		defer st.Close()

		if err := st.Migrate(); err != nil {
			return err
		}
		fmt.Println("schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
