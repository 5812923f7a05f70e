package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"helmsman/internal/learning"
)

func pruneCmd() *cobra.Command {
	var keepDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop old learning experiences and rebuild statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if keepDays == 0 {
				keepDays = cfg.Retention.KeepDays
			}

			storeDB, closeFn, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			engine := learning.NewEngine(ctx, storeDB)
			engine.ClearOldData(ctx, keepDays)

			fmt.Printf("pruned experiences older than %d days\n", keepDays)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "override retention window in days")
	return cmd
}
