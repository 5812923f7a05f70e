package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"helmsman/internal/goal"
	"helmsman/internal/plan"
	"helmsman/internal/store"
)

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage plans",
	}
	cmd.AddCommand(planCreateCmd())
	return cmd
}

// planFile is the YAML shape accepted by `plan create --file`.
type planFile struct {
	Steps []string `yaml:"steps"`
}

func planCreateCmd() *cobra.Command {
	var goalID string
	var stepsFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a plan for a goal from a YAML steps file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" {
				return fmt.Errorf("--goal is required")
			}
			if stepsFile == "" {
				return fmt.Errorf("--file is required")
			}

			data, err := os.ReadFile(stepsFile)
			if err != nil {
				return fmt.Errorf("read steps file: %w", err)
			}
			var pf planFile
			if err := yaml.Unmarshal(data, &pf); err != nil {
				return fmt.Errorf("parse steps file: %w", err)
			}
			if len(pf.Steps) == 0 {
				return fmt.Errorf("steps file contains no steps")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			storeDB, closeFn, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			records := store.NewRecords(storeDB)
			goals := goal.NewStore(ctx, records)
			plans := plan.NewStore(ctx, records)

			g := goals.Get(goalID)
			if g == nil {
				return fmt.Errorf("goal %s not found", goalID)
			}

			p := plans.Create(ctx, g.ID, g.SessionID, pf.Steps)
			g.EstimatedSteps = len(pf.Steps)
			goals.Save(ctx, g)

			fmt.Printf("plan %s created with %d steps\n", p.ID, len(p.Steps))
			return nil
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal the plan belongs to")
	cmd.Flags().StringVar(&stepsFile, "file", "", "YAML file with a steps list")
	return cmd
}
