package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"helmsman/internal/goal"
	"helmsman/internal/store"
)

func goalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goal",
		Short: "Manage session goals",
	}
	cmd.AddCommand(goalAddCmd())
	cmd.AddCommand(goalListCmd())
	return cmd
}

func goalAddCmd() *cobra.Command {
	var sessionID string
	var criteria []string
	var priority int

	cmd := &cobra.Command{
		Use:   "add <description>",
		Short: "Add a goal for a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := strings.TrimSpace(strings.Join(args, " "))
			if description == "" {
				return fmt.Errorf("description is required")
			}
			if sessionID == "" {
				return fmt.Errorf("--session is required")
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
			goals := goal.NewStore(ctx, store.NewRecords(storeDB))
			g := goals.Create(ctx, goal.NewGoal{
				SessionID:       sessionID,
				Description:     description,
				SuccessCriteria: criteria,
				Priority:        priority,
			})
			fmt.Printf("goal %s added\n", g.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session the goal belongs to")
	cmd.Flags().StringArrayVar(&criteria, "criterion", nil, "success criterion text (repeatable)")
	cmd.Flags().IntVar(&priority, "priority", 1, "goal priority (higher wins)")
	return cmd
}

func goalListCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			storeDB, closeFn, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			goals := goal.NewStore(cmd.Context(), store.NewRecords(storeDB))

			var items []*goal.Goal
			if sessionID != "" {
				items = goals.SessionGoals(sessionID)
			} else {
				items = goals.All()
			}
			if len(items) == 0 {
				fmt.Println("no goals")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSESSION\tSTATUS\tPRI\tPROGRESS\tDESCRIPTION")
			for _, g := range items {
				fmt.Fprintf(w, "%.8s\t%.8s\t%s\t%d\t%.0f%%\t%s\n",
					g.ID, g.SessionID, g.Status, g.Priority, g.ProgressPercent(), g.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "filter by session")
	return cmd
}
