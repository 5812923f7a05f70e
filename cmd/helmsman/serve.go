package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"helmsman/internal/advisor"
	"helmsman/internal/arbiter"
	"helmsman/internal/goal"
	"helmsman/internal/learning"
	"helmsman/internal/orchestrator"
	"helmsman/internal/plan"
	"helmsman/internal/responder"
	"helmsman/internal/session"
	"helmsman/internal/store"
	"helmsman/internal/web"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the status server over the decision engine",
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

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			records := store.NewRecords(storeDB)
			tracker := session.NewTracker()
			goals := goal.NewStore(ctx, records)
			plans := plan.NewStore(ctx, records)
			engine := learning.NewEngine(ctx, storeDB)
			resp := responder.New(cfg.Policy.DefaultPermission == "approve")
			adv := advisor.New(cfg.Advisor)
			arb := arbiter.New(resp, resp, adv, cfg.Policy.AnswerQuestions)
			orc := orchestrator.New(tracker, goals, plans, arb, engine)

			srv := &http.Server{
				Addr:              cfg.Web.Listen,
				Handler:           web.NewServer(orc).Routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("listen", cfg.Web.Listen).Msg("status server started")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
				log.Info().Msg("status server stopped")
				return nil
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}
