package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/store"
)

var (
	sessionsStatus string
	sessionsDeal   string
	sessionsLimit  int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted extraction sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions(ctx, store.SessionFilter{
			Status: model.SessionStatus(sessionsStatus),
			DealID: sessionsDeal,
			Limit:  sessionsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list sessions")
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-24s %-10s conf=%.1f docs=%d updated=%s\n",
				s.ID, s.DealID, s.Status, s.Confidence,
				s.Stats.DocumentsProcessed, s.UpdatedAt.Format(time.RFC3339))
			if s.Error != "" {
				fmt.Printf("    failed at %s: %s\n", s.FailedStage, s.Error)
			}
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		info, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get session")
		}
		if info == nil {
			return eris.Errorf("session %s not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

var sessionsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete sessions past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		retention := time.Duration(cfg.Session.RetentionHours) * time.Hour
		n, err := st.DeleteExpiredSessions(ctx, retention)
		if err != nil {
			return eris.Wrap(err, "delete expired sessions")
		}

		zap.L().Info("sessions gc complete", zap.Int("deleted", n))
		fmt.Printf("Deleted %d expired sessions.\n", n)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().StringVar(&sessionsStatus, "status", "", "filter by status")
	sessionsListCmd.Flags().StringVar(&sessionsDeal, "deal-id", "", "filter by deal")
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "max sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsGCCmd)
	rootCmd.AddCommand(sessionsCmd)
}
