package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
)

var (
	clarValue float64
	clarBy    string
	clarNote  string
)

var clarificationsCmd = &cobra.Command{
	Use:   "clarifications",
	Short: "Review and answer session clarifications",
}

var clarificationsListCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List a session's clarifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		clarifications, err := st.ListClarifications(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "list clarifications")
		}
		if len(clarifications) == 0 {
			fmt.Println("No clarifications for this session.")
			return nil
		}

		for _, c := range clarifications {
			marker := " "
			if c.Blocking() {
				marker = "!"
			}
			fmt.Printf("%s [%s] (P%d) %s\n", marker, c.Status, c.Priority, c.ID)
			fmt.Printf("    %s\n", c.Question)
			for _, v := range c.SuggestedValues {
				fmt.Printf("    - %.2f  %s\n", v.Value, v.Label)
			}
			if c.Answer != nil {
				fmt.Printf("    answered %.2f by %s\n", c.Answer.Value, c.Answer.ResolvedBy)
			}
		}
		return nil
	},
}

var clarificationsResolveCmd = &cobra.Command{
	Use:   "resolve <session-id> <clarification-id>",
	Short: "Record an answer to a clarification",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return answerClarification(cmd, args[0], args[1], false)
	},
}

var clarificationsSkipCmd = &cobra.Command{
	Use:   "skip <session-id> <clarification-id>",
	Short: "Dismiss a clarification without an answer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return answerClarification(cmd, args[0], args[1], true)
	},
}

// answerClarification updates the persisted clarification record. A live
// session parked on blocking questions picks the answers up through the
// serve API's resume endpoint; this command covers the audit trail and
// offline review.
func answerClarification(cmd *cobra.Command, sessionID, clarificationID string, skip bool) error {
	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	clarifications, err := st.ListClarifications(ctx, sessionID)
	if err != nil {
		return eris.Wrap(err, "list clarifications")
	}
	var target *model.Clarification
	for i := range clarifications {
		if clarifications[i].ID == clarificationID {
			target = &clarifications[i]
			break
		}
	}
	if target == nil {
		return eris.Errorf("clarification %s not found in session %s", clarificationID, sessionID)
	}
	if target.Status != model.ClarificationPending {
		return eris.Errorf("clarification %s is already %s", clarificationID, target.Status)
	}

	if skip {
		target.Status = model.ClarificationSkipped
	} else {
		target.Status = model.ClarificationResolved
		target.Answer = &model.ClarificationAnswer{
			Value:      clarValue,
			ResolvedBy: clarBy,
			Note:       clarNote,
			ResolvedAt: time.Now().UTC(),
		}
	}

	if err := st.UpdateClarification(ctx, sessionID, *target); err != nil {
		return eris.Wrap(err, "update clarification")
	}

	zap.L().Info("clarification updated",
		zap.String("session", sessionID),
		zap.String("clarification", clarificationID),
		zap.String("status", string(target.Status)),
	)
	fmt.Printf("Clarification %s marked %s.\n", clarificationID, target.Status)
	return nil
}

func init() {
	clarificationsResolveCmd.Flags().Float64Var(&clarValue, "value", 0, "resolved value")
	clarificationsResolveCmd.Flags().StringVar(&clarBy, "by", "", "who resolved it")
	clarificationsResolveCmd.Flags().StringVar(&clarNote, "note", "", "resolution note")
	_ = clarificationsResolveCmd.MarkFlagRequired("value")
	_ = clarificationsResolveCmd.MarkFlagRequired("by")
	clarificationsCmd.AddCommand(clarificationsListCmd, clarificationsResolveCmd, clarificationsSkipCmd)
	rootCmd.AddCommand(clarificationsCmd)
}
