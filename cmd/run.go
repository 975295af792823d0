package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/pipeline"
)

var (
	runDealID   string
	runDocsDir  string
	runDealsDir string
	runJSON     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run extraction sessions for one or more deals",
	Long: "Runs a full extraction session per deal: every document through structure\n" +
		"analysis and extraction, validation, then profile persistence. A session that\n" +
		"raises blocking clarifications stops before persistence; answer them with the\n" +
		"clarifications commands or over the serve API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if (runDealID == "") == (runDealsDir == "") {
			return eris.New("exactly one of --deal-id or --deals-dir is required")
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		deals, err := collectDeals()
		if err != nil {
			return err
		}

		sessions := make([]*pipeline.Session, len(deals))
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Session.MaxConcurrentDeals)
		for i, d := range deals {
			sessions[i] = env.Pipeline.StartSession(d.id, d.dir)
			s := sessions[i]
			g.Go(func() error {
				return env.Pipeline.Run(gCtx, s)
			})
		}
		runErr := g.Wait()

		for _, s := range sessions {
			if runJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(s.Info()); err != nil {
					return err
				}
				continue
			}
			fmt.Println(pipeline.FormatReport(s))
			fmt.Printf("Estimated Claude cost: $%.4f\n\n", env.Pipeline.EstimateCost(s))
			if s.Status() == model.SessionAwaitingClarifications {
				fmt.Printf("Session %s is waiting on clarifications. Resolve them with:\n", s.ID())
				fmt.Printf("  valuation-cli clarifications list %s\n\n", s.ID())
			}
		}

		if runErr != nil {
			return eris.Wrap(runErr, "run deals")
		}
		return nil
	},
}

type deal struct {
	id  string
	dir string
}

// collectDeals resolves the flags into (deal, docs dir) pairs. With
// --deals-dir every subdirectory is one deal named after the directory.
func collectDeals() ([]deal, error) {
	if runDealID != "" {
		dir := runDocsDir
		if dir == "" {
			return nil, eris.New("--docs is required with --deal-id")
		}
		return []deal{{id: runDealID, dir: dir}}, nil
	}

	entries, err := os.ReadDir(runDealsDir)
	if err != nil {
		return nil, eris.Wrapf(err, "read deals dir %s", runDealsDir)
	}
	var deals []deal
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		deals = append(deals, deal{
			id:  entry.Name(),
			dir: filepath.Join(runDealsDir, entry.Name()),
		})
	}
	if len(deals) == 0 {
		return nil, eris.Errorf("no deal directories under %s", runDealsDir)
	}
	sort.Slice(deals, func(i, j int) bool { return deals[i].id < deals[j].id })

	zap.L().Info("run: deals collected", zap.Int("count", len(deals)))
	return deals, nil
}

func init() {
	runCmd.Flags().StringVar(&runDealID, "deal-id", "", "deal identifier for a single session")
	runCmd.Flags().StringVar(&runDocsDir, "docs", "", "document directory for --deal-id")
	runCmd.Flags().StringVar(&runDealsDir, "deals-dir", "", "directory of per-deal document directories")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit session info as JSON instead of a report")
	rootCmd.AddCommand(runCmd)
}
