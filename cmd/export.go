package main

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot/internal/funnel"
	"github.com/sells-group/hotspot/internal/model"
	"github.com/sells-group/hotspot/internal/report"
	"github.com/sells-group/hotspot/internal/service"
	"github.com/sells-group/hotspot/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <out.xlsx>",
	Short: "Write page activity and leads to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		depth, _ := cmd.Flags().GetInt("max-depth")
		rows, err := collectReportRows(ctx, env.Service, depth)
		if err != nil {
			return err
		}
		if err := report.Save(rows, args[0]); err != nil {
			return err
		}
		zap.L().Info("export complete", zap.Int("pages", len(rows)), zap.String("path", args[0]))
		return nil
	},
}

func init() {
	exportCmd.Flags().Int("max-depth", -1, "referral hops per funnel (-1=config default)")
	rootCmd.AddCommand(exportCmd)
}

// collectReportRows loads every page with its funnel. Pages removed while the
// export runs are skipped.
func collectReportRows(ctx context.Context, svc *service.Service, depth int) ([]report.Row, error) {
	summaries, err := svc.ListPages(ctx, store.ListFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "export: list pages")
	}
	rows := make([]report.Row, 0, len(summaries))
	for _, s := range summaries {
		path, err := svc.GetFunnel(ctx, s.ID, depth)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "export: funnel %s", s.ID)
		}
		rows = append(rows, report.Row{Page: path[0], Funnel: funnel.IDs(path)})
	}
	return rows, nil
}
