package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hotspot/internal/model"
)

var funnelCmd = &cobra.Command{
	Use:   "funnel <id>",
	Short: "Infer the referral path into a page",
	Long: `Walks the strongest recorded referral backwards from a page.

The first row is the page itself; each following row is the heaviest
referrer of the row above. The walk stops after --max-depth hops or when a
page has no referrers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		depth, _ := cmd.Flags().GetInt("max-depth")
		path, err := env.Service.GetFunnel(ctx, args[0], depth)
		if err != nil {
			return eris.Wrap(err, "funnel")
		}
		formatFunnel(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	funnelCmd.Flags().Int("max-depth", -1, "referral hops to follow (-1=config default)")
	rootCmd.AddCommand(funnelCmd)
}

func formatFunnel(out io.Writer, path []*model.Page) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STEP\tID\tURL\tWEIGHT")
	_, _ = fmt.Fprintln(w, "----\t--\t---\t------")
	for i, p := range path {
		weight := "-"
		if i+1 < len(path) {
			weight = fmt.Sprint(p.Leads.Weight(path[i+1].ID))
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, p.ID, p.URL, weight)
	}
	_ = w.Flush()
}
