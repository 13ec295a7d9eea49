package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot/internal/seed"
)

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Register pages from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := seed.Load(args[0])
		if err != nil {
			return err
		}

		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		base, err := cfg.Page.Model()
		if err != nil {
			return err
		}
		capture, _ := cmd.Flags().GetBool("capture")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		res, err := seed.Import(ctx, env.Service, f, base, seed.Options{
			Capture:     capture,
			Concurrency: concurrency,
		})
		if err != nil {
			return eris.Wrap(err, "import")
		}

		out := cmd.OutOrStdout()
		for _, p := range res.Added {
			_, _ = fmt.Fprintf(out, "%s\t%s\n", p.ID, p.URL)
		}
		for _, fl := range res.Failures {
			zap.L().Error("import failed", zap.String("url", fl.URL), zap.Error(fl.Err))
		}
		if len(res.Failures) > 0 {
			return eris.Errorf("import: %d of %d pages failed", len(res.Failures), len(f.Pages))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("capture", false, "take the first snapshot of every page")
	importCmd.Flags().Int("concurrency", 4, "pages processed at once")
	rootCmd.AddCommand(importCmd)
}
