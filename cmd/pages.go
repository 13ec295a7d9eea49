package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hotspot/internal/model"
	"github.com/sells-group/hotspot/internal/store"
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Manage tracked pages",
}

var pagesAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a page for tracking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		pc, err := pageConfigFromFlags(cmd)
		if err != nil {
			return err
		}
		p, err := env.Service.AddPage(ctx, args[0], pc)
		if err != nil {
			return eris.Wrap(err, "pages add")
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), p.ID)
		return nil
	},
}

var pagesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Service.GetPage(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "pages get")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		}
		formatPage(cmd.OutOrStdout(), p)
		return nil
	},
}

var pagesRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"remove"},
	Short:   "Delete a page and its heatmaps",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Service.RemovePage(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "pages rm")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s (%s)\n", p.ID, p.URL)
		return nil
	},
}

var pagesListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List pages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		pages, err := env.Service.ListPages(ctx, store.ListFilter{Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "pages ls")
		}
		formatPageList(cmd.OutOrStdout(), pages)
		return nil
	},
}

func init() {
	f := pagesAddCmd.Flags()
	f.Int("width", 0, "viewport width (default from config)")
	f.Int("height", 0, "viewport height (default from config)")
	f.Float64("downsample", 0, "snapshot quality in (0,1] (default from config)")
	f.String("encoding", "", "snapshot encoding: binary or base64 (default from config)")
	f.StringSlice("track", nil, "tracked events: click, context, hover (default from config)")

	pagesGetCmd.Flags().Bool("json", false, "print the full page record as JSON")

	pagesListCmd.Flags().Int("limit", 0, "maximum pages to list (0=all)")
	pagesListCmd.Flags().Int("offset", 0, "pages to skip")

	pagesCmd.AddCommand(pagesAddCmd, pagesGetCmd, pagesRemoveCmd, pagesListCmd)
	rootCmd.AddCommand(pagesCmd)
}

// pageConfigFromFlags overlays the add flags onto the configured defaults.
// It returns nil when no flag was set.
func pageConfigFromFlags(cmd *cobra.Command) (*model.PageConfig, error) {
	f := cmd.Flags()
	if !f.Changed("width") && !f.Changed("height") && !f.Changed("downsample") &&
		!f.Changed("encoding") && !f.Changed("track") {
		return nil, nil
	}
	pc, err := cfg.Page.Model()
	if err != nil {
		return nil, err
	}
	if v, _ := f.GetInt("width"); f.Changed("width") {
		pc.View.Width = v
	}
	if v, _ := f.GetInt("height"); f.Changed("height") {
		pc.View.Height = v
	}
	if v, _ := f.GetFloat64("downsample"); f.Changed("downsample") {
		pc.View.Downsample = v
	}
	if v, _ := f.GetString("encoding"); f.Changed("encoding") {
		pc.View.Encoding = model.Encoding(strings.ToLower(v))
	}
	if v, _ := f.GetStringSlice("track"); f.Changed("track") {
		track, err := model.ParseCategories(v)
		if err != nil {
			return nil, err
		}
		pc.Hotspot.Track = track
	}
	return &pc, nil
}

func formatPage(out io.Writer, p *model.Page) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID\t%s\n", p.ID)
	_, _ = fmt.Fprintf(w, "URL\t%s\n", p.URL)
	_, _ = fmt.Fprintf(w, "VIEW\t%dx%d q=%.2f %s\n",
		p.Config.View.Width, p.Config.View.Height, p.Config.View.Downsample, p.Config.View.Encoding)
	_, _ = fmt.Fprintf(w, "SNAPSHOT\t%d bytes\n", len(p.View()))
	for _, c := range p.Config.Hotspot.Track {
		total := int64(0)
		if g := p.Grid(c); g != nil {
			total = g.Total()
		}
		_, _ = fmt.Fprintf(w, "%s\t%d events\n", strings.ToUpper(c.String()), total)
	}
	top, ok := p.Leads.Heaviest()
	if ok {
		_, _ = fmt.Fprintf(w, "LEADS\t%d referrers, top %s (%d)\n", p.Leads.Len(), top, p.Leads.Weight(top))
	} else {
		_, _ = fmt.Fprintln(w, "LEADS\tnone")
	}
	_ = w.Flush()
}

func formatPageList(out io.Writer, pages []model.PageSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tURL")
	_, _ = fmt.Fprintln(w, "--\t---")
	for _, p := range pages {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", p.ID, p.URL)
	}
	_ = w.Flush()
}
