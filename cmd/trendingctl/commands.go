package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/trending/internal/client"
)

// =============================================================================
// channels
// =============================================================================

func newChannelsCmd(a *app) *cobra.Command {
	var (
		q       client.ChannelsQuery
		flatten string
	)
	cmd := &cobra.Command{
		Use:   "channels [handle]",
		Short: "List catalog nodes",
		Long: `List the children of a catalog node. Without a handle the top level is
listed. A filter is a glob ("focal-plane/**/temp") or a regular expression
prefixed with "regex:".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				h, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid handle %q", args[0])
				}
				q.Handle = &h
			}
			if flatten != "" {
				b, err := strconv.ParseBool(flatten)
				if err != nil {
					return fmt.Errorf("invalid --flatten: %w", err)
				}
				q.Flatten = &b
			}

			c, err := a.api()
			if err != nil {
				return err
			}
			nodes, err := c.Channels(cmd.Context(), a.site, q)
			if err != nil {
				return err
			}
			return a.printNodes(nodes)
		},
	}
	cmd.Flags().StringVar(&q.Source, "source", "", "source name")
	cmd.Flags().StringVarP(&q.Filter, "filter", "f", "", "selector")
	cmd.Flags().StringVar(&flatten, "flatten", "", "collapse single-child chains (default: on when filtering)")
	cmd.Flags().BoolVar(&q.Refresh, "refresh", false, "reload the catalog first")
	cmd.Flags().BoolVar(&q.Full, "full", false, "include channels idle for over a week")
	return cmd
}

// =============================================================================
// trend / export
// =============================================================================

// trendFlags are shared by trend and export.
type trendFlags struct {
	q      client.TrendQuery
	since  time.Duration
	t1, t2 int64
}

func (f *trendFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.q.Source, "source", "", "source name")
	cmd.Flags().StringVar(&f.q.Period, "period", "", "period label, widens the default window")
	cmd.Flags().DurationVar(&f.since, "since", 0, "window ending now (e.g. 6h)")
	cmd.Flags().Int64Var(&f.t1, "t1", 0, "window start, Unix ms")
	cmd.Flags().Int64Var(&f.t2, "t2", 0, "window end, Unix ms")
	cmd.Flags().IntVarP(&f.q.Bins, "bins", "n", 0, "number of bins (default 100)")
	cmd.Flags().StringVar(&f.q.Flavor, "flavor", "", "raw or stat")
	cmd.Flags().StringVar(&f.q.ErrorBars, "error-bars", "", "none, rms or minmax")
}

func (f *trendFlags) query(cmd *cobra.Command, keys []string, now time.Time) (client.TrendQuery, error) {
	q := f.q
	q.Keys = splitKeys(keys)
	if len(q.Keys) == 0 {
		return q, fmt.Errorf("no channel keys given")
	}
	if f.since > 0 && cmd.Flags().Changed("t1") {
		return q, fmt.Errorf("--since and --t1 are mutually exclusive")
	}
	if f.since > 0 {
		t1 := now.Add(-f.since).UnixMilli()
		q.T1 = &t1
	}
	if cmd.Flags().Changed("t1") {
		q.T1 = &f.t1
	}
	if cmd.Flags().Changed("t2") {
		q.T2 = &f.t2
	}
	return q, nil
}

func newTrendCmd(a *app) *cobra.Command {
	var f trendFlags
	cmd := &cobra.Command{
		Use:   "trend KEY...",
		Short: "Show trending data of channels",
		Long:  `Show binned trending data of one or more channel ids, one column per id.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.query(cmd, args, time.Now())
			if err != nil {
				return err
			}
			c, err := a.api()
			if err != nil {
				return err
			}
			tr, err := c.Trending(cmd.Context(), a.site, q)
			if err != nil {
				return err
			}
			return a.printTrend(q.Keys, tr)
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.q.Summary, "summary", false, "print per-channel statistics instead of rows")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		f      trendFlags
		format string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "export KEY...",
		Short: "Save trending data to a file",
		Long: `Save trending data as csv, csv.gz or parquet. The file name defaults to
the one the server suggests; "-" writes to stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.query(cmd, args, time.Now())
			if err != nil {
				return err
			}
			c, err := a.api()
			if err != nil {
				return err
			}

			if file == "-" {
				_, err := c.Export(cmd.Context(), a.site, q, format, a.out)
				return err
			}

			dir := "."
			if file != "" {
				dir = filepath.Dir(file)
			}
			tmp, err := os.CreateTemp(dir, ".trendingctl-export-*")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())

			name, err := c.Export(cmd.Context(), a.site, q, format, tmp)
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if file == "" {
				file = name
			}
			if err := os.Rename(tmp.Name(), file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", file)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "csv, csv.gz or parquet")
	cmd.Flags().StringVar(&file, "file", "", `output file ("-" for stdout)`)
	return cmd
}

// =============================================================================
// loads / sites
// =============================================================================

func newLoadsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "loads",
		Short: "Show recent catalog loads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.api()
			if err != nil {
				return err
			}
			loads, err := c.Loads(cmd.Context(), a.site, limit)
			if err != nil {
				return err
			}
			return a.printLoads(loads)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of loads (default: server's)")
	return cmd
}

func newSitesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List configured sites and catalog states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.api()
			if err != nil {
				return err
			}
			sites, err := c.Sites(cmd.Context())
			if err != nil {
				return err
			}
			return a.printSites(sites)
		},
	}
}

// splitKeys accepts "1,2" as well as separate arguments.
func splitKeys(args []string) []string {
	var keys []string
	for _, arg := range args {
		for _, k := range strings.Split(arg, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys
}
