package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/trending/internal/client"
)

// Version is set at build time via ldflags
var Version = "dev"

const defaultServer = "http://localhost:8080/rest"

// app holds the global flags and the lazily created client.
type app struct {
	server  string
	site    string
	timeout time.Duration
	output  string

	out    io.Writer
	client *client.Client
}

func (a *app) api() (*client.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	c, err := client.New(a.server, a.timeout)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	server := os.Getenv("TRENDING_SERVER")
	if server == "" {
		server = defaultServer
	}

	root := &cobra.Command{
		Use:   "trendingctl",
		Short: "Query a trendingd server",
		Long: `trendingctl browses channel catalogs and fetches trending data from a
trendingd server.

Examples:
  trendingctl sites                                  # List configured sites
  trendingctl channels --filter 'focal-plane/**'     # Filtered channel tree
  trendingctl trend 1234 5678 --since 6h --bins 50   # Trending table
  trendingctl export 1234 --format parquet           # Save trending data
  trendingctl browse --site summit                   # Interactive browser`,
		Version:       Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.output {
			case "table", "json":
				return nil
			default:
				return fmt.Errorf("unknown output format %q", a.output)
			}
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&a.server, "server", server,
		"trendingd REST base URL (or TRENDING_SERVER env)")
	root.PersistentFlags().StringVar(&a.site, "site", "",
		"site name (default: the server's default site)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", client.DefaultTimeout,
		"request timeout")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table",
		"output format (table, json)")

	root.AddCommand(
		newChannelsCmd(a),
		newTrendCmd(a),
		newExportCmd(a),
		newLoadsCmd(a),
		newSitesCmd(a),
		newBrowseCmd(a),
	)
	return root
}
