package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"

	"github.com/xtxerr/trending/internal/client"
	"github.com/xtxerr/trending/internal/handler"
)

func newBrowseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the channel catalog interactively",
		Long: `Open an interactive shell on the channel catalog of a site. Type "help"
for the commands; tab completes channel names.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.api()
			if err != nil {
				return err
			}
			b := newBrowser(cmd.Context(), a, c)
			fmt.Fprintf(a.out, "trendingctl %s, connected to %s. Type \"help\" for commands.\n", Version, a.server)

			p := prompt.New(b.execute, func(d prompt.Document) []prompt.Suggest {
				return b.suggest(d.TextBeforeCursor())
			},
				prompt.OptionTitle("trendingctl"),
				prompt.OptionLivePrefix(func() (string, bool) { return b.prefix(), true }),
				prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return b.done }),
			)
			p.Run()
			return nil
		},
	}
}

// crumb is one step of the browser's current path.
type crumb struct {
	handle int
	name   string
}

var browseCommands = []prompt.Suggest{
	{Text: "ls", Description: "list the current node"},
	{Text: "cd", Description: "enter a node (.. goes up, / to the top)"},
	{Text: "pwd", Description: "print the current path"},
	{Text: "find", Description: "search the catalog with a selector"},
	{Text: "trend", Description: "show trending data of channels"},
	{Text: "window", Description: "set the trending window (e.g. 6h)"},
	{Text: "site", Description: "switch site"},
	{Text: "refresh", Description: "reload the catalog"},
	{Text: "help", Description: "show commands"},
	{Text: "exit", Description: "leave the browser"},
}

// browser is the state of an interactive catalog session. Children are
// cached per handle until refresh or a site switch.
type browser struct {
	ctx    context.Context
	app    *app
	client *client.Client

	path     []crumb
	children map[int][]handler.NodeJSON
	sites    []string
	window   time.Duration
	now      func() time.Time
	done     bool
}

func newBrowser(ctx context.Context, a *app, c *client.Client) *browser {
	if ctx == nil {
		ctx = context.Background()
	}
	return &browser{
		ctx:      ctx,
		app:      a,
		client:   c,
		children: make(map[int][]handler.NodeJSON),
		window:   time.Hour,
		now:      time.Now,
	}
}

func (b *browser) handle() int {
	if len(b.path) == 0 {
		return 0
	}
	return b.path[len(b.path)-1].handle
}

func (b *browser) pwd() string {
	names := make([]string, len(b.path))
	for i, c := range b.path {
		names[i] = c.name
	}
	return "/" + strings.Join(names, "/")
}

func (b *browser) prefix() string {
	site := b.app.site
	if site == "" {
		site = "default"
	}
	return site + ":" + b.pwd() + "> "
}

// list returns the children of handle, fetching them on first use.
func (b *browser) list(handle int) ([]handler.NodeJSON, error) {
	if nodes, ok := b.children[handle]; ok {
		return nodes, nil
	}
	q := client.ChannelsQuery{}
	if handle != 0 {
		q.Handle = &handle
	}
	nodes, err := b.client.Channels(b.ctx, b.app.site, q)
	if err != nil {
		return nil, err
	}
	b.children[handle] = nodes
	return nodes, nil
}

func (b *browser) child(name string) (handler.NodeJSON, error) {
	nodes, err := b.list(b.handle())
	if err != nil {
		return handler.NodeJSON{}, err
	}
	for _, n := range nodes {
		if n.Text == name {
			return n, nil
		}
	}
	return handler.NodeJSON{}, fmt.Errorf("%s: no such node in %s", name, b.pwd())
}

// execute runs one input line.
func (b *browser) execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	if err := b.run(fields[0], fields[1:]); err != nil {
		fmt.Fprintf(b.app.out, "error: %v\n", err)
	}
}

func (b *browser) run(cmd string, args []string) error {
	switch cmd {
	case "ls":
		nodes, err := b.list(b.handle())
		if err != nil {
			return err
		}
		return b.app.printNodes(nodes)

	case "cd":
		if len(args) != 1 {
			return fmt.Errorf("usage: cd NAME")
		}
		return b.cd(args[0])

	case "pwd":
		fmt.Fprintln(b.app.out, b.pwd())
		return nil

	case "find":
		if len(args) != 1 {
			return fmt.Errorf("usage: find SELECTOR")
		}
		nodes, err := b.client.Channels(b.ctx, b.app.site, client.ChannelsQuery{Filter: args[0]})
		if err != nil {
			return err
		}
		return b.app.printNodes(nodes)

	case "trend":
		if len(args) == 0 {
			return fmt.Errorf("usage: trend NAME|ID...")
		}
		return b.trend(args)

	case "window":
		if len(args) != 1 {
			fmt.Fprintln(b.app.out, b.window)
			return nil
		}
		d, err := time.ParseDuration(args[0])
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid window %q", args[0])
		}
		b.window = d
		return nil

	case "site":
		if len(args) != 1 {
			return fmt.Errorf("usage: site NAME")
		}
		prev := b.app.site
		b.app.site = args[0]
		b.reset()
		if _, err := b.list(0); err != nil {
			b.app.site = prev
			return err
		}
		return nil

	case "refresh":
		b.reset()
		_, err := b.client.Channels(b.ctx, b.app.site, client.ChannelsQuery{Refresh: true})
		return err

	case "help":
		for _, s := range browseCommands {
			fmt.Fprintf(b.app.out, "  %-8s %s\n", s.Text, s.Description)
		}
		return nil

	case "exit", "quit":
		b.done = true
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// reset forgets cached children and returns to the top. Handles are only
// stable within one catalog load.
func (b *browser) reset() {
	b.path = nil
	b.children = make(map[int][]handler.NodeJSON)
}

func (b *browser) cd(target string) error {
	switch target {
	case "/":
		b.path = nil
		return nil
	case "..":
		if len(b.path) > 0 {
			b.path = b.path[:len(b.path)-1]
		}
		return nil
	}

	for _, name := range strings.Split(strings.Trim(target, "/"), "/") {
		n, err := b.child(name)
		if err != nil {
			return err
		}
		if !n.Children {
			return fmt.Errorf("%s is a channel, not a folder", name)
		}
		b.path = append(b.path, crumb{handle: n.ID, name: n.Text})
	}
	return nil
}

// trend resolves each argument to a channel id, by name in the current
// node or taken literally when no child matches.
func (b *browser) trend(args []string) error {
	keys := make([]string, 0, len(args))
	for _, arg := range args {
		n, err := b.child(arg)
		if err != nil {
			keys = append(keys, arg)
			continue
		}
		id, ok := n.DataID()
		if !ok {
			return fmt.Errorf("%s is a folder, not a channel", arg)
		}
		keys = append(keys, id)
	}

	t1 := b.now().Add(-b.window).UnixMilli()
	tr, err := b.client.Trending(b.ctx, b.app.site, client.TrendQuery{Keys: keys, T1: &t1})
	if err != nil {
		return err
	}
	return b.app.printTrend(args, tr)
}

// suggest completes the word before the cursor.
func (b *browser) suggest(before string) []prompt.Suggest {
	fields := strings.Fields(before)
	word := ""
	if len(fields) > 0 && !strings.HasSuffix(before, " ") {
		word = fields[len(fields)-1]
		fields = fields[:len(fields)-1]
	}
	if len(fields) == 0 {
		return prompt.FilterHasPrefix(browseCommands, word, true)
	}

	var out []prompt.Suggest
	switch fields[0] {
	case "cd", "trend":
		if fields[0] == "cd" && len(fields) > 1 {
			return nil
		}
		nodes, err := b.list(b.handle())
		if err != nil {
			return nil
		}
		if fields[0] == "cd" {
			out = append(out, prompt.Suggest{Text: "..", Description: "up"})
		}
		for _, n := range nodes {
			if fields[0] == "cd" && !n.Children {
				continue
			}
			id, ok := n.DataID()
			if fields[0] == "trend" && !ok {
				continue
			}
			out = append(out, prompt.Suggest{Text: n.Text, Description: id})
		}
	case "site":
		if len(fields) > 1 {
			return nil
		}
		for _, name := range b.siteNames() {
			out = append(out, prompt.Suggest{Text: name})
		}
	}
	return prompt.FilterHasPrefix(out, word, false)
}

func (b *browser) siteNames() []string {
	if b.sites != nil {
		return b.sites
	}
	sites, err := b.client.Sites(b.ctx)
	if err != nil {
		return nil
	}
	b.sites = make([]string, 0, len(sites))
	for _, s := range sites {
		b.sites = append(b.sites, s.Name)
	}
	sort.Strings(b.sites)
	return b.sites
}
