package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zberg/go-vclient/internal/config"
	"github.com/zberg/go-vclient/pkg/vcontrold"
)

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(identifyCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(unitsCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogInitCmd)

	getCmd.Flags().StringSliceP("group", "g", nil, "Query the members of a group (repeatable)")
	getCmd.Flags().Bool("all", false, "Query every enabled item")
	getCmd.Flags().Bool("identify", false, "Ask for the device type first and skip commands it does not support")
	getCmd.Flags().Int("limit", 0, "Send at most this many commands")
}

var getCmd = &cobra.Command{
	Use:   "get [item...]",
	Short: "Query items and print their values",
	Example: `  vclient get getTempA getTempKist
  vclient get -g temperature -o json
  vclient get --all -o csv --delimiter ';'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, _ := cmd.Flags().GetStringSlice("group")
		all, _ := cmd.Flags().GetBool("all")
		identify, _ := cmd.Flags().GetBool("identify")
		limit, _ := cmd.Flags().GetInt("limit")

		sel, err := selectorFrom(groups, args, all)
		if err != nil {
			return err
		}

		res, err := query(cmd.Context(), sel, identify, vcontrold.WithLimit(limit))
		if res != nil {
			if perr := printResult(res); perr != nil {
				return perr
			}
			for _, it := range res.Failed() {
				logger.Warn("item failed", "item", it.Name, "state", it.State, "error", it.Err)
			}
		}
		return err
	},
}

// selectorFrom builds the selector for group flags, item arguments and --all.
func selectorFrom(groups, items []string, all bool) (vcontrold.Selector, error) {
	if all {
		if len(groups) > 0 || len(items) > 0 {
			return vcontrold.Selector{}, errors.New("--all cannot be combined with items or groups")
		}
		return vcontrold.All(), nil
	}
	sel := vcontrold.Select(groups, items)
	if sel.Empty() {
		return sel, errors.New("nothing to query: name items, use --group or --all")
	}
	return sel, nil
}

func sessionOptions() []vcontrold.SessionOption {
	return append(cfg.SessionOptions(), vcontrold.WithLogger(logger))
}

func pollerOptions(extra ...vcontrold.PollerOption) []vcontrold.PollerOption {
	return append([]vcontrold.PollerOption{
		vcontrold.WithConvertOptions(cfg.ConvertOptions()),
		vcontrold.WithPollerLogger(logger),
	}, extra...)
}

// query runs one query on a fresh session. With identify the device type is
// read first and used to skip unsupported commands.
func query(ctx context.Context, sel vcontrold.Selector, identify bool, extra ...vcontrold.PollerOption) (*vcontrold.Result, error) {
	if !identify {
		return vcontrold.Fetch(ctx, cfg.Host, catalog, sel, sessionOptions(), pollerOptions(extra...)...)
	}

	s, err := vcontrold.Dial(ctx, cfg.Host, sessionOptions()...)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	dev, err := s.Identify(ctx)
	if err != nil {
		return nil, fmt.Errorf("identify device: %w", err)
	}
	opts := pollerOptions(append(extra, vcontrold.WithDevice(dev))...)
	return vcontrold.NewPoller(s, catalog, opts...).Query(ctx, sel)
}

func printResult(res *vcontrold.Result) error {
	out, err := vcontrold.Format(res, cfg.FormatKind(), cfg.FormatOptions())
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

var setCmd = &cobra.Command{
	Use:   "set <command> [value...]",
	Short: "Run a write command",
	Example: `  vclient set setTempWWsoll 50
  vclient set setBetriebArtM1 H+WW`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := vcontrold.NewSession(cfg.Host, sessionOptions()...)
		if err != nil {
			return err
		}
		defer s.Close()

		value := strings.Join(args[1:], " ")
		p := vcontrold.NewPoller(s, catalog, pollerOptions()...)
		if err := p.Set(cmd.Context(), args[0], value); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Show the device type reported by the controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := vcontrold.Dial(cmd.Context(), cfg.Host, sessionOptions()...)
		if err != nil {
			return err
		}
		defer s.Close()

		dev, err := s.Identify(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Model: %s\nID: %d\nProtocol: %s\n", dev.Model, dev.ID, dev.Protocol)
		return nil
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List item groups and their members",
	Run: func(cmd *cobra.Command, args []string) {
		for _, g := range catalog.ItemsPerGroup() {
			fmt.Printf("%s: %s\n", g.Name, strings.Join(g.Members, ", "))
		}
	},
}

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List the unit kinds used by the catalog",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, u := range catalog.Units() {
			fmt.Fprintf(w, "%s\t%s\n", u, u.Label(cfg.UseFahrenheit))
		}
		w.Flush()
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List the items of the catalog",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ITEM\tUNIT\tGROUPS\tSTATUS\tDESCRIPTION")
		for _, name := range catalog.Items() {
			d, _ := catalog.Lookup(name)
			status := "enabled"
			if d.Disabled {
				status = "disabled"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.Unit, strings.Join(d.Groups, ","), status, d.Description)
		}
		w.Flush()
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find vcontrold daemons on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Discovering daemons...")
		results, err := vcontrold.Discover(cmd.Context(), cfg.Port)
		if err != nil {
			return fmt.Errorf("discover: %w", err)
		}

		if len(results) == 0 {
			fmt.Println("No daemons found.")
			return nil
		}
		for _, res := range results {
			fmt.Printf("Found vcontrold at: %s:%d\n", res.IP, res.Port)
		}
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the command catalog file",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

var catalogInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the built-in catalog to a file for editing",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Catalog
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			path = "vcontrold_catalog.yaml"
		}

		created, err := config.EnsureCatalog(path)
		if err != nil {
			return err
		}
		if !created {
			fmt.Printf("Catalog %s already exists, left unchanged.\n", path)
			return nil
		}
		fmt.Printf("Wrote default catalog to %s\n", path)
		return nil
	},
}
