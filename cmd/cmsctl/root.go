package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
)

// serviceFactory opens the service a command runs against. The returned
// func releases its resources.
type serviceFactory func(ctx context.Context, cli *cli) (simplecms.Service, func() error, error)

type cli struct {
	configFile string
	jsonOutput bool
	verbose    bool

	open serviceFactory
	out  io.Writer
}

func newRootCmd(open serviceFactory) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:   "cmsctl",
		Short: "Simple CMS administration",
		Long: `Manage content tables, languages and seed files of a Simple CMS store.

Connection settings come from the same CMS_* environment variables and
YAML file the server reads. A .env file in the current directory is loaded
first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.out = cmd.OutOrStdout()
		},
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", os.Getenv("CMS_CONFIG_FILE"), "Path to YAML config file")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "Output as JSON")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log service activity to stderr")

	root.AddCommand(newTablesCmd(c))
	root.AddCommand(newLanguagesCmd(c))
	root.AddCommand(newSeedCmd(c))
	root.AddCommand(newTokenCmd(c))
	return root
}

func defaultServiceFactory(ctx context.Context, c *cli) (simplecms.Service, func() error, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rt, err := cfg.BuildService(ctx, c.logger())
	if err != nil {
		return nil, nil, err
	}
	return rt.Service, rt.Close, nil
}

func (c *cli) loadConfig() (*config.ServerConfig, error) {
	return config.Load(
		config.WithYAMLFile(c.configFile, c.configFile == ""),
		config.WithEnv("CMS_"),
		config.WithEvents("none"),
	)
}

func (c *cli) logger() *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// withService runs fn against a freshly opened service.
func (c *cli) withService(cmd *cobra.Command, fn func(ctx context.Context, svc simplecms.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := c.open(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeFn()
	return fn(ctx, svc)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) table(header string, rows [][]string) error {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, cell)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
