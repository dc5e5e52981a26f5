package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
)

func newSeedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Apply a YAML seed of languages and tables",
		Long: `Create the languages, tables and fields listed in a YAML seed file.
Entries that already exist are left alone, so a seed can be applied repeatedly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := config.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			return c.withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				result, err := config.ApplySeed(ctx, svc, seed, c.logger())
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(result)
				}
				fmt.Fprintf(c.out, "Languages created: %d\nTables created: %d\nFields added: %d\n",
					result.LanguagesCreated, result.TablesCreated, result.FieldsAdded)
				return nil
			})
		},
	}
}
