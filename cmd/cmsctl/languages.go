package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

func newLanguagesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "languages",
		Aliases: []string{"langs"},
		Short:   "Manage content languages",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				langs, err := svc.ListLanguages(ctx, !all)
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(langs)
				}
				rows := make([][]string, 0, len(langs))
				for _, l := range langs {
					rows = append(rows, []string{l.Code, l.Name, l.NativeName, yesNo(l.IsDefault), yesNo(l.IsActive)})
				}
				return c.table("CODE\tNAME\tNATIVE\tDEFAULT\tACTIVE", rows)
			})
		},
	}
	list.Flags().BoolVarP(&all, "all", "a", false, "Include inactive languages")

	var req simplecms.CreateLanguageRequest
	var inactive bool
	add := &cobra.Command{
		Use:     "add <code> <name>",
		Short:   "Add a language",
		Example: `  cmsctl languages add fr French --native Français`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Code, req.Name = args[0], args[1]
			req.Active = !inactive
			return c.withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				lang, err := svc.CreateLanguage(ctx, req)
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(lang)
				}
				fmt.Fprintf(c.out, "Added language %s (%s)\n", lang.Code, lang.Name)
				return nil
			})
		},
	}
	add.Flags().StringVar(&req.NativeName, "native", "", "Native name (defaults to name)")
	add.Flags().BoolVar(&req.Default, "default", false, "Make this the default language")
	add.Flags().BoolVar(&inactive, "inactive", false, "Create the language inactive")

	setDefault := &cobra.Command{
		Use:   "default <code>",
		Short: "Set the default language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				if err := svc.SetDefaultLanguage(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Default language is now %s\n", args[0])
				return nil
			})
		},
	}

	var active bool
	toggle := &cobra.Command{
		Use:     "toggle <code>",
		Short:   "Activate or deactivate a language",
		Example: `  cmsctl languages toggle de --active=false`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				if err := svc.ToggleLanguage(ctx, args[0], active); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Language %s active=%t\n", args[0], active)
				return nil
			})
		},
	}
	toggle.Flags().BoolVar(&active, "active", true, "Target state")

	remove := &cobra.Command{
		Use:   "delete <code>",
		Short: "Delete a language and its translations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				if err := svc.DeleteLanguage(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Deleted language %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, setDefault, toggle, remove)
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
