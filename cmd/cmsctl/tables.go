package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

func newTablesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Manage content tables",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List content tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				tables, err := svc.ListTables(ctx)
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(tables)
				}
				for _, t := range tables {
					fmt.Fprintln(c.out, t)
				}
				return nil
			})
		},
	}

	describe := &cobra.Command{
		Use:   "describe <table>",
		Short: "Show the fields of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				def, err := svc.DescribeTable(ctx, args[0])
				if err != nil {
					return err
				}
				return c.printTable(def)
			})
		},
	}

	var fields []string
	create := &cobra.Command{
		Use:   "create <table>",
		Short: "Create a table",
		Long: `Create a table with the given fields. Each --field is name:type, or
name:foreign_key:<table>[:<display column>] for references.`,
		Example: `  cmsctl tables create articles --field title:string --field body:richtext --field cover:image
  cmsctl tables create posts --field title:string --field author:foreign_key:authors:name`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := make([]simplecms.FieldSpec, 0, len(fields))
			for _, raw := range fields {
				spec, err := parseFieldSpec(raw)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}
			return c.withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				def, err := svc.CreateTable(ctx, simplecms.CreateTableRequest{Name: args[0], Fields: specs})
				if err != nil {
					return err
				}
				return c.printTable(def)
			})
		},
	}
	create.Flags().StringArrayVarP(&fields, "field", "f", nil, "Field as name:type (repeatable)")

	addField := &cobra.Command{
		Use:     "add-field <table> <name:type>",
		Short:   "Add a field to an existing table",
		Example: `  cmsctl tables add-field articles published:boolean`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseFieldSpec(args[1])
			if err != nil {
				return err
			}
			return c.withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				field, err := svc.AddField(ctx, args[0], spec)
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(field)
				}
				fmt.Fprintf(c.out, "Added %s.%s (%s)\n", args[0], field.Name, field.Type)
				return nil
			})
		},
	}

	cmd.AddCommand(list, describe, create, addField)
	return cmd
}

// parseFieldSpec reads name:type[:foreign_table[:display_column]].
func parseFieldSpec(raw string) (simplecms.FieldSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 4 || parts[0] == "" || parts[1] == "" {
		return simplecms.FieldSpec{}, fmt.Errorf("invalid field %q: want name:type", raw)
	}
	spec := simplecms.FieldSpec{Name: parts[0], Type: parts[1]}
	if len(parts) > 2 {
		spec.ForeignTable = parts[2]
	}
	if len(parts) > 3 {
		spec.ForeignDisplayColumn = parts[3]
	}
	return spec, nil
}

func (c *cli) printTable(def *simplecms.TableDefinition) error {
	if c.jsonOutput {
		return c.printJSON(def)
	}
	fmt.Fprintf(c.out, "Table: %s\n\n", def.Name)
	rows := make([][]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		rows = append(rows, []string{strconv.Itoa(f.Position), f.Name, string(f.Type), string(f.StorageType()), describeRole(f.Role)})
	}
	return c.table("POS\tNAME\tTYPE\tSTORAGE\tROLE", rows)
}

func describeRole(role simplecms.FieldRole) string {
	switch r := role.(type) {
	case simplecms.MediaRole:
		return "media (" + string(r.Arity) + ")"
	case simplecms.ForeignKeyRole:
		if r.DisplayColumn != "" {
			return "-> " + r.Table + "." + r.DisplayColumn
		}
		return "-> " + r.Table
	default:
		return "-"
	}
}
