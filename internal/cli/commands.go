package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ammar0144/orm4go/pkg/inflect"
	"github.com/ammar0144/orm4go/pkg/meta"
	"github.com/ammar0144/orm4go/pkg/record"
)

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func newTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List registered tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			tables := app.Registry().Tables()
			if len(tables) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "(0 tables)")
				return nil
			}

			t := newTable(cmd.OutOrStdout(), "table", "id", "type", "version", "cacheable", "attributes", "associations")
			for _, tbl := range tables {
				t.AppendRow(table.Row{
					tbl.Name(), tbl.IDColumn(), tbl.TypeName(), tbl.VersionColumn(),
					yesNo(tbl.Cacheable()), len(tbl.Attributes()), len(tbl.Associations()),
				})
			}
			t.Render()
			return nil
		},
	}
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <table>",
		Short: "Show the attributes, associations and dependents of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			tbl, err := app.Registry().Table(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			attrs := newTable(out, "attribute", "role")
			for _, attr := range tbl.Attributes() {
				role := ""
				switch attr {
				case tbl.IDColumn():
					role = "primary key (" + string(tbl.KeyStrategy()) + ")"
				case tbl.VersionColumn():
					role = "lock version"
				case meta.CreatedAtColumn, meta.UpdatedAtColumn:
					role = "timestamp"
				}
				attrs.AppendRow(table.Row{attr, role})
			}
			attrs.Render()

			children, err := app.Resolver().Children(tbl.Name())
			if err != nil {
				return err
			}
			assocs := newTable(out, "kind", "target", "details")
			for _, a := range tbl.Associations() {
				assocs.AppendRow(table.Row{a.Kind, a.Target, a.String()})
			}
			for _, a := range children {
				if a.Source == tbl.Name() && !declared(tbl, a) {
					assocs.AppendRow(table.Row{a.Kind, a.Target, a.String() + " (derived)"})
				}
			}
			assocs.Render()

			_, _ = fmt.Fprintf(out, "dependents: %s\n", strings.Join(app.Registry().Dependents(tbl.Name()), ", "))
			return nil
		},
	}
}

func declared(t *meta.Table, a meta.Association) bool {
	for _, d := range t.Associations() {
		if d == a {
			return true
		}
	}
	return false
}

func newResolveCommand() *cobra.Command {
	var override meta.Override

	cmd := &cobra.Command{
		Use:   "resolve <source> <target>",
		Short: "Resolve the association from one table to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			a, err := app.Resolver().Resolve(args[0], args[1], &override)
			if err != nil {
				return err
			}

			t := newTable(cmd.OutOrStdout(), "field", "value")
			t.AppendRows([]table.Row{
				{"kind", a.Kind},
				{"source", a.Source},
				{"target", a.Target},
				{"role", a.Role},
				{"foreign key", a.ForeignKey},
				{"join table", a.JoinTable},
				{"source key", a.SourceKey},
				{"target key", a.TargetKey},
				{"type column", a.TypeColumn},
				{"type value", a.TypeValue},
			})
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&override.JoinTable, "join-table", "", "force a many-to-many association through this table")
	cmd.Flags().StringVar(&override.Role, "role", "", "select a declared association by role")
	return cmd
}

func newFindCommand() *cobra.Command {
	var (
		format  string
		include []string
	)

	cmd := &cobra.Command{
		Use:   "find <table> <id>",
		Short: "Load a record and print it as json, xml or an INSERT statement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			var id any = args[1]
			if n, err := strconv.ParseInt(args[1], 10, 64); err == nil {
				id = n
			}

			s := app.Session()
			r, err := s.Find(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			if err := s.Include(cmd.Context(), []*record.Record{r}, include...); err != nil {
				return err
			}

			opts := record.SerializeOptions{Indent: "  "}
			var out []byte
			switch format {
			case "json":
				out, err = r.ToJSON(opts)
			case "xml":
				out, err = r.ToXML(opts)
			case "insert":
				out = []byte(r.ToInsert())
			default:
				return fmt.Errorf("unknown format %q, expected json, xml or insert", format)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, xml or insert")
	cmd.Flags().StringSliceVar(&include, "include", nil, "associated tables to nest in the output")
	return cmd
}

func newInflectCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "inflect <word>...",
		Short:       "Show the naming conventions derived from table names",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{noDB: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			t := newTable(cmd.OutOrStdout(), "word", "singular", "plural", "type", "foreign key")
			for _, word := range args {
				t.AppendRow(table.Row{
					word,
					inflect.Singularize(word),
					inflect.Pluralize(word),
					inflect.TypeName(word),
					inflect.ForeignKey(word),
				})
			}
			t.Render()
			return nil
		},
	}
}
