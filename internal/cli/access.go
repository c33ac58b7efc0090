package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opustrack/opustrack/internal/access"
)

type accessOptions struct {
	File        string
	Role        uint8
	DefaultPath string
}

// NewAccessCommand creates the access command for inspecting the route
// table without a running server.
func NewAccessCommand(_ *RootOptions) *cobra.Command {
	ao := &accessOptions{}
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Inspect the route access table",
	}
	cmd.PersistentFlags().StringVar(&ao.File, "file", os.Getenv("ACCESS_TABLE_FILE"), "YAML table (default: built-in)")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print the rules in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := ao.table()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PREFIX\tMIN ROLE")
			for _, r := range tbl.Rules() {
				fmt.Fprintf(w, "%s\t%d\n", r.Prefix, r.MinRole)
			}
			return w.Flush()
		},
	}

	check := &cobra.Command{
		Use:   "check <path>",
		Short: "Show where a visitor of path ends up",
		Long: `Show the decision for a dashboard path. Without --role the visitor is
treated as signed out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := ao.table()
			if err != nil {
				return err
			}
			var s *access.Session
			if ao.Role > 0 {
				s = &access.Session{RoleID: ao.Role, DefaultPath: ao.DefaultPath}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(tbl.Decide(args[0], s))
		},
	}
	check.Flags().Uint8Var(&ao.Role, "role", 0, "role level of the signed-in visitor")
	check.Flags().StringVar(&ao.DefaultPath, "default-path", "/", "default path of the visitor's role")

	cmd.AddCommand(list, check)
	return cmd
}

func (ao *accessOptions) table() (*access.Table, error) {
	if ao.File == "" {
		return access.Default(), nil
	}
	return access.LoadFile(ao.File)
}
