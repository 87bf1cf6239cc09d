package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/statbridge/internal/snapshot"
)

var dumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print a Parquet snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := snapshot.ReadFile(args[0])
		if err != nil {
			return err
		}
		return printRows(cmd.OutOrStdout(), rows)
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

func printRows(w io.Writer, rows []snapshot.Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OID\tSTATISTIC\tVALUE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.OID, r.Statistic, r.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(rows) > 0 {
		taken := time.UnixMilli(rows[0].TakenAtMs).UTC()
		fmt.Fprintf(w, "# %d rows taken at %s\n", len(rows), taken.Format(time.RFC3339))
	}
	return nil
}
