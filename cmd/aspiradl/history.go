package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/simulot/aspiradl/pkg/models"
	"github.com/simulot/aspiradl/pkg/store"
)

func (a *app) historyCommand() *cobra.Command {
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the recorded downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := a.historyFile()
			if err != nil {
				return err
			}
			if _, err := os.Stat(file); os.IsNotExist(err) {
				a.println(a.tr.T("history_empty", nil))
				return nil
			}
			st, err := store.OpenStoreBolt(file, a.log.Error())
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			n := 0
			for _, e := range entries {
				if failedOnly && e.Final == models.FinalSuccess.String() {
					continue
				}
				n++
				reason := e.Reason
				if reason == "" {
					reason = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					humanize.Time(e.When), e.Final, reason, e.Attempts, humanize.IBytes(uint64(e.Size)), e.Destination)
			}
			if n == 0 {
				a.println(a.tr.T("history_empty", nil))
				return nil
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only list downloads that didn't succeed")
	return cmd
}
