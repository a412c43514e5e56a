package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/simulot/aspiradl/pkg/download"
)

func (a *app) configCommand() *cobra.Command {
	var (
		show bool
		save bool
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the configuration and check the accelerator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if save {
				if err := a.cfg.Save(); err != nil {
					return err
				}
				a.println(a.tr.T("config_saved", map[string]interface{}{"Path": a.cfg.Path()}))
			}
			a.println(fmt.Sprintf("Configuration file: %s", a.cfg.Path()))
			if _, err := os.Stat(a.cfg.Path()); err != nil {
				a.println("  (not written yet, built-in defaults are used)")
			}

			x := a.accelerator()
			if bin, err := x.Locate(); err != nil {
				a.println(a.tr.T("accelerator_missing", map[string]interface{}{"Error": err}))
			} else if v, err := x.Version(cmd.Context()); err == nil {
				a.println(fmt.Sprintf("Accelerator: %s (axel %s)", bin, v))
			} else {
				a.println(fmt.Sprintf("Accelerator: %s", bin))
			}

			table, err := a.cfg.Table()
			if err != nil {
				return &exitError{exitConfigError, err}
			}
			policy := table.Policy(a.cfg.Measurement(), 0)
			if m := a.cfg.Measurement(); m != nil {
				a.println(fmt.Sprintf("Last speed test: %s on %s, %s connection(s)", m, m.MeasuredAt.Format("2006-01-02 15:04"), describePolicy(policy)))
			} else {
				a.println(fmt.Sprintf("No speed test yet, %s connection(s)", describePolicy(policy)))
			}
			a.println(fmt.Sprintf("Output folder: %s", download.PathClean(a.cfg.OutputDir())))

			if show {
				a.println("")
				return a.cfg.Encode(a.out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "Print the whole configuration")
	cmd.Flags().BoolVar(&save, "save", false, "Write the configuration file with the current values")
	return cmd
}
