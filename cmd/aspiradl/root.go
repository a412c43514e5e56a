package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/simulot/aspiradl/pkg/config"
	"github.com/simulot/aspiradl/pkg/messages"
	"github.com/simulot/aspiradl/pkg/mylog"
)

// app holds what all commands share
type app struct {
	configFile string
	logLevel   string
	logFile    string

	cfg     *config.Config
	log     *mylog.MyLog
	tr      *messages.Translator
	out     io.Writer
	closers []io.Closer
}

func newApp() *app {
	return &app{out: os.Stdout}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "aspiradl",
		Short: "aspiradl - adaptive episode downloader",
		Long: `aspiradl downloads episode lists with the axel accelerator.
The number of connections is derived from a measure of the bandwidth,
failed transfers are retried and resumed, and completed episodes are
remembered so they are not downloaded twice.`,
		Version:           fmt.Sprintf("%s, commit %s, built at %s", version, commit, date),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.initialize,
	}
	a.globalFlags(root.PersistentFlags())

	root.AddCommand(
		a.downloadCommand(),
		a.speedtestCommand(),
		a.configCommand(),
		a.historyCommand(),
	)
	return root
}

func (a *app) globalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&a.configFile, "config", "", "Configuration file (default: user config folder)")
	fs.StringVar(&a.logLevel, "log-level", "", "Log level: FATAL, ERROR, INFO, TRACE, DEBUG")
	fs.StringVar(&a.logFile, "log", "", "Log file, JSON lines")
}

// initialize loads the configuration, the logger and the translations
func (a *app) initialize(cmd *cobra.Command, args []string) error {
	var err error
	if a.configFile == "" {
		a.configFile, err = config.DefaultPath()
		if err != nil {
			return &exitError{exitConfigError, fmt.Errorf("can't locate the configuration folder: %w", err)}
		}
	}
	a.cfg, err = config.Load(a.configFile)
	if err != nil {
		return &exitError{exitConfigError, err}
	}

	lvl := a.logLevel
	if lvl == "" {
		lvl = a.cfg.UI.Verbosity
	}
	var file io.Writer
	if a.logFile != "" {
		p, err := homedir.Expand(a.logFile)
		if err != nil {
			return &exitError{exitConfigError, err}
		}
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return &exitError{exitConfigError, fmt.Errorf("can't open log file: %w", err)}
		}
		a.closers = append(a.closers, f)
		file = f
	}
	a.log, err = mylog.NewLog(lvl, os.Stderr, file)
	if err != nil {
		return &exitError{exitConfigError, err}
	}

	a.tr, err = messages.New(a.cfg.UI.Language)
	if err != nil {
		return err
	}
	a.log.Debug().Printf("Configuration %q loaded", a.cfg.Path())
	return nil
}

func (a *app) println(s string) {
	fmt.Fprintln(a.out, s)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}
