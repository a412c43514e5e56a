package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/simulot/aspiradl/pkg/config"
	"github.com/simulot/aspiradl/pkg/dispatcher"
	"github.com/simulot/aspiradl/pkg/download"
	"github.com/simulot/aspiradl/pkg/models"
	"github.com/simulot/aspiradl/pkg/myhttp"
	"github.com/simulot/aspiradl/pkg/naming"
	"github.com/simulot/aspiradl/pkg/orchestrator"
	"github.com/simulot/aspiradl/pkg/preflight"
	"github.com/simulot/aspiradl/pkg/retry"
	"github.com/simulot/aspiradl/pkg/selection"
	"github.com/simulot/aspiradl/pkg/store"
)

type downloadFlags struct {
	episodes    string
	connections int
	parallel    int
	output      string
	force       bool
	headless    bool
	retest      bool
}

func (a *app) downloadCommand() *cobra.Command {
	f := &downloadFlags{}
	cmd := &cobra.Command{
		Use:   "download MANIFEST",
		Short: "Download the episodes listed in the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.download(cmd.Context(), args[0], f)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.episodes, "episodes", "e", "all", "Episodes to download: all, 3, 1-5, 8-, 1-3,7")
	fs.IntVarP(&f.connections, "connections", "n", 0, "Force the number of connections (0: from speed test)")
	fs.IntVarP(&f.parallel, "parallel", "p", 0, "Episodes downloaded at the same time (0: from configuration)")
	fs.StringVarP(&f.output, "output", "o", "", "Download folder (default: from configuration)")
	fs.BoolVar(&f.force, "force", false, "Download again episodes already downloaded")
	fs.BoolVar(&f.headless, "headless", false, "Headless mode. Progression bars are not displayed")
	fs.BoolVar(&f.retest, "retest", false, "Measure the speed again before downloading")
	return cmd
}

func (a *app) download(ctx context.Context, manifest string, f *downloadFlags) error {
	m, err := ReadManifest(manifest)
	if err != nil {
		return err
	}
	sel, err := selection.Parse(f.episodes)
	if err != nil {
		return err
	}
	episodes := m.Select(sel)
	if len(episodes) == 0 {
		a.println(a.tr.T("download_nothing", nil))
		return nil
	}

	pattern, err := naming.ParsePattern(a.cfg.Download.NamingPattern)
	if err != nil {
		return &exitError{exitConfigError, err}
	}
	outputDir := a.cfg.OutputDir()
	if f.output != "" {
		outputDir = download.PathClean(f.output)
	}
	width := a.cfg.Download.ParallelEpisodes
	if f.parallel > 0 {
		width = f.parallel
	}

	client := a.httpClient()
	if err = a.probeSizes(ctx, client, episodes, width); err != nil {
		return err
	}

	policy, err := a.connectionPolicy(ctx, client, f.retest, f.connections)
	if err != nil {
		return err
	}

	b := specBuilder{
		namer:       naming.New(pattern, a.cfg.Download.CustomPattern),
		outputDir:   outputDir,
		connections: policy.Connections,
		resume:      a.cfg.Download.AutoResume,
	}
	specs := make([]models.TransferSpec, 0, len(episodes))
	for _, e := range episodes {
		specs = append(specs, b.spec(m, e))
	}

	historyFile, err := a.historyFile()
	if err != nil {
		return err
	}
	st, err := store.OpenStoreBolt(historyFile, a.log.Error())
	if err != nil {
		return err
	}
	defer st.Close()

	d := dispatcher.NewDispatcher()
	st.Listen(d)

	axel := a.accelerator().WithProgresser(d.Progresser())
	if _, err := axel.Locate(); err != nil {
		a.log.Error().Printf("%s", a.tr.T("accelerator_missing", map[string]interface{}{"Error": err}))
	}

	sched := retry.New(axel).
		WithLogger(a.log.Info()).
		WithMaxAttempts(a.cfg.Download.RetryAttempts).
		WithBaseDelay(a.cfg.Download.BaseDelay.Duration())
	if a.cfg.Download.CheckDiskSpace {
		sched = sched.WithGate(preflight.NewGate().
			WithLogger(a.log.Info()).
			WithSafetyMargin(a.cfg.Download.SafetyMargin).
			WithMinFreeBytes(a.cfg.MinFreeBytes()))
	}

	orch := orchestrator.New(sched).
		WithLogger(a.log.Info()).
		WithPublisher(d).
		WithCompletion(func(s models.TransferSpec) bool {
			return !f.force && alreadyDownloaded(st, s)
		})

	a.println(a.tr.N("download_batch", len(specs), map[string]interface{}{"Series": m.Series}))
	a.log.Info().Printf("%d episode(s) to %s with %d connection(s), %d at a time", len(specs), outputDir, policy.Connections, width)

	var bars *barContainer
	if !f.headless && !a.cfg.UI.Headless && isatty.IsTerminal(os.Stderr.Fd()) {
		bars = NewBarContainer(ctx, os.Stderr, specs, a.reportResult)
		d.Subscribe(bars.OnMessage)
	} else {
		d.Subscribe(func(m *models.Message) {
			if m.Result != nil {
				a.reportResult(*m.Result)
			}
		})
	}

	results, err := orch.Run(ctx, specs, width)
	if err != nil {
		d.Close()
		return err
	}
	for r := range results {
		a.log.Debug().Printf("[DOWNLOAD] %s", r)
	}
	d.Close()
	if bars != nil {
		bars.Done()
	}

	sum := orch.Summary()
	if ctx.Err() != nil {
		a.println(a.tr.T("download_interrupted", nil))
	}
	a.println(a.tr.T("download_summary", map[string]interface{}{
		"Success":   sum.Success,
		"Failed":    sum.Failed,
		"Skipped":   sum.Skipped,
		"Cancelled": sum.Cancelled,
	}))
	switch {
	case ctx.Err() != nil || sum.Cancelled > 0:
		return &exitError{code: exitCancelled}
	case sum.Failed > 0:
		return &exitError{code: exitFailed}
	}
	return nil
}

// alreadyDownloaded checks the history, then a complete file left without resume state
func alreadyDownloaded(st store.HistoryInterface, s models.TransferSpec) bool {
	if st.IsComplete(s) {
		return true
	}
	if !s.HasExpectedBytes() || download.HasResumeState(s.Destination) {
		return false
	}
	fi, err := os.Stat(s.Destination)
	return err == nil && fi.Size() == s.ExpectedBytes
}

func (a *app) reportResult(r models.TransferResult) {
	data := map[string]interface{}{
		"File":   baseName(r.Spec.Destination),
		"Reason": r.Reason,
	}
	switch r.Final {
	case models.FinalSuccess:
		a.println(a.tr.T("download_success", data))
	case models.FinalSkipped:
		a.println(a.tr.T("download_skipped", data))
	case models.FinalCancelled:
		a.println(a.tr.T("download_cancelled", data))
	default:
		a.println(a.tr.T("download_failed", data))
	}
}

func (a *app) httpClient() *myhttp.Client {
	return myhttp.NewClient(
		myhttp.WithLogger(a.log.Trace()),
		myhttp.WithUserAgent(a.cfg.Network.UserAgent),
	)
}

func (a *app) accelerator() *download.Axel {
	x := download.NewAxel().
		WithLogger(a.log.Info()).
		WithUserAgent(a.cfg.Network.UserAgent).
		WithSpeedLimit(a.cfg.SpeedLimit()).
		WithMaxRedirect(a.cfg.Network.MaxRedirect).
		WithStallTimeout(a.cfg.Network.StallTimeout.Duration())
	if !a.cfg.Axel.UseSystemBinary && a.cfg.Axel.BinaryPath != "" {
		x = x.WithBinary(download.PathClean(a.cfg.Axel.BinaryPath))
	}
	return x
}

// probeSizes asks the server the size of the episodes missing it in the manifest
func (a *app) probeSizes(ctx context.Context, client *myhttp.Client, episodes []ManifestEpisode, width int) error {
	urls := []string{}
	idx := []int{}
	for i, e := range episodes {
		if e.Size <= 0 {
			urls = append(urls, e.URL)
			idx = append(idx, i)
		}
	}
	if len(urls) == 0 {
		return nil
	}
	sizes, err := client.ProbeSizes(ctx, urls, width)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &exitError{exitCancelled, err}
		}
		return err
	}
	for i, n := range sizes {
		episodes[idx[i]].Size = n
		if n > 0 {
			a.log.Trace().Printf("[DOWNLOAD] Episode %d: %s", episodes[idx[i]].Number, humanize.IBytes(uint64(n)))
		}
	}
	return nil
}

func (a *app) historyFile() (string, error) {
	if a.cfg.Path() != "" {
		return filepath.Join(filepath.Dir(a.cfg.Path()), config.HistoryName), nil
	}
	d, err := config.Dir()
	if err != nil {
		return "", fmt.Errorf("can't locate the history: %w", err)
	}
	return filepath.Join(d, config.HistoryName), nil
}

func baseName(p string) string {
	return filepath.Base(p)
}
