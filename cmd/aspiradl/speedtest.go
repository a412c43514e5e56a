package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simulot/aspiradl/pkg/models"
	"github.com/simulot/aspiradl/pkg/myhttp"
	"github.com/simulot/aspiradl/pkg/speedtest"
	"github.com/simulot/aspiradl/pkg/tiers"
)

func (a *app) speedtestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "speedtest",
		Short: "Measure the download speed and save the connection count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.measure(cmd.Context(), a.httpClient())
			if errors.Is(err, context.Canceled) {
				return &exitError{exitCancelled, err}
			}
			return err
		},
	}
}

// measure runs the speed test, saves the result and returns the policy it gives.
// A failed test gives the degraded policy; only a cancellation is an error.
func (a *app) measure(ctx context.Context, client *myhttp.Client) (models.ConnectionPolicy, error) {
	table, err := a.cfg.Table()
	if err != nil {
		return models.ConnectionPolicy{}, &exitError{exitConfigError, err}
	}

	a.println(a.tr.T("speedtest_starting", nil))
	m, err := speedtest.New(client).
		WithLogger(a.log.Info()).
		WithURL(a.cfg.Speedtest.URL).
		WithDuration(a.cfg.Speedtest.Timeout.Duration()).
		Run(ctx)
	if err != nil && ctx.Err() != nil {
		return models.ConnectionPolicy{}, ctx.Err()
	}

	policy := table.Policy(m, 0)
	if err != nil {
		a.println(a.tr.T("speedtest_failed", map[string]interface{}{
			"Error":       err,
			"Connections": policy.Connections,
		}))
		return policy, nil
	}

	a.println(a.tr.T("speedtest_completed", map[string]interface{}{
		"Speed":       m.String(),
		"Tier":        tiers.TierName(m.Mbps),
		"Connections": policy.Connections,
	}))
	a.cfg.SetMeasurement(m, policy.Connections)
	if err = a.cfg.Save(); err != nil {
		a.log.Error().Printf("Can't save the speed test: %s", err)
	} else {
		a.println(a.tr.T("config_saved", map[string]interface{}{"Path": a.cfg.Path()}))
	}
	return policy, nil
}

// connectionPolicy gives the connection count of the batch.
// The speed is measured when asked or never measured before, unless the user forced the count.
func (a *app) connectionPolicy(ctx context.Context, client *myhttp.Client, retest bool, override int) (models.ConnectionPolicy, error) {
	table, err := a.cfg.Table()
	if err != nil {
		return models.ConnectionPolicy{}, &exitError{exitConfigError, err}
	}
	if override > 0 && !retest {
		return table.Policy(nil, override), nil
	}
	m := a.cfg.Measurement()
	if retest || m == nil {
		p, err := a.measure(ctx, client)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return p, &exitError{exitCancelled, err}
			}
			return p, err
		}
		if override > 0 {
			return table.Policy(nil, override), nil
		}
		return p, nil
	}
	p := table.Policy(m, 0)
	a.log.Info().Printf("Using the speed measured on %s: %s, %d connection(s)", m.MeasuredAt.Format("2006-01-02"), m, p.Connections)
	return p, nil
}

func describePolicy(p models.ConnectionPolicy) string {
	if p.Overridden {
		return fmt.Sprintf("%d (forced)", p.Connections)
	}
	return fmt.Sprint(p.Connections)
}
