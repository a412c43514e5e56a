package main

import (
	"context"
	"io"
	"sync"

	"github.com/vbauerster/mpb/v6"
	"github.com/vbauerster/mpb/v6/decor"

	"github.com/simulot/aspiradl/pkg/models"
)

// barContainer shows one bar per running transfer
type barContainer struct {
	*mpb.Progress
	sync.Mutex
	names  map[string]string // spec ID -> file name
	order  map[string]int    // spec ID -> queue position
	bars   map[string]*downloadBar
	report func(models.TransferResult)
}

type downloadBar struct {
	*mpb.Bar
	current int64
}

// NewBarContainer create a mpb container for download bars
func NewBarContainer(ctx context.Context, w io.Writer, specs []models.TransferSpec, report func(models.TransferResult)) *barContainer {
	c := &barContainer{
		Progress: mpb.NewWithContext(
			ctx,
			mpb.WithWidth(64),
			mpb.WithOutput(w),
		),
		names:  map[string]string{},
		order:  map[string]int{},
		bars:   map[string]*downloadBar{},
		report: report,
	}
	for i, s := range specs {
		c.names[s.ID] = left(baseName(s.Destination), 40)
		c.order[s.ID] = i
	}
	return c
}

// OnMessage follows the messages published by the transfers
func (c *barContainer) OnMessage(m *models.Message) {
	c.Lock()
	defer c.Unlock()
	switch {
	case m.Progression != nil:
		b := c.bar(m.SpecID)
		p := m.Progression
		if p.Total > 0 {
			b.SetTotal(p.Total, false)
		}
		if p.Current >= b.current {
			b.SetCurrent(p.Current)
			b.current = p.Current
		}
	case m.Result != nil:
		if b, ok := c.bars[m.SpecID]; ok {
			if m.Result.Final == models.FinalSuccess {
				b.SetTotal(b.current, true)
			} else {
				b.Abort(false)
			}
			delete(c.bars, m.SpecID)
		}
		if c.report != nil {
			c.report(*m.Result)
		}
	}
}

func (c *barContainer) bar(id string) *downloadBar {
	if b, ok := c.bars[id]; ok {
		return b
	}
	name := c.names[id]
	b := &downloadBar{
		Bar: c.AddBar(0,
			mpb.BarWidth(24),
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DidentRight}),
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
				decor.AverageSpeed(decor.UnitKiB, " % .1f", decor.WC{W: 15, C: decor.DidentRight}),
			),
		),
	}
	b.SetPriority(c.order[id])
	c.bars[id] = b
	return b
}

// Done waits for the bars to be rendered a last time
func (c *barContainer) Done() {
	c.Lock()
	for id, b := range c.bars {
		b.Abort(false)
		delete(c.bars, id)
	}
	c.Unlock()
	c.Wait()
}

func left(s string, l int) string {
	r := []rune(s)
	if len(r) > l {
		return string(r[:l])
	}
	return s
}
