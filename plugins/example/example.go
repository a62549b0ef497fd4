// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

// Package example provides the workers compiled into the mpps binary.
//
// Both read their settings from <config-dir>/<name>.conf:
//
//	debug: true      # example: also send a notify and an err message
//	data: payload    # example: content of the data message
//	count: 3         # ticker: number of data messages
//	interval: 50ms   # ticker: delay between them
package example

import (
	"context"
	"strconv"
	"time"

	"github.com/mpps/mpps/pkg/plugin"
)

// Built-in worker names.
const (
	ExampleName = "example"
	TickerName  = "ticker"
)

// Factories returns the built-in worker factories keyed by name.
func Factories() map[string]plugin.Factory {
	return map[string]plugin.Factory{
		ExampleName: NewExample,
		TickerName:  NewTicker,
	}
}

// Example reports a short fixed sequence and finishes.
type Example struct {
	*plugin.Base
}

// NewExample creates an Example worker.
func NewExample(q *plugin.Queue, configDir, name string) (plugin.Worker, error) {
	return &Example{Base: plugin.NewBase(q, configDir, name)}, nil
}

type step struct {
	status  plugin.Status
	content string
}

// Run sends warn, optionally notify and err, then data and fin.
func (e *Example) Run(_ context.Context) error {
	cfg := e.Config()
	steps := []step{{plugin.StatusWarning, "Example Plugin Running"}}
	if cfg.Bool("debug") {
		steps = append(steps,
			step{plugin.StatusNotify, "Debug Test"},
			step{plugin.StatusError, "Debug Error Test"},
		)
	}
	data := cfg.String("data")
	if data == "" {
		data = "Example Data"
	}
	steps = append(steps, step{plugin.StatusData, data}, step{plugin.StatusFinished, ""})

	for _, s := range steps {
		if err := e.Send(s.status, s.content); err != nil {
			return err
		}
	}
	return nil
}

// Ticker sends a numbered data message per interval, then fin.
type Ticker struct {
	*plugin.Base
	count    int
	interval time.Duration
}

// Ticker defaults.
const (
	DefaultTickerCount    = 3
	DefaultTickerInterval = 50 * time.Millisecond
)

// NewTicker creates a Ticker worker.
func NewTicker(q *plugin.Queue, configDir, name string) (plugin.Worker, error) {
	t := &Ticker{
		Base:     plugin.NewBase(q, configDir, name),
		count:    DefaultTickerCount,
		interval: DefaultTickerInterval,
	}
	cfg := t.Config()
	if cfg.Exists("count") {
		t.count = cfg.Int("count")
	}
	if raw := cfg.String("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		switch {
		case err != nil:
			_ = t.Send(plugin.StatusWarning, "ignoring interval "+strconv.Quote(raw)+": "+err.Error())
		case d <= 0:
			_ = t.Send(plugin.StatusWarning, "ignoring non-positive interval "+strconv.Quote(raw))
		default:
			t.interval = d
		}
	}
	return t, nil
}

// Run ticks until count messages were sent or ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	tick := time.NewTicker(t.interval)
	defer tick.Stop()
	for i := 1; i <= t.count; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
		if err := t.Send(plugin.StatusData, strconv.Itoa(i)); err != nil {
			return err
		}
	}
	return t.Send(plugin.StatusFinished, "")
}
