package backend

import (
	"context"
	"time"
)

// Null discards audio at real-time pace. It keeps the engine running on
// machines without an audio device.
type Null struct {
	cfg    Config
	ticker *time.Ticker
}

func NewNull() *Null { return &Null{} }

func (n *Null) Name() string { return "null" }

func (n *Null) Open(cfg Config) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	n.cfg = cfg
	n.ticker = time.NewTicker(time.Duration(cfg.Period) * time.Second / time.Duration(cfg.Rate))
	return cfg, nil
}

func (n *Null) WaitPeriod(ctx context.Context) error {
	select {
	case <-n.ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Null) WritePeriod(left, right []float32) error { return nil }

func (n *Null) Close() error {
	if n.ticker != nil {
		n.ticker.Stop()
		n.ticker = nil
	}
	return nil
}
