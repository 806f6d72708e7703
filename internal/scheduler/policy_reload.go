package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/folio/internal/canon"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/sources/policy"
)

// PolicyReloader handles periodic reloading of the site policy file
type PolicyReloader struct {
	loader        *policy.Loader
	canon         *canon.Canonicalizer
	active        *policy.Active
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewPolicyReloader creates a new policy reloader
func NewPolicyReloader(
	policyFile string,
	c *canon.Canonicalizer,
	active *policy.Active,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *PolicyReloader {
	return &PolicyReloader{
		loader:        policy.NewLoader(policyFile),
		canon:         c,
		active:        active,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the policy once, then reloads it on every tick and on every
// manual trigger
func (pr *PolicyReloader) Start(ctx context.Context) error {
	// Load immediately on start
	if err := pr.Reload(ctx); err != nil {
		return fmt.Errorf("initial reload failed: %w", err)
	}

	ticker := time.NewTicker(pr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := pr.Reload(ctx); err != nil {
					pr.logger.Error("failed to reload policy",
						logger.Error(err))
				}
			case <-pr.manualTrigger:
				pr.logger.Info("manual reload triggered")
				if err := pr.Reload(ctx); err != nil {
					pr.logger.Error("failed to reload policy",
						logger.Error(err))
				}
			case <-pr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (pr *PolicyReloader) Stop() {
	close(pr.stopCh)
}

// Reload reads the policy file and swaps it in. On failure the policy in
// force stays untouched.
func (pr *PolicyReloader) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := pr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	pr.canon.SetPolicy(p.Canon())
	pr.active.Store(p)

	pr.logger.Info("policy reloaded",
		logger.String("file", pr.loader.Path()),
		logger.Int("fragment_hosts", len(p.KeepFragmentHosts)),
		logger.Int("ttl_overrides", p.Overrides()))

	return nil
}
