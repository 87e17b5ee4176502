package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Target is a logical UI element and the ways it can be reached
type Target struct {
	// Name is a descriptive name used in logs ("login button", "number 7")
	Name string
	// Locators are tried in priority order
	Locators []Locator
	// Secondary locates an associated control, e.g. the label bound to a
	// hidden checkbox
	Secondary []Locator
	// Script invokes the page's own handler for the same state change
	Script string
}

// DefaultResolveTimeout is the per-strategy budget
const DefaultResolveTimeout = 3 * time.Second

// Resolver finds the first interactable control for a Target
type Resolver struct {
	driver   Driver
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewResolver creates a resolver. timeout applies to each locator
// separately, not cumulatively.
func NewResolver(driver Driver, timeout time.Duration, logger *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		driver:   driver,
		timeout:  timeout,
		interval: 100 * time.Millisecond,
		logger:   logger.Named("resolver"),
	}
}

// Resolve tries each primary locator of t in order
func (r *Resolver) Resolve(ctx context.Context, t Target) (Control, error) {
	return r.ResolveWithin(ctx, t.Name, t.Locators, r.timeout)
}

// ResolveSecondary tries the secondary locators of t
func (r *Resolver) ResolveSecondary(ctx context.Context, t Target) (Control, error) {
	return r.ResolveWithin(ctx, t.Name+" (secondary)", t.Secondary, r.timeout)
}

// ResolveWithin walks locators giving each its own timeout budget and
// returns the first control that is present and interactable. Exhaustion
// yields a resolution error wrapping ErrNotFound.
func (r *Resolver) ResolveWithin(ctx context.Context, name string, locators []Locator, timeout time.Duration) (Control, error) {
	for i, loc := range locators {
		c, err := r.poll(ctx, loc, timeout)
		if err == nil {
			r.logger.Debug("resolved",
				zap.String("target", name),
				zap.Stringer("locator", loc),
				zap.Int("strategy", i+1))
			return c, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	r.logger.Debug("not found", zap.String("target", name), zap.Int("strategies", len(locators)))
	return nil, NewResolutionError(name)
}

func (r *Resolver) poll(ctx context.Context, loc Locator, timeout time.Duration) (Control, error) {
	deadline := time.Now().Add(timeout)
	for {
		if c := r.firstInteractable(ctx, loc); c != nil {
			return c, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNotFound
		}
		if err := sleep(ctx, min(r.interval, remaining)); err != nil {
			return nil, err
		}
	}
}

func (r *Resolver) firstInteractable(ctx context.Context, loc Locator) Control {
	controls, err := r.driver.FindAll(ctx, loc)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Debug("lookup failed", zap.Stringer("locator", loc), zap.Error(err))
		}
		return nil
	}
	for _, c := range controls {
		if ok, err := c.Interactable(ctx); err == nil && ok {
			return c
		}
	}
	return nil
}

// Present reports whether any locator currently matches, interactable or not
func (r *Resolver) Present(ctx context.Context, locators []Locator) bool {
	for _, loc := range locators {
		if _, err := r.driver.Find(ctx, loc); err == nil {
			return true
		}
	}
	return false
}
