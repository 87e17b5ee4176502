package purchase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dreamup/lotto-agent/internal/agent"
	"go.uber.org/zap"
)

// DisabledRecharger is the recharge capability when no PIN or OCR path is
// configured. Every attempt fails without touching the UI.
type DisabledRecharger struct {
	Reason string
}

// Recharge implements Recharger
func (d DisabledRecharger) Recharge(context.Context, int) (agent.AttemptResult, error) {
	reason := d.Reason
	if reason == "" {
		reason = "recharge unavailable"
	}
	return agent.AttemptResult{Verdict: agent.VerdictFailure, Detail: reason}, nil
}

// KeypadRecharger tops up the balance through the easy-charge popup and its
// virtual keypad
type KeypadRecharger struct {
	driver   agent.Driver
	executor *agent.Executor
	keypad   *agent.KeypadResolver
	watcher  *agent.OutcomeWatcher
	evidence *agent.EvidenceStore
	pin      string
	logger   *zap.Logger

	popupWait  time.Duration
	keypadWait time.Duration
}

// NewKeypadRecharger creates a recharger. watcher should use recharge keywords
// and windows.
func NewKeypadRecharger(driver agent.Driver, executor *agent.Executor, keypad *agent.KeypadResolver,
	watcher *agent.OutcomeWatcher, evidence *agent.EvidenceStore, pin string, logger *zap.Logger) *KeypadRecharger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeypadRecharger{
		driver:     driver,
		executor:   executor,
		keypad:     keypad,
		watcher:    watcher,
		evidence:   evidence,
		pin:        pin,
		logger:     logger.Named("recharge"),
		popupWait:  5 * time.Second,
		keypadWait: 15 * time.Second,
	}
}

// Recharge charges amount and classifies the result. The caller's window is
// restored before returning.
func (r *KeypadRecharger) Recharge(ctx context.Context, amount int) (agent.AttemptResult, error) {
	if r.pin == "" {
		return agent.AttemptResult{}, agent.NewConfigError("recharge PIN not configured", nil)
	}

	before, err := r.driver.WindowHandles(ctx)
	if err != nil {
		return agent.AttemptResult{}, err
	}
	mainWindow := ""
	if len(before) > 0 {
		mainWindow = before[0]
	}

	if err := r.driver.Navigate(ctx, PaymentURL); err != nil {
		return agent.AttemptResult{}, err
	}

	if !r.executor.Perform(ctx, chargeAmountTarget, agent.SelectValue(strconv.Itoa(amount))) {
		r.logger.Warn("charge amount not set, page default applies", zap.Int("amount", amount))
	}

	if !r.executor.Perform(ctx, chargeButtonTarget, agent.Click()) {
		return r.fail(ctx, "charge button not usable"), nil
	}

	popup, handles := r.waitForPopup(ctx, before)
	if popup == "" {
		if text, ok := agent.DismissModal(ctx, r.driver); ok {
			return agent.AttemptResult{Verdict: agent.VerdictFailure, Detail: text}, nil
		}
		return r.fail(ctx, "charge popup did not open"), nil
	}
	defer r.restore(ctx, mainWindow)

	if err := r.driver.SwitchWindow(ctx, popup); err != nil {
		return r.fail(ctx, "could not switch to charge popup"), nil
	}

	resolver := r.executor.Resolver()
	if _, err := resolver.ResolveWithin(ctx, "keypad", keypadContainer, r.keypadWait); err != nil {
		return r.fail(ctx, "keypad did not appear"), nil
	}
	keys, err := r.driver.FindAll(ctx, keypadKeys)
	if err != nil || len(keys) == 0 {
		return r.fail(ctx, "keypad has no keys"), nil
	}

	entry, err := r.keypad.EnterPIN(ctx, keys, r.pin)
	if err != nil {
		return agent.AttemptResult{}, err
	}
	r.logger.Info("PIN entry finished",
		zap.String("mode", string(entry.Mode)),
		zap.Int("coverage", entry.Coverage),
		zap.Bool("entered", entry.Entered))
	if !entry.Entered {
		return r.fail(ctx, "PIN entry failed: "+entry.Detail), nil
	}

	res := r.watcher.Classify(ctx, len(handles))
	if !res.Succeeded() {
		r.evidence.TryCapture(ctx, "recharge_failure")
	}
	return res, nil
}

func (r *KeypadRecharger) waitForPopup(ctx context.Context, before []string) (string, []string) {
	known := make(map[string]bool, len(before))
	for _, h := range before {
		known[h] = true
	}
	deadline := time.Now().Add(r.popupWait)
	for {
		handles, err := r.driver.WindowHandles(ctx)
		if err == nil {
			for _, h := range handles {
				if !known[h] {
					return h, handles
				}
			}
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		select {
		case <-ctx.Done():
			return "", nil
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (r *KeypadRecharger) restore(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if err := r.driver.SwitchWindow(ctx, handle); err != nil {
		r.logger.Warn("could not return to main window", zap.Error(err))
	}
}

func (r *KeypadRecharger) fail(ctx context.Context, detail string) agent.AttemptResult {
	r.logger.Warn("recharge failed", zap.String("detail", detail))
	r.evidence.TryCapture(ctx, "recharge_failure")
	return agent.AttemptResult{Verdict: agent.VerdictFailure, Detail: fmt.Sprintf("recharge: %s", detail)}
}
