package purchase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dreamup/lotto-agent/internal/agent"
	"go.uber.org/zap"
)

// GameResult is the outcome of one purchase unit
type GameResult struct {
	Index     int           `json:"index"`
	Selection SelectionType `json:"selection"`
	Numbers   []int         `json:"numbers,omitempty"`
	Verdict   agent.Verdict `json:"verdict"`
	Detail    string        `json:"detail,omitempty"`
	// Category marks a failure with no observed outcome as ambiguous
	Category agent.ErrorCategory `json:"category,omitempty"`
	// Err is set when the failure must abort the run
	Err error `json:"-"`
}

// Succeeded reports whether the game was bought
func (g GameResult) Succeeded() bool {
	return g.Verdict == agent.VerdictSuccess
}

// SiteGamePurchaser buys one game per call on the 6/45 page
type SiteGamePurchaser struct {
	driver   agent.Driver
	executor *agent.Executor
	watcher  *agent.OutcomeWatcher
	evidence *agent.EvidenceStore
	source   NumberSource
	logger   *zap.Logger

	pageWait time.Duration
}

// NewSiteGamePurchaser creates a purchaser. watcher should use purchase
// keywords and windows.
func NewSiteGamePurchaser(driver agent.Driver, executor *agent.Executor, watcher *agent.OutcomeWatcher,
	evidence *agent.EvidenceStore, source NumberSource, logger *zap.Logger) *SiteGamePurchaser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteGamePurchaser{
		driver:   driver,
		executor: executor,
		watcher:  watcher,
		evidence: evidence,
		source:   source,
		logger:   logger.Named("game"),
		pageWait: 10 * time.Second,
	}
}

// PurchaseGame sets up the page, selects numbers per directive, confirms
// and classifies the outcome. Failures are returned in the result; only an
// insufficient balance carries Err.
func (p *SiteGamePurchaser) PurchaseGame(ctx context.Context, index int, d Directive) GameResult {
	res := GameResult{Index: index, Selection: d.Type, Verdict: agent.VerdictFailure}
	log := p.logger.With(zap.Int("game", index), zap.String("selection", string(d.Type)))

	if err := p.setupPage(ctx); err != nil {
		res.Detail = err.Error()
		log.Warn("page setup failed", zap.Error(err))
		return res
	}

	picks := d.Picks(p.source)
	res.Numbers = picks
	if err := p.selectNumbers(ctx, d, picks); err != nil {
		res.Detail = err.Error()
		log.Warn("number selection failed", zap.Error(err))
		return res
	}

	handles, err := p.driver.WindowHandles(ctx)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	if !p.executor.Perform(ctx, buyButtonTarget, agent.Click()) {
		res.Detail = "buy button not usable"
		return res
	}

	// the confirm layer is not always shown; a dialog may come instead
	if _, pending, _ := p.driver.ReadModal(ctx); !pending {
		if !p.executor.Perform(ctx, confirmLayerTarget, agent.Click()) {
			log.Debug("no confirm layer")
		}
	}

	outcome := p.watcher.Classify(ctx, len(handles))
	if outcome.Verdict == agent.VerdictUnknown {
		outcome = p.verifyOnPage(ctx, outcome)
	}
	res.Verdict = outcome.Verdict
	res.Detail = outcome.Detail
	res.Category = outcome.Category

	switch {
	case outcome.Succeeded():
		log.Info("game bought", zap.Ints("numbers", picks))
		p.evidence.TryCapture(ctx, fmt.Sprintf("purchase_%d_%s", index, d.Type))
	case agent.IndicatesInsufficientFunds(outcome.Detail):
		res.Err = agent.NewInsufficientFundsError(outcome.Detail)
		log.Error("balance insufficient for purchase", zap.String("detail", outcome.Detail))
		p.evidence.TryCapture(ctx, fmt.Sprintf("purchase_%d_insufficient", index))
	default:
		log.Warn("game not bought", zap.String("detail", outcome.Detail))
		p.evidence.TryCapture(ctx, fmt.Sprintf("purchase_%d_failure", index))
	}
	return res
}

func (p *SiteGamePurchaser) setupPage(ctx context.Context) error {
	if err := p.driver.Navigate(ctx, GameURL); err != nil {
		return err
	}
	resolver := p.executor.Resolver()
	if !resolver.Present(ctx, quantityTarget.Locators) {
		if _, err := resolver.ResolveWithin(ctx, quantityTarget.Name, quantityTarget.Locators, p.pageWait); err != nil {
			return fmt.Errorf("game page not ready: %w", err)
		}
	}

	if err := p.driver.ExecuteScript(ctx, mixedTabScript, nil); err != nil {
		p.logger.Debug("selection tab script failed", zap.Error(err))
	}
	if !p.executor.Perform(ctx, quantityTarget, agent.SelectValue("1")) {
		return fmt.Errorf("could not reset purchase quantity")
	}
	return nil
}

func (p *SiteGamePurchaser) selectNumbers(ctx context.Context, d Directive, picks []int) error {
	for _, n := range picks {
		if !p.executor.Perform(ctx, numberTarget(n), agent.ToggleOn()) {
			return fmt.Errorf("could not select number %d", n)
		}
	}

	if len(picks) > 0 {
		var selected int
		if err := p.driver.ExecuteScript(ctx, selectedCountScript, &selected); err == nil {
			p.logger.Info("numbers selected", zap.String("selected", strconv.Itoa(selected)+"/"+strconv.Itoa(len(picks))))
		}
	}

	if d.UsesAutoFill() {
		if !p.executor.Perform(ctx, autoSelectTarget, agent.ToggleOn()) {
			return fmt.Errorf("could not enable auto selection")
		}
	}

	if !p.executor.Perform(ctx, applySelectionTarget, agent.Click()) {
		return fmt.Errorf("could not apply selection")
	}
	return nil
}

// verifyOnPage resolves an UNKNOWN outcome from the page text
func (p *SiteGamePurchaser) verifyOnPage(ctx context.Context, prev agent.AttemptResult) agent.AttemptResult {
	text, err := p.driver.PageText(ctx)
	if err == nil {
		for _, m := range purchaseMarkers {
			if strings.Contains(strings.ToLower(text), strings.ToLower(m)) {
				return agent.AttemptResult{Verdict: agent.VerdictSuccess, Detail: prev.Detail + " (page shows " + m + ")"}
			}
		}
	}
	return agent.AttemptResult{
		Verdict:  agent.VerdictFailure,
		Detail:   prev.Detail + " (unverified)",
		Category: agent.ErrorCategoryAmbiguous,
	}
}
