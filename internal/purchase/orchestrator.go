package purchase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dreamup/lotto-agent/internal/agent"
	"github.com/dreamup/lotto-agent/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a step of a purchase run
type State string

const (
	StateInit            State = "INIT"
	StateLoggedIn        State = "LOGGED_IN"
	StateBalanceKnown    State = "BALANCE_KNOWN"
	StateRecharged       State = "RECHARGED"
	StateRechargeSkipped State = "RECHARGE_SKIPPED"
	StatePurchasing      State = "PURCHASING"
	StateReported        State = "REPORTED"
	StateDone            State = "DONE"
	StateAborted         State = "ABORTED"
)

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

var transitions = map[State][]State{
	StateInit:            {StateLoggedIn},
	StateLoggedIn:        {StateBalanceKnown},
	StateBalanceKnown:    {StateRecharged, StateRechargeSkipped},
	StateRecharged:       {StatePurchasing},
	StateRechargeSkipped: {StatePurchasing},
	StatePurchasing:      {StateReported},
	StateReported:        {StateDone},
}

func canTransition(from, to State) bool {
	if to == StateAborted {
		return !from.Terminal()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Authenticator logs in to the site
type Authenticator interface {
	Login(ctx context.Context) error
}

// BalanceReader reads the current deposit balance. It never fails; an
// unreadable balance is reported as 0.
type BalanceReader interface {
	ReadBalance(ctx context.Context) BalanceSnapshot
}

// Recharger tops up the balance
type Recharger interface {
	Recharge(ctx context.Context, amount int) (agent.AttemptResult, error)
}

// GamePurchaser buys a single game
type GamePurchaser interface {
	PurchaseGame(ctx context.Context, index int, d Directive) GameResult
}

// Settings configure one run
type Settings struct {
	// RunID names the run; empty generates one
	RunID         string
	UserID        string
	PurchaseCount int
	UnitPrice     int
	Recharge      RechargeConfig
	Directives    []Directive
}

// Dependencies are the collaborators of an Orchestrator. Evidence, Notifier
// and Session may be nil.
type Dependencies struct {
	Login     Authenticator
	Balance   BalanceReader
	Recharger Recharger
	Games     GamePurchaser
	Evidence  *agent.EvidenceStore
	Notifier  notify.Notifier
	// Session is closed when the run ends, whatever the outcome
	Session io.Closer
}

// Transition records one state change
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// RunReport is the audit record of a run
type RunReport struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id,omitempty"`
	State          State         `json:"state"`
	Requested      int           `json:"requested"`
	Planned        int           `json:"planned"`
	Attempted      int           `json:"attempted"`
	Succeeded      int           `json:"succeeded"`
	TotalAmount    int           `json:"total_amount"`
	BalanceBefore  int           `json:"balance_before"`
	BalanceSource  BalanceSource `json:"balance_source,omitempty"`
	BalanceAfter   int           `json:"balance_after"`
	RechargeAmount int           `json:"recharge_amount,omitempty"`
	RechargeDetail string        `json:"recharge_detail,omitempty"`
	Games          []GameResult  `json:"games"`
	AbortReason    string        `json:"abort_reason,omitempty"`
	Transitions    []Transition  `json:"transitions"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Duration is how long the run took
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Orchestrator drives one purchase run through its states
type Orchestrator struct {
	deps     Dependencies
	settings Settings
	logger   *zap.Logger

	report *RunReport
	// balance is the working balance: the opening reading, replaced by the
	// reading after a successful recharge
	balance int
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Dependencies, settings Settings, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Recharger == nil {
		deps.Recharger = DisabledRecharger{Reason: "recharge not configured"}
	}
	if settings.UnitPrice <= 0 {
		settings.UnitPrice = DefaultUnitPrice
	}
	return &Orchestrator{
		deps:     deps,
		settings: settings,
		logger:   logger.Named("orchestrator"),
	}
}

// Run performs the whole run. The report is returned on every path; the
// error is non-nil exactly when the run ends ABORTED.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	id := o.settings.RunID
	if id == "" {
		id = uuid.New().String()
	}
	o.report = &RunReport{
		ID:        id,
		UserID:    o.settings.UserID,
		State:     StateInit,
		Requested: o.settings.PurchaseCount,
		Games:     []GameResult{},
		StartedAt: time.Now(),
	}
	o.balance = 0
	defer o.closeSession()

	log := o.logger.With(zap.String("run_id", o.report.ID))
	o.notify(notify.ProgramStart, notify.LevelInfo, notify.Fields{"games": o.settings.PurchaseCount})

	if o.settings.PurchaseCount < 1 {
		return o.abort(ctx, agent.NewConfigError("purchase count must be at least 1", nil))
	}
	if err := ValidateDirectives(o.settings.Directives); err != nil {
		return o.abort(ctx, err)
	}

	// INIT -> LOGGED_IN
	o.notify(notify.LoginStart, notify.LevelInfo, notify.Fields{"user_id": o.settings.UserID})
	if err := o.deps.Login.Login(ctx); err != nil {
		o.notify(notify.LoginFailure, notify.LevelError, notify.Fields{"user_id": o.settings.UserID, "error": err.Error()})
		if agent.CategoryOf(err) == "" {
			err = agent.NewAuthenticationError("login failed", err)
		}
		return o.abort(ctx, err)
	}
	o.advance(StateLoggedIn, "")
	o.notify(notify.LoginSuccess, notify.LevelSuccess, notify.Fields{"user_id": o.settings.UserID})

	// LOGGED_IN -> BALANCE_KNOWN
	snap := o.deps.Balance.ReadBalance(ctx)
	o.report.BalanceBefore = snap.Value
	o.report.BalanceSource = snap.Source
	o.balance = snap.Value
	o.advance(StateBalanceKnown, fmt.Sprintf("%d (%s)", snap.Value, snap.Source))
	o.notify(notify.BalanceCheck, notify.LevelInfo, notify.Fields{"balance": o.balance, "source": string(snap.Source)})

	// BALANCE_KNOWN -> RECHARGED | RECHARGE_SKIPPED
	o.balance = o.rechargeIfNeeded(ctx, o.balance)
	balance := o.balance
	if err := ctx.Err(); err != nil {
		return o.abort(ctx, err)
	}

	planned, err := PlanGames(balance, o.settings.PurchaseCount, o.settings.UnitPrice)
	if err != nil {
		return o.abort(ctx, err)
	}
	if planned < o.settings.PurchaseCount {
		log.Warn("purchase count clamped to balance",
			zap.Int("requested", o.settings.PurchaseCount),
			zap.Int("affordable", planned),
			zap.Int("balance", balance))
	}
	o.report.Planned = planned

	// PURCHASING(1..N)
	o.advance(StatePurchasing, fmt.Sprintf("%d games", planned))
	o.notify(notify.PurchaseStart, notify.LevelInfo, notify.Fields{"games": planned, "balance": balance})
	for i := 1; i <= planned; i++ {
		if err := ctx.Err(); err != nil {
			return o.abort(ctx, err)
		}
		d := DirectiveFor(o.settings.Directives, i-1)
		res := o.deps.Games.PurchaseGame(ctx, i, d)
		o.report.Games = append(o.report.Games, res)
		o.report.Attempted++

		if res.Succeeded() {
			o.report.Succeeded++
			log.Info("game purchased", zap.Int("game", i), zap.String("selection", string(d.Type)))
			continue
		}
		log.Warn("game failed", zap.Int("game", i), zap.String("detail", res.Detail))
		if res.Err != nil && agent.IsFatal(res.Err) {
			return o.abort(ctx, res.Err)
		}
		o.notify(notify.PurchaseFailure, notify.LevelWarning, notify.Fields{"game": i, "error": res.Detail})
	}

	// REPORTED -> DONE
	o.tally()
	o.advance(StateReported, "")
	level := notify.LevelSuccess
	if o.report.Succeeded < o.report.Attempted {
		level = notify.LevelWarning
	}
	o.notify(notify.PurchaseSuccess, level, notify.Fields{
		"games":        o.report.Succeeded,
		"attempted":    o.report.Attempted,
		"total_amount": o.report.TotalAmount,
	})

	o.advance(StateDone, "")
	o.report.FinishedAt = time.Now()
	o.notify(notify.ProgramComplete, notify.LevelInfo, notify.Fields{"run_id": o.report.ID})
	log.Info("run complete",
		zap.Int("attempted", o.report.Attempted),
		zap.Int("succeeded", o.report.Succeeded),
		zap.Int("total_amount", o.report.TotalAmount))
	return o.report, nil
}

func (o *Orchestrator) rechargeIfNeeded(ctx context.Context, balance int) int {
	decision := Decide(balance, o.settings.Recharge)
	if !decision.ShouldRecharge {
		o.advance(StateRechargeSkipped, "not needed")
		return balance
	}

	o.notify(notify.RechargeStart, notify.LevelInfo, notify.Fields{"amount": decision.Amount, "balance": balance})
	res, err := o.deps.Recharger.Recharge(ctx, decision.Amount)
	if err != nil || !res.Succeeded() {
		detail := res.Detail
		if err != nil {
			detail = err.Error()
		}
		o.report.RechargeDetail = detail
		o.logger.Warn("recharge failed", zap.Int("amount", decision.Amount), zap.String("detail", detail))
		o.notify(notify.RechargeFailure, notify.LevelError, notify.Fields{"amount": decision.Amount, "error": detail})
		o.advance(StateRechargeSkipped, "recharge failed: "+detail)
		return balance
	}

	o.report.RechargeAmount = decision.Amount
	o.report.RechargeDetail = res.Detail
	snap := o.deps.Balance.ReadBalance(ctx)
	o.logger.Info("balance after recharge", zap.Int("balance", snap.Value), zap.String("source", string(snap.Source)))
	o.notify(notify.RechargeSuccess, notify.LevelSuccess, notify.Fields{"amount": decision.Amount, "balance": snap.Value})
	o.advance(StateRecharged, fmt.Sprintf("%d (%s)", snap.Value, snap.Source))
	return snap.Value
}

func (o *Orchestrator) tally() {
	o.report.TotalAmount = o.report.Succeeded * o.settings.UnitPrice
	o.report.BalanceAfter = max(o.balance-o.report.TotalAmount, 0)
}

func (o *Orchestrator) advance(to State, note string) {
	from := o.report.State
	if !canTransition(from, to) {
		// a bug in Run, not a runtime condition
		panic(fmt.Sprintf("purchase: illegal transition %s -> %s", from, to))
	}
	o.report.State = to
	o.report.Transitions = append(o.report.Transitions, Transition{From: from, To: to, At: time.Now(), Note: note})
	o.logger.Debug("state", zap.String("from", string(from)), zap.String("to", string(to)), zap.String("note", note))
}

func (o *Orchestrator) abort(ctx context.Context, err error) (*RunReport, error) {
	o.tally()
	o.report.AbortReason = err.Error()
	o.advance(StateAborted, err.Error())
	o.report.FinishedAt = time.Now()

	o.logger.Error("run aborted",
		zap.String("run_id", o.report.ID),
		zap.String("category", string(agent.CategoryOf(err))),
		zap.Error(err))

	// the run context may already be cancelled
	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	o.deps.Evidence.TryCapture(captureCtx, "aborted")

	o.notify(notify.RunAborted, notify.LevelCritical, notify.Fields{
		"state":     string(o.previousState()),
		"error":     err.Error(),
		"attempted": o.report.Attempted,
		"succeeded": o.report.Succeeded,
	})
	return o.report, fmt.Errorf("run aborted: %w", err)
}

func (o *Orchestrator) previousState() State {
	if n := len(o.report.Transitions); n > 0 {
		return o.report.Transitions[n-1].From
	}
	return o.report.State
}

func (o *Orchestrator) notify(name string, level notify.Level, fields notify.Fields) {
	o.deps.Notifier.Notify(name, level, fields)
}

func (o *Orchestrator) closeSession() {
	if o.deps.Session == nil {
		return
	}
	if err := o.deps.Session.Close(); err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Warn("session close failed", zap.Error(err))
	}
}
