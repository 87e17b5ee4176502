package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// IntentKind is the kind of state change requested from a control
type IntentKind string

const (
	IntentClick    IntentKind = "click"
	IntentToggleOn IntentKind = "toggle-on"
	IntentType     IntentKind = "type"
	IntentSelect   IntentKind = "select"
)

// Intent is what Perform should achieve on a target
type Intent struct {
	Kind IntentKind
	// Text is the value to type or the option value to select
	Text string
}

// Click returns a click intent
func Click() Intent { return Intent{Kind: IntentClick} }

// ToggleOn returns an intent that leaves a checkbox selected
func ToggleOn() Intent { return Intent{Kind: IntentToggleOn} }

// TypeText returns an intent that leaves text in a field
func TypeText(text string) Intent { return Intent{Kind: IntentType, Text: text} }

// SelectValue returns an intent that selects an option by value
func SelectValue(value string) Intent { return Intent{Kind: IntentSelect, Text: value} }

func (in Intent) String() string {
	if in.Kind == IntentSelect {
		return fmt.Sprintf("%s(%s)", in.Kind, in.Text)
	}
	return string(in.Kind)
}

// errSkip marks a technique that does not apply to the target or intent.
var errSkip = errors.New("technique not applicable")

// Technique is one independent way of performing an intent
type Technique struct {
	Name   string
	Settle time.Duration
	Apply  func(ctx context.Context, e *Executor, t Target, in Intent) error
}

// DefaultTechniques returns the cascade in priority order
func DefaultTechniques() []Technique {
	return []Technique{
		{Name: "native", Settle: 300 * time.Millisecond, Apply: applyNative},
		{Name: "secondary", Settle: 300 * time.Millisecond, Apply: applySecondary},
		{Name: "script", Settle: 500 * time.Millisecond, Apply: applyScript},
		{Name: "pointer", Settle: 400 * time.Millisecond, Apply: applyPointer},
		{Name: "forced", Settle: 150 * time.Millisecond, Apply: applyForced},
	}
}

// Executor performs intents on targets through a cascade of techniques
type Executor struct {
	driver     Driver
	resolver   *Resolver
	techniques []Technique
	logger     *zap.Logger
}

// NewExecutor creates an executor using the default technique cascade
func NewExecutor(driver Driver, resolver *Resolver, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		driver:     driver,
		resolver:   resolver,
		techniques: DefaultTechniques(),
		logger:     logger.Named("executor"),
	}
}

// WithTechniques returns a copy of the executor using techniques instead
func (e *Executor) WithTechniques(techniques []Technique) *Executor {
	cp := *e
	cp.techniques = techniques
	return &cp
}

// Resolver returns the resolver backing the executor
func (e *Executor) Resolver() *Resolver {
	return e.resolver
}

// Perform tries each technique in order and returns true on the first one
// that raises no error and leaves the expected post-condition. Exhaustion is
// logged with the list of techniques attempted.
func (e *Executor) Perform(ctx context.Context, t Target, in Intent) bool {
	var attempted []string
	var lastErr error

	for _, tech := range e.techniques {
		if in.Kind == IntentToggleOn {
			if ok, _ := e.verify(ctx, t, in); ok {
				e.logger.Debug("already satisfied", zap.String("target", t.Name), zap.Stringer("intent", in))
				return true
			}
		}

		err := tech.Apply(ctx, e, t, in)
		if errors.Is(err, errSkip) {
			continue
		}
		attempted = append(attempted, tech.Name)
		if err != nil {
			lastErr = err
			e.logger.Debug("technique failed",
				zap.String("target", t.Name),
				zap.String("technique", tech.Name),
				zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if err := sleep(ctx, tech.Settle); err != nil {
			lastErr = err
			break
		}

		ok, verr := e.verify(ctx, t, in)
		if ok {
			e.logger.Debug("performed",
				zap.String("target", t.Name),
				zap.Stringer("intent", in),
				zap.String("technique", tech.Name))
			return true
		}
		lastErr = verr
		if lastErr == nil {
			lastErr = fmt.Errorf("post-condition not met after %s", tech.Name)
		}
	}

	e.logger.Warn("all techniques failed",
		zap.String("target", t.Name),
		zap.Stringer("intent", in),
		zap.Strings("attempted", attempted),
		zap.Error(lastErr))
	return false
}

// PerformControl clicks an already-resolved control, natively and then by
// pointer gesture. Used for controls without locators of their own, such as
// keypad keys.
func (e *Executor) PerformControl(ctx context.Context, c Control, name string) bool {
	var attempted []string

	attempted = append(attempted, "native")
	err := c.Click(ctx)
	if err == nil {
		return sleep(ctx, 150*time.Millisecond) == nil
	}
	e.logger.Debug("native click failed", zap.String("control", name), zap.Error(err))

	attempted = append(attempted, "pointer")
	box, err := c.Box(ctx)
	if err == nil && !box.Empty() {
		x, y := box.Center()
		if err = e.driver.PointerClick(ctx, x, y); err == nil {
			return sleep(ctx, 150*time.Millisecond) == nil
		}
	}

	e.logger.Warn("all techniques failed",
		zap.String("control", name),
		zap.Strings("attempted", attempted),
		zap.Error(err))
	return false
}

// verify checks the post-condition of an intent through the page script
// context so it does not depend on which technique ran.
func (e *Executor) verify(ctx context.Context, t Target, in Intent) (bool, error) {
	el := FirstElementJS(t.Locators)
	var script string
	switch in.Kind {
	case IntentClick:
		return true, nil
	case IntentToggleOn:
		script = fmt.Sprintf(`(function(){ var el = %s; return !!(el && el.checked); })()`, el)
	case IntentType, IntentSelect:
		script = fmt.Sprintf(`(function(){ var el = %s; return !!el && String(el.value) === %s; })()`, el, jsString(in.Text))
	default:
		return false, fmt.Errorf("unknown intent %q", in.Kind)
	}

	var ok bool
	if err := e.driver.ExecuteScript(ctx, script, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func applyNative(ctx context.Context, e *Executor, t Target, in Intent) error {
	c, err := e.resolver.Resolve(ctx, t)
	if err != nil {
		return err
	}
	switch in.Kind {
	case IntentClick, IntentToggleOn:
		return c.Click(ctx)
	case IntentType:
		return c.Type(ctx, in.Text)
	case IntentSelect:
		return c.SetValue(ctx, in.Text)
	}
	return errSkip
}

func applySecondary(ctx context.Context, e *Executor, t Target, in Intent) error {
	if len(t.Secondary) == 0 || (in.Kind != IntentClick && in.Kind != IntentToggleOn) {
		return errSkip
	}
	c, err := e.resolver.ResolveSecondary(ctx, t)
	if err != nil {
		return err
	}
	return c.Click(ctx)
}

func applyScript(ctx context.Context, e *Executor, t Target, in Intent) error {
	if t.Script == "" {
		return errSkip
	}
	return e.driver.ExecuteScript(ctx, t.Script, nil)
}

func applyPointer(ctx context.Context, e *Executor, t Target, in Intent) error {
	if in.Kind == IntentSelect {
		return errSkip
	}
	c, err := e.resolver.Resolve(ctx, t)
	if err != nil && len(t.Secondary) > 0 {
		c, err = e.resolver.ResolveSecondary(ctx, t)
	}
	if err != nil {
		return err
	}
	box, err := c.Box(ctx)
	if err != nil {
		return err
	}
	if box.Empty() {
		return NewInteractionError(t.Name+" has no rendered box", nil)
	}
	x, y := box.Center()
	if err := e.driver.PointerClick(ctx, x, y); err != nil {
		return err
	}
	if in.Kind == IntentType {
		return c.Type(ctx, in.Text)
	}
	return nil
}

// applyForced sets the state directly and raises the events the page listens for
func applyForced(ctx context.Context, e *Executor, t Target, in Intent) error {
	el := FirstElementJS(t.Locators)
	var body string
	switch in.Kind {
	case IntentClick:
		body = `el.click();`
	case IntentToggleOn:
		body = `el.checked = true; el.dispatchEvent(new Event('change', { bubbles: true }));`
	case IntentType, IntentSelect:
		body = fmt.Sprintf(`el.value = %s;
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));`, jsString(in.Text))
	default:
		return errSkip
	}

	script := fmt.Sprintf(`(function(){ var el = %s; if (!el) { return false; } %s return true; })()`, el, body)
	var found bool
	if err := e.driver.ExecuteScript(ctx, script, &found); err != nil {
		return err
	}
	if !found {
		return NewResolutionError(t.Name)
	}
	return nil
}
