package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quickTechniques keeps the default cascade but drops the settle delays
func quickTechniques() []Technique {
	ts := DefaultTechniques()
	for i := range ts {
		ts[i].Settle = time.Millisecond
	}
	return ts
}

// checkbox wires a fake driver so post-condition scripts read checked
func checkbox(d *fakeDriver, checked *atomic.Bool) {
	d.script = func(script string, res any) error {
		switch {
		case strings.Contains(script, "el.checked = true"):
			checked.Store(true)
			setBool(res, true)
		case strings.Contains(script, "el.checked"):
			setBool(res, checked.Load())
		}
		return nil
	}
}

func numberTarget() Target {
	return Target{
		Name:      "number 7",
		Locators:  []Locator{ID("check645num7")},
		Secondary: []Locator{CSS("label[for='check645num7']")},
		Script:    "checkLength645($('#check645num7'))",
	}
}

func TestPerformFallsBackToSecondary(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	var checked atomic.Bool
	checkbox(d, &checked)

	// checkbox is hidden, its label is clickable
	d.put(ID("check645num7"), &fakeControl{name: "box", hidden: true})
	label := &fakeControl{name: "label", onClick: func() { checked.Store(true) }}
	d.put(CSS("label[for='check645num7']"), label)

	e := NewExecutor(d, NewResolver(d, 5*time.Millisecond, nil), nil).WithTechniques(quickTechniques())
	ok := e.Perform(context.Background(), numberTarget(), ToggleOn())

	assert.True(t, ok)
	assert.Equal(t, 1, label.clickCount())
	assert.True(t, checked.Load())
}

func TestPerformUsesPageScriptWhenControlsIgnoreClicks(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	var checked atomic.Bool
	d.script = func(script string, res any) error {
		switch {
		case strings.HasPrefix(script, "checkLength645"):
			checked.Store(true)
		case strings.Contains(script, "el.checked"):
			setBool(res, checked.Load())
		}
		return nil
	}
	box := &fakeControl{name: "box"}
	label := &fakeControl{name: "label"}
	d.put(ID("check645num7"), box)
	d.put(CSS("label[for='check645num7']"), label)

	e := NewExecutor(d, NewResolver(d, 5*time.Millisecond, nil), nil).WithTechniques(quickTechniques())
	require.True(t, e.Perform(context.Background(), numberTarget(), ToggleOn()))

	assert.Equal(t, 1, box.clickCount())
	assert.Equal(t, 1, label.clickCount())
	assert.Empty(t, d.pointerClicks)
}

func TestPerformForcedStateIsLastResort(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	var checked atomic.Bool
	checkbox(d, &checked)

	target := Target{Name: "auto select", Locators: []Locator{ID("checkAutoSelect")}}
	e := NewExecutor(d, NewResolver(d, 5*time.Millisecond, nil), nil).WithTechniques(quickTechniques())

	assert.True(t, e.Perform(context.Background(), target, ToggleOn()))
	assert.True(t, checked.Load())
}

func TestPerformReturnsFalseWhenAllTechniquesFail(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	d.script = func(script string, res any) error {
		if strings.HasPrefix(script, "checkLength645") {
			return errors.New("handler missing")
		}
		// forced technique finds no element; post-condition stays false
		setBool(res, false)
		return nil
	}

	e := NewExecutor(d, NewResolver(d, 5*time.Millisecond, nil), nil).WithTechniques(quickTechniques())
	assert.False(t, e.Perform(context.Background(), numberTarget(), ToggleOn()))
}

func TestPerformToggleOnAlreadySelectedDoesNotClick(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	var checked atomic.Bool
	checked.Store(true)
	checkbox(d, &checked)
	box := &fakeControl{name: "box"}
	d.put(ID("check645num7"), box)

	e := NewExecutor(d, NewResolver(d, 5*time.Millisecond, nil), nil).WithTechniques(quickTechniques())
	require.True(t, e.Perform(context.Background(), numberTarget(), ToggleOn()))
	assert.Zero(t, box.clickCount())
}

func TestPerformTypeVerifiesValue(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	field := &fakeControl{name: "userId"}
	d.put(ID("userId"), field)
	d.script = func(script string, res any) error {
		setBool(res, strings.Contains(script, `=== "alice"`) && field.value == "alice")
		return nil
	}

	e := NewExecutor(d, NewResolver(d, 5*time.Millisecond, nil), nil).WithTechniques(quickTechniques())
	require.True(t, e.Perform(context.Background(), Target{Name: "id", Locators: []Locator{ID("userId")}}, TypeText("alice")))
	assert.Equal(t, []string{"alice"}, field.typed)
}

func TestPerformClickAcceptsFirstErrorFreeTechnique(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	btn := &fakeControl{name: "buy", clickErr: errors.New("intercepted"), box: Box{X: 10, Y: 10, Width: 20, Height: 10}}
	d.put(ID("btnBuy"), btn)

	e := NewExecutor(d, NewResolver(d, 5*time.Millisecond, nil), nil).WithTechniques(quickTechniques())
	require.True(t, e.Perform(context.Background(), Target{Name: "buy", Locators: []Locator{ID("btnBuy")}}, Click()))

	// native failed, no secondary or script, pointer gesture landed at the centre
	require.Len(t, d.pointerClicks, 1)
	assert.Equal(t, [2]float64{20, 15}, d.pointerClicks[0])
}

func TestPerformControlFallsBackToPointer(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	key := &fakeControl{name: "key", clickErr: errors.New("overlay"), box: Box{X: 0, Y: 0, Width: 10, Height: 10}}

	e := NewExecutor(d, NewResolver(d, 5*time.Millisecond, nil), nil)
	assert.True(t, e.PerformControl(context.Background(), key, "digit"))
	assert.Len(t, d.pointerClicks, 1)
}
