package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedOCR answers recognition calls in order
type scriptedOCR struct {
	mu      sync.Mutex
	answers []string
	calls   int
}

func (o *scriptedOCR) Recognize(_ context.Context, img []byte, charset string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if charset != DigitCharset {
		return "", fmt.Errorf("unexpected charset %q", charset)
	}
	if len(img) == 0 {
		return "", fmt.Errorf("empty crop")
	}
	i := o.calls
	o.calls++
	if i >= len(o.answers) {
		return "", nil
	}
	return o.answers[i], nil
}

// keypad lays out n keys of 20x20 in one row
func keypad(n int) ([]Control, []*fakeControl) {
	controls := make([]Control, n)
	fakes := make([]*fakeControl, n)
	for i := 0; i < n; i++ {
		fakes[i] = &fakeControl{
			name: fmt.Sprintf("key%d", i),
			box:  Box{X: float64(i * 20), Y: 0, Width: 20, Height: 20},
		}
		controls[i] = fakes[i]
	}
	return controls, fakes
}

func newKeypadFixture(answers []string, keys int) (*KeypadResolver, *fakeDriver, []Control, []*fakeControl) {
	d := newFakeDriver()
	d.shot = solidPNG(keys*20, 40)
	d.script = func(script string, res any) error {
		if p, ok := res.(*float64); ok {
			*p = float64(keys * 20)
		}
		return nil
	}
	e := NewExecutor(d, NewResolver(d, 5*time.Millisecond, nil), nil)
	k := NewKeypadResolver(d, &scriptedOCR{answers: answers}, e, nil, nil)
	k.ManualWait = 5 * time.Millisecond
	k.DigitDelay = time.Millisecond
	controls, fakes := keypad(keys)
	return k, d, controls, fakes
}

func TestResolveDigitsSkipsBadReadsAndKeepsFirstDuplicate(t *testing.T) {
	t.Parallel()

	k, _, controls, _ := newKeypadFixture([]string{"3", "", "12", "3", "x", "9"}, 6)
	m, coverage, err := k.ResolveDigits(context.Background(), controls)
	require.NoError(t, err)

	assert.Equal(t, 2, coverage)
	assert.Same(t, controls[0], m['3'])
	assert.Same(t, controls[5], m['9'])
	assert.False(t, m.Usable())
}

func TestEnterPINLowCoverageNeverClicks(t *testing.T) {
	t.Parallel()

	k, d, controls, fakes := newKeypadFixture([]string{"1", "2", "3", "4", "5"}, 10)
	var surfaced string
	k.OnManualEntry = func(pin, _ string) { surfaced = pin }

	entry, err := k.EnterPIN(context.Background(), controls, "123456")
	require.NoError(t, err)

	assert.Equal(t, EntryManual, entry.Mode)
	assert.Equal(t, 5, entry.Coverage)
	assert.True(t, entry.Entered)
	assert.Equal(t, "123456", surfaced)
	for _, f := range fakes {
		assert.Zero(t, f.clickCount(), f.name)
	}
	assert.Empty(t, d.pointerClicks)
}

func TestEnterPINClicksInPINOrder(t *testing.T) {
	t.Parallel()

	var order []string
	var mu sync.Mutex
	k, _, controls, fakes := newKeypadFixture([]string{"7", "0", "4", "1", "9", "2", "5", "8", "3", "6"}, 10)
	for _, f := range fakes {
		f := f
		f.onClick = func() {
			mu.Lock()
			order = append(order, f.name)
			mu.Unlock()
		}
	}

	entry, err := k.EnterPIN(context.Background(), controls, "1470")
	require.NoError(t, err)
	assert.Equal(t, EntryAutomated, entry.Mode)
	assert.True(t, entry.Entered)
	assert.Equal(t, 10, entry.Coverage)
	assert.Equal(t, []string{"key3", "key2", "key0", "key1"}, order)
}

func TestEnterPINMissingDigitFails(t *testing.T) {
	t.Parallel()

	k, _, controls, fakes := newKeypadFixture([]string{"1", "2", "3", "4", "5", "6"}, 6)
	entry, err := k.EnterPIN(context.Background(), controls, "1279")
	require.NoError(t, err)

	assert.Equal(t, EntryAutomated, entry.Mode)
	assert.False(t, entry.Entered)
	assert.Contains(t, entry.Detail, "position 3")
	// digits before the missing one were already pressed
	assert.Equal(t, 1, fakes[0].clickCount())
	assert.Equal(t, 1, fakes[1].clickCount())
}

func TestEnterPINRejectsNonNumericPIN(t *testing.T) {
	t.Parallel()

	k, _, controls, _ := newKeypadFixture(nil, 10)
	_, err := k.EnterPIN(context.Background(), controls, "12a4")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestDisabledOCRGoesManual(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	k := NewKeypadResolver(d, DisabledOCR{}, NewExecutor(d, NewResolver(d, time.Millisecond, nil), nil), nil, nil)
	k.ManualWait = time.Millisecond
	controls, _ := keypad(10)

	entry, err := k.EnterPIN(context.Background(), controls, "000000")
	require.NoError(t, err)
	assert.Equal(t, EntryManual, entry.Mode)
	assert.Zero(t, entry.Coverage)
}
