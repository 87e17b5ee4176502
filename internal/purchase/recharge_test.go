package purchase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dreamup/lotto-agent/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecharger(d agent.Driver, pin string) *KeypadRecharger {
	return newKeypadRecharger(d, nil, pin)
}

func newKeypadRecharger(d agent.Driver, keypad *agent.KeypadResolver, pin string) *KeypadRecharger {
	watcher := agent.NewOutcomeWatcher(d, agent.RechargeKeywords(),
		agent.OutcomeWindows{Modal: 20 * time.Millisecond, Window: 50 * time.Millisecond, Interval: 5 * time.Millisecond}, nil)
	r := NewKeypadRecharger(d, newExecutor(d), keypad, watcher, nil, pin, nil)
	r.popupWait = 20 * time.Millisecond
	r.keypadWait = 20 * time.Millisecond
	return r
}

func TestDisabledRecharger(t *testing.T) {
	t.Parallel()

	res, err := DisabledRecharger{}.Recharge(context.Background(), 10000)
	require.NoError(t, err)
	assert.Equal(t, agent.VerdictFailure, res.Verdict)
	assert.Equal(t, "recharge unavailable", res.Detail)

	res, _ = DisabledRecharger{Reason: "auto recharge disabled"}.Recharge(context.Background(), 10000)
	assert.Equal(t, "auto recharge disabled", res.Detail)
}

func TestRechargeRequiresPIN(t *testing.T) {
	t.Parallel()

	d := newStubDriver()
	_, err := newRecharger(d, "").Recharge(context.Background(), 10000)
	require.Error(t, err)
	assert.Equal(t, agent.ErrorCategoryConfig, agent.CategoryOf(err))
	assert.Empty(t, d.visited)
}

func TestRechargeReportsRejectionDialog(t *testing.T) {
	t.Parallel()

	d := newStubDriver()
	amount := &stubControl{name: "amount"}
	d.elements[agent.ID("EcAmt")] = amount
	d.elements[agent.CSS("button.btn_common.mid.blu[onclick='goEasyChargePC()']")] = &stubControl{
		name:    "charge",
		onClick: func() { d.setModal("간편충전 등록 후 이용 가능합니다") },
	}

	res, err := newRecharger(d, "123456").Recharge(context.Background(), 20000)
	require.NoError(t, err)
	assert.Equal(t, agent.VerdictFailure, res.Verdict)
	assert.Equal(t, "간편충전 등록 후 이용 가능합니다", res.Detail)
	assert.Equal(t, []string{PaymentURL}, d.visited)
	assert.Equal(t, []string{"간편충전 등록 후 이용 가능합니다"}, d.accepted)
}

func TestRechargeWithoutPopup(t *testing.T) {
	t.Parallel()

	d := newStubDriver()
	d.elements[agent.CSS("button.btn_common.mid.blu[onclick='goEasyChargePC()']")] = &stubControl{name: "charge"}

	res, err := newRecharger(d, "123456").Recharge(context.Background(), 20000)
	require.NoError(t, err)
	assert.Equal(t, agent.VerdictFailure, res.Verdict)
	assert.Equal(t, "recharge: charge popup did not open", res.Detail)
}

// popupDriver opens a second window when the charge button is clicked
type popupDriver struct {
	*stubDriver

	wmu      sync.Mutex
	handles  []string
	switched []string
}

func (d *popupDriver) WindowHandles(context.Context) ([]string, error) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	return append([]string(nil), d.handles...), nil
}

func (d *popupDriver) SwitchWindow(_ context.Context, h string) error {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	d.switched = append(d.switched, h)
	return nil
}

func (d *popupDriver) setHandles(h ...string) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	d.handles = h
}

func newPopupDriver() *popupDriver {
	d := &popupDriver{stubDriver: newStubDriver(), handles: []string{"main"}}
	d.elements[agent.CSS("button.btn_common.mid.blu[onclick='goEasyChargePC()']")] = &stubControl{
		name:    "charge",
		onClick: func() { d.setHandles("main", "popup") },
	}
	d.elements[agent.ID("nppfs-keypad-ecpassword")] = &stubControl{name: "keypad"}
	d.elements[keypadKeys] = &stubControl{name: "key"}
	return d
}

func TestRechargeThroughPopup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outcome func(d *popupDriver)
		verdict agent.Verdict
		detail  string
	}{
		{
			name:    "confirmation dialog",
			outcome: func(d *popupDriver) { d.setModal("충전이 완료되었습니다") },
			verdict: agent.VerdictSuccess,
			detail:  "충전이 완료되었습니다",
		},
		{
			name:    "popup closes",
			outcome: func(d *popupDriver) { d.setHandles("main") },
			verdict: agent.VerdictSuccess,
		},
		{
			name:    "wrong password",
			outcome: func(d *popupDriver) { d.setModal("비밀번호가 일치하지 않습니다") },
			verdict: agent.VerdictFailure,
			detail:  "비밀번호가 일치하지 않습니다",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newPopupDriver()
			keypad := agent.NewKeypadResolver(d, agent.DisabledOCR{}, newExecutor(d), nil, nil)
			keypad.ManualWait = 10 * time.Millisecond
			var shown string
			keypad.OnManualEntry = func(pin, _ string) {
				shown = pin
				tt.outcome(d)
			}

			res, err := newKeypadRecharger(d, keypad, "246810").Recharge(context.Background(), 10000)
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, res.Verdict)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, res.Detail)
			} else {
				assert.Contains(t, res.Detail, "window closed")
			}
			assert.Equal(t, "246810", shown)
			assert.Equal(t, []string{"popup", "main"}, d.switched)
		})
	}
}
