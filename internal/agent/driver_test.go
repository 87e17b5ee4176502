package agent

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocatorSelector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		loc   Locator
		sel   string
		xpath bool
	}{
		{ID("userId"), `[id="userId"]`, false},
		{Name("password"), `[name="password"]`, false},
		{CSS("input[type='password']"), "input[type='password']", false},
		{XPath("//input[@value='확인']"), "//input[@value='확인']", true},
		{Text("로그인"), "//*[normalize-space(text())='로그인' or @value='로그인']", true},
	}
	for _, tt := range tests {
		sel, xpath := tt.loc.Selector()
		assert.Equal(t, tt.sel, sel, tt.loc.String())
		assert.Equal(t, tt.xpath, xpath, tt.loc.String())
	}
}

func TestLocatorJS(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `document.getElementById("EcAmt")`, ID("EcAmt").JS())
	assert.Equal(t, `document.querySelector("#btnBuy")`, CSS("#btnBuy").JS())
	assert.Contains(t, XPath("//a").JS(), "XPathResult.FIRST_ORDERED_NODE_TYPE")
	assert.Equal(t, "null", FirstElementJS(nil))
	assert.Contains(t, FirstElementJS([]Locator{ID("a"), CSS(".b")}), " || ")
}

func TestQuadBox(t *testing.T) {
	t.Parallel()

	b := quadBox(dom.Quad{10, 20, 50, 20, 50, 40, 10, 40})
	assert.Equal(t, Box{X: 10, Y: 20, Width: 40, Height: 20}, b)
	x, y := b.Center()
	assert.Equal(t, 30.0, x)
	assert.Equal(t, 30.0, y)
	assert.True(t, quadBox(nil).Empty())
}

func TestNormalizeCropUpscalesAndStretchesContrast(t *testing.T) {
	t.Parallel()

	img, err := decodePNG(solidPNG(40, 20))
	require.NoError(t, err)

	out := normalizeCrop(img, image.Rect(10, 5, 20, 15))
	assert.Equal(t, image.Rect(0, 0, 30, 30), out.Bounds())

	r := scaleRect(Box{X: 10, Y: 10, Width: 20, Height: 20}, 2, image.Rect(0, 0, 50, 50))
	assert.Equal(t, image.Rect(20, 20, 50, 50), r)

	assert.Equal(t, uint8(0), clampByte(-12))
	assert.Equal(t, uint8(255), clampByte(300))
}

func TestRestrictCharset(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "7", restrictCharset("```\n7\n```", DigitCharset))
	assert.Equal(t, "", restrictCharset("none", DigitCharset))
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFatal(NewAuthenticationError("login", nil)))
	assert.True(t, IsFatal(NewInsufficientFundsError("no money")))
	assert.True(t, IsFatal(NewConfigError("bad directive", nil)))
	assert.False(t, IsFatal(NewInteractionError("click", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return NewStorageError("upload", errors.New("503"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), cfg, func() error {
		calls++
		return NewAuthenticationError("login", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
