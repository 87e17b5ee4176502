package agent

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MinKeypadCoverage is the number of distinct digits a KeypadMap needs
// before automated entry is attempted.
const MinKeypadCoverage = 6

// KeypadMap maps a digit character to the key showing it. It is valid for
// one keypad occurrence only.
type KeypadMap map[rune]Control

// Usable reports whether the map covers enough digits for automated entry
func (m KeypadMap) Usable() bool {
	return len(m) >= MinKeypadCoverage
}

// EntryMode records how a PIN was entered
type EntryMode string

const (
	EntryAutomated EntryMode = "automated"
	EntryManual    EntryMode = "manual"
)

// PINEntry is the result of one keypad entry attempt
type PINEntry struct {
	Mode     EntryMode
	Coverage int
	// Entered is optimistic for manual entry; the real verdict comes from
	// the outcome watcher.
	Entered bool
	Detail  string
}

// KeypadResolver recognizes the digits of a virtual keypad and enters PINs
type KeypadResolver struct {
	driver   Driver
	ocr      OCR
	executor *Executor
	evidence *EvidenceStore
	logger   *zap.Logger

	// ManualWait is how long the operator gets when recognition falls short
	ManualWait time.Duration
	// DigitDelay separates key presses
	DigitDelay time.Duration
	// OnManualEntry surfaces the PIN and the debug capture to the operator
	OnManualEntry func(pin, capturePath string)
}

// NewKeypadResolver creates a keypad resolver. evidence may be nil.
func NewKeypadResolver(driver Driver, ocr OCR, executor *Executor, evidence *EvidenceStore, logger *zap.Logger) *KeypadResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ocr == nil {
		ocr = DisabledOCR{}
	}
	return &KeypadResolver{
		driver:     driver,
		ocr:        ocr,
		executor:   executor,
		evidence:   evidence,
		logger:     logger.Named("keypad"),
		ManualWait: 15 * time.Second,
		DigitDelay: 300 * time.Millisecond,
	}
}

// ResolveDigits crops each key out of one viewport capture, normalizes the
// crop and runs single-digit OCR on it. Keys that do not read as exactly one
// digit are skipped; when two keys read the same digit the first one wins.
func (k *KeypadResolver) ResolveDigits(ctx context.Context, controls []Control) (KeypadMap, int, error) {
	m := make(KeypadMap)
	if len(controls) == 0 {
		return m, 0, nil
	}
	if _, off := k.ocr.(DisabledOCR); off {
		return m, 0, nil
	}

	data, err := k.driver.Screenshot(ctx)
	if err != nil {
		return m, 0, err
	}
	img, err := decodePNG(data)
	if err != nil {
		return m, 0, err
	}

	scale := 1.0
	var viewport float64
	if err := k.driver.ExecuteScript(ctx, "window.innerWidth", &viewport); err == nil && viewport > 0 {
		scale = float64(img.Bounds().Dx()) / viewport
	}

	for i, c := range controls {
		box, err := c.Box(ctx)
		if err != nil || box.Empty() {
			continue
		}
		r := scaleRect(box, scale, img.Bounds())
		if r.Empty() {
			continue
		}

		crop, err := encodePNG(normalizeCrop(img, r))
		if err != nil {
			continue
		}
		text, err := k.ocr.Recognize(ctx, crop, DigitCharset)
		if err != nil {
			k.logger.Debug("recognition failed", zap.Int("key", i), zap.Error(err))
			if ctx.Err() != nil {
				return m, len(m), ctx.Err()
			}
			continue
		}
		if utf8.RuneCountInString(text) != 1 {
			continue
		}
		d, _ := utf8.DecodeRuneInString(text)
		if d < '0' || d > '9' {
			continue
		}
		if _, dup := m[d]; dup {
			continue
		}
		m[d] = c
	}

	k.logger.Info("keypad recognized", zap.Int("keys", len(controls)), zap.Int("coverage", len(m)))
	return m, len(m), nil
}

// EnterPIN enters pin on the keypad formed by controls. With insufficient
// coverage it never clicks a key; it pauses for manual entry instead and
// reports success optimistically.
func (k *KeypadResolver) EnterPIN(ctx context.Context, controls []Control, pin string) (PINEntry, error) {
	for _, r := range pin {
		if r < '0' || r > '9' {
			return PINEntry{}, NewConfigError("recharge PIN must be numeric", nil)
		}
	}
	if pin == "" {
		return PINEntry{}, NewConfigError("recharge PIN not configured", nil)
	}

	m, coverage, err := k.ResolveDigits(ctx, controls)
	if err != nil {
		k.logger.Warn("digit recognition failed", zap.Error(err))
	}

	if !m.Usable() {
		return k.manualEntry(ctx, pin, coverage)
	}

	for i, r := range pin {
		c, ok := m[r]
		if !ok {
			return PINEntry{Mode: EntryAutomated, Coverage: coverage,
				Detail: fmt.Sprintf("digit at position %d not on keypad", i+1)}, nil
		}
		if !k.executor.PerformControl(ctx, c, fmt.Sprintf("keypad digit %d", i+1)) {
			return PINEntry{Mode: EntryAutomated, Coverage: coverage,
				Detail: fmt.Sprintf("digit at position %d could not be pressed", i+1)}, nil
		}
		if err := sleep(ctx, k.DigitDelay); err != nil {
			return PINEntry{Mode: EntryAutomated, Coverage: coverage, Detail: err.Error()}, err
		}
	}

	return PINEntry{Mode: EntryAutomated, Coverage: coverage, Entered: true}, nil
}

func (k *KeypadResolver) manualEntry(ctx context.Context, pin string, coverage int) (PINEntry, error) {
	var capture string
	if k.evidence != nil {
		capture = k.evidence.TryCapture(ctx, "keypad_manual")
	}

	k.logger.Warn("keypad coverage too low, waiting for manual entry",
		zap.Int("coverage", coverage),
		zap.Int("required", MinKeypadCoverage),
		zap.Int("pin_length", len(pin)),
		zap.String("capture", capture),
		zap.Duration("wait", k.ManualWait))
	if k.OnManualEntry != nil {
		k.OnManualEntry(pin, capture)
	}

	if err := sleep(ctx, k.ManualWait); err != nil {
		return PINEntry{Mode: EntryManual, Coverage: coverage, Detail: err.Error()}, err
	}
	return PINEntry{Mode: EntryManual, Coverage: coverage, Entered: true, Detail: "manual entry window elapsed"}, nil
}
