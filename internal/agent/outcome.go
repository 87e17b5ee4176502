package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Verdict is the reduced outcome of an action
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictSuccess
	VerdictFailure
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "SUCCESS"
	case VerdictFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the verdict by name in reports
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// ParseVerdict parses "success", "failure" or "unknown"
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return VerdictSuccess, nil
	case "failure":
		return VerdictFailure, nil
	case "unknown":
		return VerdictUnknown, nil
	}
	return VerdictUnknown, fmt.Errorf("unknown verdict %q", s)
}

// AttemptResult is a verdict plus what it was derived from
type AttemptResult struct {
	Verdict Verdict `json:"verdict"`
	Detail  string  `json:"detail,omitempty"`
	// Category is ErrorCategoryAmbiguous when no signal was observed
	Category ErrorCategory `json:"category,omitempty"`
}

// Succeeded reports whether the verdict is SUCCESS
func (r AttemptResult) Succeeded() bool {
	return r.Verdict == VerdictSuccess
}

// Classifier reduces modal text to a verdict
type Classifier interface {
	ClassifyText(text string) Verdict
}

// KeywordClassifier matches lower-cased text against keyword lists.
// Failure keywords are checked first.
type KeywordClassifier struct {
	Failure   []string
	Success   []string
	Unmatched Verdict
}

// ClassifyText implements Classifier
func (k *KeywordClassifier) ClassifyText(text string) Verdict {
	lower := strings.ToLower(text)
	for _, kw := range k.Failure {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return VerdictFailure
		}
	}
	for _, kw := range k.Success {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return VerdictSuccess
		}
	}
	return k.Unmatched
}

// WithUnmatched returns a copy that yields v for text matching neither list
func (k *KeywordClassifier) WithUnmatched(v Verdict) *KeywordClassifier {
	cp := *k
	cp.Unmatched = v
	return &cp
}

// RechargeKeywords is the classifier for charge confirmation dialogs
func RechargeKeywords() *KeywordClassifier {
	return &KeywordClassifier{
		Failure: []string{
			"실패", "fail", "error", "오류", "비밀번호", "잘못", "취소", "cancel",
			"처리에 실패", "인증실패", "시간초과", "만료", "차단", "불가능",
		},
		Success: []string{
			"성공", "success", "완료", "complete", "처리가 완료", "충전되었습니다",
			"충전이 완료", "결제완료", "정상적으로", "정상처리", "ok", "확인",
		},
		Unmatched: VerdictSuccess,
	}
}

// PurchaseKeywords is the classifier for purchase confirmation dialogs
func PurchaseKeywords() *KeywordClassifier {
	return &KeywordClassifier{
		Failure: []string{
			"실패", "fail", "error", "오류", "취소", "cancel", "불가능", "초과",
			"부족", "insufficient", "한도",
		},
		Success: []string{
			"구매완료", "구매가 완료", "구매성공", "success", "complete", "결제완료", "완료",
		},
		Unmatched: VerdictSuccess,
	}
}

// insufficientFundsWords flag a purchase failure as a balance problem
var insufficientFundsWords = []string{"부족", "insufficient", "충전 후", "예치금이"}

// IndicatesInsufficientFunds reports whether dialog text complains about balance
func IndicatesInsufficientFunds(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range insufficientFundsWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// OutcomeWindows bounds how long each signal is watched
type OutcomeWindows struct {
	Modal    time.Duration
	Window   time.Duration
	Interval time.Duration
}

// RechargeWindows: 15s for the dialog, 10s for the popup to close
func RechargeWindows() OutcomeWindows {
	return OutcomeWindows{Modal: 15 * time.Second, Window: 10 * time.Second, Interval: 500 * time.Millisecond}
}

// PurchaseWindows: 5s for the dialog, 10s for the window fallback
func PurchaseWindows() OutcomeWindows {
	return OutcomeWindows{Modal: 5 * time.Second, Window: 10 * time.Second, Interval: 500 * time.Millisecond}
}

// OutcomeWatcher turns post-action signals into an AttemptResult
type OutcomeWatcher struct {
	driver     Driver
	classifier Classifier
	windows    OutcomeWindows
	logger     *zap.Logger
}

// NewOutcomeWatcher creates a watcher
func NewOutcomeWatcher(driver Driver, classifier Classifier, windows OutcomeWindows, logger *zap.Logger) *OutcomeWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if windows.Interval <= 0 {
		windows.Interval = 500 * time.Millisecond
	}
	return &OutcomeWatcher{
		driver:     driver,
		classifier: classifier,
		windows:    windows,
		logger:     logger.Named("outcome"),
	}
}

// Classify waits for a dialog and classifies its text. With no dialog it
// falls back to watching for the window count to drop below windowsBefore.
// Any dialog seen is accepted before returning.
func (w *OutcomeWatcher) Classify(ctx context.Context, windowsBefore int) AttemptResult {
	if res, ok := w.pollModal(ctx, w.windows.Modal); ok {
		return res
	}

	start := time.Now()
	deadline := start.Add(w.windows.Window)
	for {
		// a late dialog still wins over the window heuristic
		if res, ok := w.takeModal(ctx); ok {
			return res
		}
		if handles, err := w.driver.WindowHandles(ctx); err == nil && len(handles) < windowsBefore {
			latency := time.Since(start).Round(100 * time.Millisecond)
			w.logger.Info("window closed", zap.Duration("latency", latency))
			return AttemptResult{Verdict: VerdictSuccess, Detail: fmt.Sprintf("window closed after %s", latency)}
		}
		if time.Now().After(deadline) || sleep(ctx, w.windows.Interval) != nil {
			break
		}
	}

	w.logger.Warn("no dialog and window count unchanged",
		zap.Int("windows_before", windowsBefore),
		zap.String("category", string(ErrorCategoryAmbiguous)))
	return AttemptResult{
		Verdict:  VerdictFailure,
		Detail:   "no dialog and window count unchanged",
		Category: ErrorCategoryAmbiguous,
	}
}

func (w *OutcomeWatcher) pollModal(ctx context.Context, window time.Duration) (AttemptResult, bool) {
	deadline := time.Now().Add(window)
	for {
		if res, ok := w.takeModal(ctx); ok {
			return res, true
		}
		if time.Now().After(deadline) || sleep(ctx, w.windows.Interval) != nil {
			return AttemptResult{}, false
		}
	}
}

func (w *OutcomeWatcher) takeModal(ctx context.Context) (AttemptResult, bool) {
	text, ok, err := w.driver.ReadModal(ctx)
	if err != nil || !ok {
		return AttemptResult{}, false
	}
	verdict := w.classifier.ClassifyText(text)
	if err := w.driver.AcceptModal(ctx); err != nil {
		w.logger.Warn("failed to accept dialog", zap.Error(err))
	}
	w.logger.Info("dialog classified", zap.String("text", text), zap.Stringer("verdict", verdict))
	return AttemptResult{Verdict: verdict, Detail: text}, true
}

// DismissModal accepts any pending dialog and returns its text
func DismissModal(ctx context.Context, d Driver) (string, bool) {
	text, ok, err := d.ReadModal(ctx)
	if err != nil || !ok {
		return "", false
	}
	_ = d.AcceptModal(ctx)
	return text, true
}
