package purchase

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dreamup/lotto-agent/internal/agent"
	"go.uber.org/zap"
)

// MaxBalance is the largest balance reading accepted as valid
const MaxBalance = 1_000_000

// BalanceSource says where a balance reading came from
type BalanceSource string

const (
	SourceElement  BalanceSource = "element"
	SourceFreeText BalanceSource = "free-text"
	SourceManual   BalanceSource = "manual"
	SourceDefault  BalanceSource = "default"
)

// BalanceSnapshot is one balance reading
type BalanceSnapshot struct {
	Value      int           `json:"value"`
	CapturedAt time.Time     `json:"captured_at"`
	Source     BalanceSource `json:"source"`
}

// ValidBalance reports whether v is a plausible balance
func ValidBalance(v int) bool {
	return v >= 0 && v <= MaxBalance
}

// ParseAmount keeps only digits and commas from text and parses the result.
// Readings outside [0, MaxBalance] are rejected.
func ParseAmount(text string) (int, bool) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(b.String())
	if err != nil || !ValidBalance(v) {
		return 0, false
	}
	return v, true
}

// balancePatterns are tried over the whole page text, in order
var balancePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:나의예치금|예치금|잔액|보유금액)[^\d]*([\d,]+)\s*원`),
	regexp.MustCompile(`(?i)([\d,]+)\s*원[^\d]*(?:나의예치금|예치금|잔액|보유)`),
	regexp.MustCompile(`(?i)balance[^\d]*([\d,]+)`),
	regexp.MustCompile(`(?i)([\d,]+)\s*원.*사용가능`),
}

// FindBalanceInText scans free text for a currency amount next to a
// balance label
func FindBalanceInText(text string) (int, bool) {
	for _, re := range balancePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v, ok := ParseAmount(m[1]); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// elementScans are structured scans, most specific first. wonOnly requires
// the text to carry a currency unit.
var elementScans = []struct {
	selector string
	wonOnly  bool
}{
	{".money, .balance, .won, .amount", false},
	{"strong", true},
	{"span", true},
	{"td", true},
}

// Prompter asks an operator for a balance when automatic reading fails
type Prompter interface {
	PromptBalance(ctx context.Context) (int, error)
}

// PageBalanceReader reads the balance from the account pages
type PageBalanceReader struct {
	driver   agent.Driver
	prompter Prompter
	evidence *agent.EvidenceStore
	pages    []string
	logger   *zap.Logger
}

// NewPageBalanceReader creates a reader. prompter and evidence may be nil.
func NewPageBalanceReader(driver agent.Driver, prompter Prompter, evidence *agent.EvidenceStore, logger *zap.Logger) *PageBalanceReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageBalanceReader{
		driver:   driver,
		prompter: prompter,
		evidence: evidence,
		pages:    MyPageURLs,
		logger:   logger.Named("balance"),
	}
}

// ReadBalance tries structured scans, then free text, then the operator.
// An unreadable balance is 0 so nothing is bought on an unknown balance.
func (r *PageBalanceReader) ReadBalance(ctx context.Context) BalanceSnapshot {
	for _, page := range r.pages {
		if err := r.driver.Navigate(ctx, page); err != nil {
			r.logger.Debug("account page unavailable", zap.String("url", page), zap.Error(err))
			continue
		}
		if v, src, ok := r.scanPage(ctx); ok {
			r.logger.Info("balance read", zap.Int("balance", v), zap.String("source", string(src)))
			return BalanceSnapshot{Value: v, CapturedAt: time.Now(), Source: src}
		}
	}

	r.logger.Warn("balance not found on any account page")
	r.evidence.TryCapture(ctx, "balance_unreadable")

	if r.prompter != nil {
		v, err := r.prompter.PromptBalance(ctx)
		if err == nil && ValidBalance(v) {
			r.logger.Info("balance entered manually", zap.Int("balance", v))
			return BalanceSnapshot{Value: v, CapturedAt: time.Now(), Source: SourceManual}
		}
		r.logger.Warn("manual balance unusable", zap.Int("value", v), zap.Error(err))
	}

	r.logger.Warn("balance defaults to 0")
	return BalanceSnapshot{Value: 0, CapturedAt: time.Now(), Source: SourceDefault}
}

func (r *PageBalanceReader) scanPage(ctx context.Context) (int, BalanceSource, bool) {
	for _, scan := range elementScans {
		texts, err := r.elementTexts(ctx, scan.selector)
		if err != nil {
			continue
		}
		for _, text := range texts {
			if scan.wonOnly && !strings.Contains(text, "원") {
				continue
			}
			if v, ok := ParseAmount(text); ok {
				return v, SourceElement, true
			}
		}
	}

	text, err := r.driver.PageText(ctx)
	if err != nil {
		return 0, "", false
	}
	if v, ok := FindBalanceInText(text); ok {
		return v, SourceFreeText, true
	}
	return 0, "", false
}

func (r *PageBalanceReader) elementTexts(ctx context.Context, selector string) ([]string, error) {
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%q))
		.map(function(e){ return (e.innerText || '').trim(); })
		.filter(function(t){ return /\d/.test(t) && t.length < 40; })
		.slice(0, 100)`, selector)
	var texts []string
	if err := r.driver.ExecuteScript(ctx, script, &texts); err != nil {
		return nil, err
	}
	return texts, nil
}
