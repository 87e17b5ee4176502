package purchase

import (
	"fmt"

	"github.com/dreamup/lotto-agent/internal/agent"
)

// DefaultUnitPrice is the price of one game in won
const DefaultUnitPrice = 1000

// RechargeConfig holds the balance thresholds
type RechargeConfig struct {
	MinBalance     int
	RechargeAmount int
	AutoRecharge   bool
}

// RechargeDecision is the outcome of Decide
type RechargeDecision struct {
	ShouldRecharge bool
	Amount         int
}

// Decide is pure: recharge only below the minimum and only when enabled
func Decide(balance int, cfg RechargeConfig) RechargeDecision {
	if balance < cfg.MinBalance && cfg.AutoRecharge {
		return RechargeDecision{ShouldRecharge: true, Amount: cfg.RechargeAmount}
	}
	return RechargeDecision{}
}

// MaxGames is how many games balance can pay for
func MaxGames(balance, unitPrice int) int {
	if unitPrice <= 0 {
		unitPrice = DefaultUnitPrice
	}
	if balance <= 0 {
		return 0
	}
	return balance / unitPrice
}

// PlanGames clamps requested to what balance affords. Zero affordable games
// is an insufficient funds error.
func PlanGames(balance, requested, unitPrice int) (int, error) {
	affordable := MaxGames(balance, unitPrice)
	if affordable == 0 {
		return 0, agent.NewInsufficientFundsError(fmt.Sprintf("balance %d cannot cover one game", balance))
	}
	return min(requested, affordable), nil
}
