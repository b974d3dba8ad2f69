// Package payout decides what would happen to a confirmed payment's funds.
// It is a dry run: plans are logged, no money moves.
package payout

import (
	"log"
	"time"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
)

type Decision string

const (
	DecisionRelease Decision = "release"
	DecisionHold    Decision = "hold"
)

type Plan struct {
	ShopID    string    `json:"shopId"`
	OrderID   string    `json:"orderId"`
	Amount    int64     `json:"amount"`
	Mode      string    `json:"mode"`
	Decision  Decision  `json:"decision"`
	Reason    string    `json:"reason"`
	PlannedAt time.Time `json:"plannedAt"`
}

type Planner struct {
	logger *log.Logger
	now    func() time.Time
}

func NewPlanner(logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.Default()
	}
	return &Planner{logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Plan releases instantly only for shops in INSTANT mode that accepted
// instant payouts; everything else is held for settlement.
func (p *Planner) Plan(s shop.Shop, orderID string, amount int64) Plan {
	plan := Plan{
		ShopID:    s.ID,
		OrderID:   orderID,
		Amount:    amount,
		Mode:      string(s.PayoutMode),
		Decision:  DecisionHold,
		PlannedAt: p.now(),
	}
	switch {
	case s.PayoutMode != shop.PayoutInstant:
		plan.Reason = "shop payout mode is " + string(s.PayoutMode)
	case !s.PayoutConsent:
		plan.Reason = "vendor has not accepted instant payouts"
	default:
		plan.Decision = DecisionRelease
		plan.Reason = "instant payout"
	}
	p.logger.Printf("[DRY-RUN PAYOUT] shop=%s order=%s amount=%d mode=%s decision=%s reason=%q",
		plan.ShopID, plan.OrderID, plan.Amount, plan.Mode, plan.Decision, plan.Reason)
	return plan
}
