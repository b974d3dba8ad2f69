package payout

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
)

func TestPlanDecisions(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlanner(log.New(&buf, "", 0))

	cases := []struct {
		name string
		shop shop.Shop
		want Decision
	}{
		{"hold mode", shop.Shop{ID: "S1", PayoutMode: shop.PayoutHold, PayoutConsent: true}, DecisionHold},
		{"instant without consent", shop.Shop{ID: "S1", PayoutMode: shop.PayoutInstant}, DecisionHold},
		{"instant with consent", shop.Shop{ID: "S1", PayoutMode: shop.PayoutInstant, PayoutConsent: true}, DecisionRelease},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := p.Plan(tc.shop, "O1", 150)
			assert.Equal(t, tc.want, plan.Decision)
			assert.Equal(t, int64(150), plan.Amount)
		})
	}
	assert.Contains(t, buf.String(), "[DRY-RUN PAYOUT] shop=S1 order=O1 amount=150")
}
