package bdd

import (
	"fmt"
	"net/http"

	"github.com/cucumber/godog"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payment"
)

func (w *PipelineWorld) registerPaymentSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the gateway always issues intent "([^"]+)"$`, w.fixGatewayIntent)
	sc.Step(`^the customer requests a payment intent for order "([^"]+)" at shop "([^"]+)" for (\d+) minor units$`, w.requestIntent)
	sc.Step(`^the gateway calls back with payment "([^"]+)" signed with the (correct|wrong) secret$`, w.callbackSigned)
	sc.Step(`^the gateway calls back (\d+) times with payment "([^"]+)" signed with the correct secret$`, w.callbackRepeated)
	sc.Step(`^a callback for intent "([^"]+)" claims payment "([^"]+)" but carries the signature of payment "([^"]+)"$`, w.callbackTampered)
	sc.Step(`^the callback redirects to the success page of order "([^"]+)" at shop "([^"]+)"$`, w.assertRedirect)
}

func (w *PipelineWorld) fixGatewayIntent(intentID string) error {
	w.gateway.fixedID = intentID
	return nil
}

func (w *PipelineWorld) requestIntent(alias, shopID string, amount int64) error {
	orderID, err := w.orderID(alias)
	if err != nil {
		return err
	}
	if err := w.call(http.MethodPost, "/api/payments/intents", "", map[string]any{
		"amountMinorUnits": amount,
		"shopId":           shopID,
		"orderId":          orderID,
	}); err != nil {
		return err
	}
	if w.httpStatus == http.StatusOK {
		id, _ := w.httpJSON["intentId"].(string)
		if id == "" {
			return fmt.Errorf("intent response without intentId: %v", w.httpJSON)
		}
		w.intentID = id
	}
	return nil
}

func (w *PipelineWorld) sendCallback(intentID, paymentID, signature string) error {
	return w.call(http.MethodPost, "/api/payments/callback", "", map[string]any{
		"intentId":  intentID,
		"paymentId": paymentID,
		"signature": signature,
	})
}

func (w *PipelineWorld) callbackSigned(paymentID, which string) error {
	if w.intentID == "" {
		return fmt.Errorf("no intent was created")
	}
	secret := gatewaySecret
	if which == "wrong" {
		secret = "not-" + gatewaySecret
	}
	return w.sendCallback(w.intentID, paymentID, payment.Sign(secret, w.intentID, paymentID))
}

func (w *PipelineWorld) callbackRepeated(times int, paymentID string) error {
	var redirect any
	for i := 0; i < times; i++ {
		if err := w.callbackSigned(paymentID, "correct"); err != nil {
			return err
		}
		if w.httpStatus != http.StatusOK {
			return fmt.Errorf("delivery %d: status %d body %v", i+1, w.httpStatus, w.httpJSON)
		}
		if i > 0 && w.httpJSON["redirectTarget"] != redirect {
			return fmt.Errorf("delivery %d redirected to %v, first went to %v", i+1, w.httpJSON["redirectTarget"], redirect)
		}
		redirect = w.httpJSON["redirectTarget"]
	}
	return nil
}

// callbackTampered signs one payment id and submits another. The literal
// "that" refers to the scenario's intent.
func (w *PipelineWorld) callbackTampered(intentID, claimed, signed string) error {
	if intentID == "that" {
		intentID = w.intentID
	}
	return w.sendCallback(intentID, claimed, payment.Sign(gatewaySecret, intentID, signed))
}

func (w *PipelineWorld) assertRedirect(alias, shopID string) error {
	orderID, err := w.orderID(alias)
	if err != nil {
		return err
	}
	want := redirectBase + "/" + shopID + "/" + orderID
	if got := w.httpJSON["redirectTarget"]; got != want {
		return fmt.Errorf("redirectTarget = %v, want %s", got, want)
	}
	return nil
}
