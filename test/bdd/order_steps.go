package bdd

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
)

func (w *PipelineWorld) registerOrderSteps(sc *godog.ScenarioContext) {
	sc.Step(`^customer "([^"]+)" places pickup order "([^"]+)" at shop "([^"]+)" with:$`, w.placeOrder)
	sc.Step(`^order "([^"]+)" at shop "([^"]+)" totals (\d+)$`, w.assertTotal)
	sc.Step(`^order "([^"]+)" at shop "([^"]+)" has payment status "([^"]+)"$`, w.assertPaymentStatus)
	sc.Step(`^order "([^"]+)" at shop "([^"]+)" has status "([^"]+)"$`, w.assertStatus)
	sc.Step(`^the vendor sets order "([^"]+)" at shop "([^"]+)" to "([^"]+)"$`, w.vendorSetsStatus)
	sc.Step(`^the payment status of order "([^"]+)" at shop "([^"]+)" is set to "([^"]+)"$`, w.setPaymentStatus)
	sc.Step(`^the state machine rejects it with "([^"]+)"$`, w.assertMachineError)
	sc.Step(`^the request succeeds with status (\d+)$`, w.assertHTTPStatus)
	sc.Step(`^the request fails with status (\d+) and error "([^"]+)"$`, w.assertHTTPError)
}

// placeOrder reads a table with name, price and qty columns.
func (w *PipelineWorld) placeOrder(customer, alias, shopID string, table *godog.Table) error {
	if len(table.Rows) < 2 {
		return fmt.Errorf("order table needs a header and at least one item")
	}
	var items []map[string]any
	for i, row := range table.Rows[1:] {
		if len(row.Cells) != 3 {
			return fmt.Errorf("row %d: want name, price, qty", i+1)
		}
		price, err := strconv.ParseInt(row.Cells[1].Value, 10, 64)
		if err != nil {
			return fmt.Errorf("row %d price: %w", i+1, err)
		}
		qty, err := strconv.ParseInt(row.Cells[2].Value, 10, 64)
		if err != nil {
			return fmt.Errorf("row %d qty: %w", i+1, err)
		}
		items = append(items, map[string]any{
			"itemId": fmt.Sprintf("item-%d", i+1),
			"name":   row.Cells[0].Value,
			"price":  price,
			"qty":    qty,
		})
	}
	if err := w.call(http.MethodPost, "/api/shops/"+shopID+"/orders", "", map[string]any{
		"customerName": customer,
		"orderType":    "pickup",
		"items":        items,
	}); err != nil {
		return err
	}
	if w.httpStatus != http.StatusCreated {
		return fmt.Errorf("place order: status %d body %v", w.httpStatus, w.httpJSON)
	}
	w.orderIDs[alias], _ = w.httpJSON["id"].(string)
	return nil
}

func (w *PipelineWorld) loadOrder(alias, shopID string) (order.Order, error) {
	orderID, err := w.orderID(alias)
	if err != nil {
		return order.Order{}, err
	}
	return w.orders.Get(context.Background(), shopID, orderID)
}

func (w *PipelineWorld) assertTotal(alias, shopID string, want int64) error {
	o, err := w.loadOrder(alias, shopID)
	if err != nil {
		return err
	}
	if o.TotalAmount != want || order.LineTotal(o.Items) != want {
		return fmt.Errorf("order %s total = %d (lines %d), want %d", alias, o.TotalAmount, order.LineTotal(o.Items), want)
	}
	return nil
}

func (w *PipelineWorld) assertPaymentStatus(alias, shopID, want string) error {
	o, err := w.loadOrder(alias, shopID)
	if err != nil {
		return err
	}
	if string(o.PaymentStatus) != want {
		return fmt.Errorf("order %s paymentStatus = %s, want %s", alias, o.PaymentStatus, want)
	}
	return nil
}

func (w *PipelineWorld) assertStatus(alias, shopID, want string) error {
	o, err := w.loadOrder(alias, shopID)
	if err != nil {
		return err
	}
	if string(o.Status) != want {
		return fmt.Errorf("order %s status = %s, want %s", alias, o.Status, want)
	}
	return nil
}

func (w *PipelineWorld) vendorSetsStatus(alias, shopID, status string) error {
	orderID, err := w.orderID(alias)
	if err != nil {
		return err
	}
	path := "/api/shops/" + shopID + "/orders/" + orderID + "/status"
	return w.call(http.MethodPost, path, ownerUID, map[string]any{"status": status})
}

func (w *PipelineWorld) setPaymentStatus(alias, shopID, status string) error {
	orderID, err := w.orderID(alias)
	if err != nil {
		return err
	}
	_, w.lastErr = w.machine.SetPaymentStatus(context.Background(), shopID, orderID, order.PaymentStatus(status), "")
	return nil
}

func (w *PipelineWorld) assertMachineError(code string) error {
	if w.lastErr == nil {
		return fmt.Errorf("expected %s, call succeeded", code)
	}
	if got := apperr.CodeOf(w.lastErr, ""); got != code {
		return fmt.Errorf("error code = %q (%v), want %q", got, w.lastErr, code)
	}
	return nil
}

func (w *PipelineWorld) assertHTTPStatus(want int) error {
	if w.httpStatus != want {
		return fmt.Errorf("status = %d body %v, want %d", w.httpStatus, w.httpJSON, want)
	}
	return nil
}

func (w *PipelineWorld) assertHTTPError(want int, code string) error {
	if err := w.assertHTTPStatus(want); err != nil {
		return err
	}
	if got := w.httpJSON["error"]; got != code {
		return fmt.Errorf("error = %v, want %s", got, code)
	}
	return nil
}
