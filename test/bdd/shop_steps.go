package bdd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cucumber/godog"
)

func (w *PipelineWorld) registerShopSteps(sc *godog.ScenarioContext) {
	sc.Step(`^shop "([^"]+)" is registered by its owner with devices "([^"]*)"$`, w.registerShopWithDevices)
	sc.Step(`^shop "([^"]+)" revenue is (\d+)$`, w.assertRevenueEventually)
	sc.Step(`^shop "([^"]+)" revenue stays (\d+)$`, w.assertRevenueStays)
	sc.Step(`^(\d+) "([^"]+)" notifications? (?:was|were) sent$`, w.assertNotificationCount)
}

func (w *PipelineWorld) registerShopWithDevices(shopID, devices string) error {
	if err := w.call(http.MethodPost, "/api/shops", ownerUID, map[string]any{"shopId": shopID, "name": shopID + " Kitchen"}); err != nil {
		return err
	}
	if w.httpStatus != http.StatusCreated {
		return fmt.Errorf("register shop %s: status %d body %v", shopID, w.httpStatus, w.httpJSON)
	}
	for _, tok := range strings.Split(devices, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		path := "/api/shops/" + url.PathEscape(shopID) + "/devices/" + url.PathEscape(tok)
		if err := w.call(http.MethodPut, path, ownerUID, map[string]any{"platform": "android"}); err != nil {
			return err
		}
		if w.httpStatus != http.StatusNoContent {
			return fmt.Errorf("register device %s: status %d", tok, w.httpStatus)
		}
	}
	return nil
}

func (w *PipelineWorld) revenue(shopID string) (int64, error) {
	s, err := w.shops.Get(context.Background(), shopID)
	if err != nil {
		return 0, err
	}
	return s.Revenue, nil
}

func (w *PipelineWorld) assertRevenueEventually(shopID string, want int64) error {
	return eventually(func() error {
		got, err := w.revenue(shopID)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("shop %s revenue = %d, want %d", shopID, got, want)
		}
		return nil
	})
}

func (w *PipelineWorld) assertRevenueStays(shopID string, want int64) error {
	settle()
	got, err := w.revenue(shopID)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("shop %s revenue = %d, want %d", shopID, got, want)
	}
	return nil
}

// assertNotificationCount waits for the expected count and then checks that
// no extra notification trails in.
func (w *PipelineWorld) assertNotificationCount(want int, kind string) error {
	check := func() error {
		if got := w.messenger.count(kind); got != want {
			return fmt.Errorf("%d %s notifications sent, want %d", got, kind, want)
		}
		return nil
	}
	if err := eventually(check); err != nil {
		return err
	}
	settle()
	return check()
}
