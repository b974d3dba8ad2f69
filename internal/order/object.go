package order

import (
	"strings"

	restate "github.com/restatedev/sdk-go"
	"github.com/restatedev/sdk-go/server"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
)

// ServiceName is the Restate virtual object that serializes vendor-side
// transitions per order. Objects are keyed "{shopId}:{orderId}".
const ServiceName = "orders.OrderService"

type SetStatusRequest struct {
	Status string `json:"status"`
}

type SetStatusResponse struct {
	ShopID  string `json:"shopId"`
	OrderID string `json:"orderId"`
	Status  Status `json:"status"`
	Changed bool   `json:"changed"`
}

// Object exposes the state machine as Restate handlers.
type Object struct {
	repo    *Repository
	machine *Machine
}

func NewObject(repo *Repository, machine *Machine) *Object {
	return &Object{repo: repo, machine: machine}
}

// Bind registers the object's handlers on a Restate server.
func (o *Object) Bind(srv *server.Restate) *server.Restate {
	obj := restate.NewObject(ServiceName).
		Handler("SetOrderStatus", restate.NewObjectHandler(o.SetOrderStatus)).
		Handler("GetOrder", restate.NewObjectSharedHandler(o.GetOrder))
	return srv.Bind(obj)
}

func (o *Object) SetOrderStatus(ctx restate.ObjectContext, req SetStatusRequest) (SetStatusResponse, error) {
	shopID, orderID, err := ParseKey(restate.Key(ctx))
	if err != nil {
		return SetStatusResponse{}, terminal(err)
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		return SetStatusResponse{}, terminal(err)
	}
	ctx.Log().Info("setting order status", "shopId", shopID, "orderId", orderID, "status", status)

	changed, err := restate.Run(ctx, func(rc restate.RunContext) (bool, error) {
		changed, err := o.machine.SetOrderStatus(rc, shopID, orderID, status)
		if err != nil {
			return false, terminal(err)
		}
		return changed, nil
	})
	if err != nil {
		return SetStatusResponse{}, err
	}
	return SetStatusResponse{ShopID: shopID, OrderID: orderID, Status: status, Changed: changed}, nil
}

func (o *Object) GetOrder(ctx restate.ObjectSharedContext, _ restate.Void) (Order, error) {
	shopID, orderID, err := ParseKey(restate.Key(ctx))
	if err != nil {
		return Order{}, terminal(err)
	}
	return restate.Run(ctx, func(rc restate.RunContext) (Order, error) {
		ord, err := o.repo.Get(rc, shopID, orderID)
		if err != nil {
			return Order{}, terminal(err)
		}
		return ord, nil
	})
}

// Key builds the virtual object key for an order.
func Key(shopID, orderID string) string { return shopID + ":" + orderID }

func ParseKey(key string) (shopID, orderID string, err error) {
	shopID, orderID, ok := strings.Cut(key, ":")
	if !ok || shopID == "" || orderID == "" || strings.Contains(orderID, ":") {
		return "", "", apperr.Wrap(apperr.ErrInvalidIdentifier, "object key %q is not shopId:orderId", key)
	}
	return shopID, orderID, nil
}

// terminal marks classified errors as non-retryable. Unclassified errors are
// returned as-is so Restate retries them.
func terminal(err error) error {
	ae, ok := apperr.As(err)
	if !ok {
		return err
	}
	switch ae.Kind {
	case apperr.KindInvalidInput:
		return restate.TerminalError(err, 400)
	case apperr.KindAuthentication:
		return restate.TerminalError(err, 401)
	case apperr.KindForbidden:
		return restate.TerminalError(err, 403)
	case apperr.KindNotFound:
		return restate.TerminalError(err, 404)
	case apperr.KindConflict:
		return restate.TerminalError(err, 409)
	default:
		return restate.TerminalError(err, 500)
	}
}
