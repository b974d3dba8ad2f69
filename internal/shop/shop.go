// Package shop holds vendor shops and their registered notification devices.
package shop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/apperr"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

type PayoutMode string

const (
	PayoutHold    PayoutMode = "HOLD"
	PayoutInstant PayoutMode = "INSTANT"
)

func ParsePayoutMode(s string) (PayoutMode, error) {
	switch PayoutMode(s) {
	case PayoutHold, PayoutInstant:
		return PayoutMode(s), nil
	}
	return "", apperr.Wrap(apperr.ErrInvalidIdentifier, "unknown payout mode %q", s)
}

type Shop struct {
	ID            string     `doc:"-" json:"id"`
	Name          string     `doc:"name" json:"name"`
	OwnerUID      string     `doc:"ownerUid" json:"ownerUid"`
	Active        *bool      `doc:"active" json:"active,omitempty"`
	PayoutMode    PayoutMode `doc:"payoutMode" json:"payoutMode,omitempty"`
	PayoutConsent bool       `doc:"acceptedInstantPayout" json:"payoutConsent"`
	Revenue       int64      `doc:"revenue" json:"revenue"`
	CreatedAt     time.Time  `doc:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `doc:"updatedAt" json:"updatedAt"`
}

// Accepting reports whether the shop takes new payments. Only an explicit
// admin kill-switch disables a shop.
func (s Shop) Accepting() bool { return s.Active == nil || *s.Active }

// Device is a vendor push registration stored under the token as its id.
type Device struct {
	Token     string    `doc:"-" json:"token"`
	Platform  string    `doc:"platform" json:"platform"`
	CreatedAt time.Time `doc:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `doc:"updatedAt" json:"updatedAt"`
}

const (
	shopsCollection   = "shops"
	devicesCollection = "vendorDevices"
	revenueField      = "revenue"
)

func Path(shopID string) (docstore.Path, error) {
	p, err := docstore.Join(shopsCollection, shopID)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidIdentifier, "shop %q", shopID)
	}
	return p, nil
}

func DevicePath(shopID, token string) (docstore.Path, error) {
	p, err := docstore.Join(shopsCollection, shopID, devicesCollection, token)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidIdentifier, "shop %q device token", shopID)
	}
	return p, nil
}

// RevenueIncrement is the store-native increment of a shop's revenue. It is
// the only way revenue changes.
func RevenueIncrement(shopID string, amount int64) (docstore.Write, error) {
	p, err := Path(shopID)
	if err != nil {
		return docstore.Write{}, err
	}
	return docstore.Increment(p, revenueField, amount, docstore.Fields{"updatedAt": docstore.ServerTimestamp}), nil
}

// Directory reads and administers shops.
type Directory struct {
	store docstore.Store
}

func NewDirectory(store docstore.Store) *Directory {
	return &Directory{store: store}
}

// Register creates a shop at vendor sign-up.
func (d *Directory) Register(ctx context.Context, shopID, name, ownerUID string) (Shop, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(ownerUID) == "" {
		return Shop{}, apperr.Wrap(apperr.ErrInvalidIdentifier, "shop name and owner are required")
	}
	p, err := Path(shopID)
	if err != nil {
		return Shop{}, err
	}
	err = d.store.Commit(ctx, docstore.Create(p, docstore.Fields{
		"name":                  name,
		"ownerUid":              ownerUID,
		"active":                true,
		"payoutMode":            string(PayoutHold),
		"acceptedInstantPayout": false,
		"revenue":               int64(0),
		"createdAt":             docstore.ServerTimestamp,
		"updatedAt":             docstore.ServerTimestamp,
	}))
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return Shop{}, apperr.Wrap(apperr.ErrShopExists, "%s", shopID)
	}
	if err != nil {
		return Shop{}, fmt.Errorf("register shop %s: %w", shopID, err)
	}
	return d.Get(ctx, shopID)
}

func (d *Directory) Get(ctx context.Context, shopID string) (Shop, error) {
	p, err := Path(shopID)
	if err != nil {
		return Shop{}, err
	}
	doc, err := d.store.Get(ctx, p)
	if errors.Is(err, docstore.ErrNotFound) {
		return Shop{}, apperr.Wrap(apperr.ErrShopNotFound, "%s", shopID)
	}
	if err != nil {
		return Shop{}, fmt.Errorf("get shop %s: %w", shopID, err)
	}
	var s Shop
	if err := docstore.Decode(doc.Data, &s); err != nil {
		return Shop{}, apperr.Wrap(apperr.ErrInvalidDocument, "shop %s: %v", shopID, err)
	}
	s.ID = shopID
	if s.PayoutMode == "" {
		s.PayoutMode = PayoutHold
	}
	if _, err := ParsePayoutMode(string(s.PayoutMode)); err != nil {
		return Shop{}, apperr.Wrap(apperr.ErrInvalidDocument, "shop %s: payout mode %q", shopID, s.PayoutMode)
	}
	return s, nil
}

// Settings is an admin patch; nil fields are left unchanged.
type Settings struct {
	Active        *bool   `json:"active,omitempty"`
	PayoutMode    *string `json:"payoutMode,omitempty"`
	PayoutConsent *bool   `json:"payoutConsent,omitempty"`
}

func (d *Directory) UpdateSettings(ctx context.Context, shopID string, s Settings) (Shop, error) {
	p, err := Path(shopID)
	if err != nil {
		return Shop{}, err
	}
	patch := docstore.Fields{"updatedAt": docstore.ServerTimestamp}
	if s.Active != nil {
		patch["active"] = *s.Active
	}
	if s.PayoutMode != nil {
		mode, err := ParsePayoutMode(*s.PayoutMode)
		if err != nil {
			return Shop{}, err
		}
		patch["payoutMode"] = string(mode)
	}
	if s.PayoutConsent != nil {
		patch["acceptedInstantPayout"] = *s.PayoutConsent
	}
	err = d.store.Commit(ctx, docstore.Update(p, patch))
	if errors.Is(err, docstore.ErrNotFound) {
		return Shop{}, apperr.Wrap(apperr.ErrShopNotFound, "%s", shopID)
	}
	if err != nil {
		return Shop{}, fmt.Errorf("update shop %s: %w", shopID, err)
	}
	log.Printf("[Shops] admin updated shop %s: %v", shopID, patch)
	return d.Get(ctx, shopID)
}

// EnsureAccepting fails with ShopInactive when an admin disabled the shop.
// Shops without a document are treated as active.
func (d *Directory) EnsureAccepting(ctx context.Context, shopID string) error {
	s, err := d.Get(ctx, shopID)
	if errors.Is(err, apperr.ErrShopNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !s.Accepting() {
		return apperr.Wrap(apperr.ErrShopInactive, "%s", shopID)
	}
	return nil
}

// RegisterDevice records or refreshes a vendor device token. Refreshing keeps
// the original createdAt.
func (d *Directory) RegisterDevice(ctx context.Context, shopID, token, platform string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Wrap(apperr.ErrInvalidIdentifier, "device token is required")
	}
	if platform == "" {
		platform = "web"
	}
	p, err := DevicePath(shopID, token)
	if err != nil {
		return err
	}
	_, err = d.store.Mutate(ctx, p, func(_ docstore.Document, exists bool) (docstore.Fields, error) {
		patch := docstore.Fields{
			"platform":  platform,
			"updatedAt": docstore.ServerTimestamp,
		}
		if !exists {
			patch["createdAt"] = docstore.ServerTimestamp
		}
		return patch, nil
	})
	if err != nil {
		return fmt.Errorf("register device for shop %s: %w", shopID, err)
	}
	return nil
}

func (d *Directory) Devices(ctx context.Context, shopID string) ([]Device, error) {
	p, err := Path(shopID)
	if err != nil {
		return nil, err
	}
	col, err := p.Child(devicesCollection)
	if err != nil {
		return nil, err
	}
	docs, err := d.store.List(ctx, col)
	if err != nil {
		return nil, fmt.Errorf("list devices for shop %s: %w", shopID, err)
	}
	out := make([]Device, 0, len(docs))
	for _, doc := range docs {
		var dev Device
		if err := docstore.Decode(doc.Data, &dev); err != nil {
			log.Printf("[Shops] skipping device %s: %v", doc.Path, err)
			continue
		}
		dev.Token = doc.ID()
		out = append(out, dev)
	}
	return out, nil
}

// DeviceTokens returns the multicast recipients for a shop.
func (d *Directory) DeviceTokens(ctx context.Context, shopID string) ([]string, error) {
	devs, err := d.Devices(ctx, shopID)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(devs))
	for _, dev := range devs {
		tokens = append(tokens, dev.Token)
	}
	return tokens, nil
}
