package authz

import (
	"context"
	"errors"
	"strings"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

// StoreClient answers checks from the documents themselves: a shop's staff
// is its owner, and platform admins are listed under admins/{uid}. Admins
// hold every relation.
type StoreClient struct {
	store docstore.Store
}

func NewStoreClient(store docstore.Store) *StoreClient { return &StoreClient{store: store} }

func (c *StoreClient) Check(ctx context.Context, user, object, relation string) (bool, error) {
	uid, ok := strings.CutPrefix(user, "user:")
	if !ok || uid == "" || uid == "anonymous" {
		return false, nil
	}
	admin, err := c.isAdmin(ctx, uid)
	if err != nil || admin {
		return admin, err
	}
	shopID, ok := strings.CutPrefix(object, "shop:")
	if !ok || relation != RelationStaff {
		return false, nil
	}
	p, err := docstore.Join("shops", shopID)
	if err != nil {
		return false, nil
	}
	doc, err := c.store.Get(ctx, p)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	owner, _ := doc.Data["ownerUid"].(string)
	return owner == uid, nil
}

func (c *StoreClient) isAdmin(ctx context.Context, uid string) (bool, error) {
	p, err := docstore.Join("admins", uid)
	if err != nil {
		return false, nil
	}
	_, err = c.store.Get(ctx, p)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
