package service

import (
	"errors"

	"checkout-service/internal/apperr"
	"checkout-service/internal/auth"
	"checkout-service/internal/models"
)

func authorize(actor auth.Actor, action auth.Action, res auth.Resource) error {
	if !auth.CanPerform(actor, action, res) {
		return apperr.Forbidden("not allowed to perform %s", action)
	}
	return nil
}

// loadErr maps a repository read failure to the error surfaced to callers
func loadErr(err error, what, id string) error {
	if errors.Is(err, models.ErrNotFound) {
		return apperr.NotFound("%s %s not found", what, id)
	}
	return apperr.Internal(err, "failed to load %s %s", what, id)
}

func orderResource(order *models.Order) auth.Resource {
	return auth.Resource{OwnerID: order.CustomerID, SupplierIDs: order.SupplierIDs()}
}
