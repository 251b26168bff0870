package shop

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopkit/stripecheckout/lib/myerrors"
	"github.com/shopkit/stripecheckout/lib/mylog"
	"github.com/shopkit/stripecheckout/services/basketapi"
	"github.com/shopkit/stripecheckout/services/shop/shopevents"
)

func (s *service) listBaskets(c context.Context) ([]basketapi.Basket, error) {
	s.logger.Log(c, "", mylog.SeverityInfo, "Fetch all baskets")

	baskets, err := s.basketStore.List(c)
	if err != nil {
		return nil, myerrors.NewInternalError(err)
	}

	// TODO sort in database
	sort.Slice(baskets, func(i, j int) bool {
		return baskets[i].CreatedAt.After(baskets[j].CreatedAt)
	})
	return baskets, nil
}

func (s *service) createNewBasket(c context.Context, hostname string) (basketapi.Basket, error) {

	basketUID := s.uuider.Create()
	createdAt := s.nower.Now()
	returnURL := fmt.Sprintf("%s/basket/%s/checkout/completed", hostname, basketUID)
	basket := createBasket(basketUID, createdAt, returnURL)

	s.logger.Log(c, basketUID, mylog.SeverityInfo, "Creating new basket %s with %s", basketUID, basket.ProductSummary())

	err := s.basketStore.RunInTransaction(c, func(c context.Context) error {
		err := s.basketStore.Put(c, basketUID, basket)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		err = s.publisher.Publish(c, shopevents.TopicName, shopevents.BasketCreated{
			BasketUID: basketUID},
		)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		return nil
	})
	if err != nil {
		return basketapi.Basket{}, err
	}

	return basket, nil
}

func (s *service) getBasket(c context.Context, basketUID string) (basketapi.Basket, error) {
	s.logger.Log(c, basketUID, mylog.SeverityInfo, "Fetch details of basket uid %s", basketUID)

	basket, found, err := s.basketStore.Get(c, basketUID)
	if err != nil {
		return basketapi.Basket{}, myerrors.NewInternalError(err)
	}
	if !found {
		return basketapi.Basket{}, myerrors.NewNotFoundError(fmt.Errorf("basket with uid %s not found", basketUID))
	}

	return basket, nil
}

func (s *service) checkoutFinalized(c context.Context, basketUID string, status string) (basketapi.Basket, error) {
	s.logger.Log(c, basketUID, mylog.SeverityInfo, "Redirect: checkout finalized for basket %s -> %s", basketUID, status)

	now := s.nower.Now()

	var basket basketapi.Basket
	var found bool
	var err error
	err = s.basketStore.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent

		basket, found, err = s.basketStore.Get(c, basketUID)
		if err != nil {
			return myerrors.NewInternalError(err)
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("basket with uid %s not found", basketUID))
		}

		basket.PaymentStatus = status
		basket.LastModified = &now

		err = s.basketStore.Put(c, basketUID, basket)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		return nil
	})
	if err != nil {
		return basketapi.Basket{}, err
	}

	return basket, nil
}
