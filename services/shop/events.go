package shop

import (
	"context"
	"fmt"

	"github.com/shopkit/stripecheckout/lib/myerrors"
	"github.com/shopkit/stripecheckout/lib/mylog"
	"github.com/shopkit/stripecheckout/services/checkoutevents"
	"github.com/shopkit/stripecheckout/services/shop/shopevents"
)

func (s *service) Subscribe(c context.Context) error {

	err := s.pubsub.CreateTopic(c, shopevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", shopevents.TopicName, err)
	}

	err = s.pubsub.Subscribe(c, checkoutevents.TopicName, s.hostname+"/basket/event")
	if err != nil {
		return fmt.Errorf("error subscribing to topic %s: %s", checkoutevents.TopicName, err)
	}

	return nil
}

func (s *service) OnCheckoutStarted(c context.Context, topic string, event checkoutevents.CheckoutStarted) error {
	return nil
}

// OnCheckoutCompleted records the webhook outcome on the basket so the shop
// reflects the definitive payment state.
func (s *service) OnCheckoutCompleted(c context.Context, topic string, event checkoutevents.CheckoutCompleted) error {
	s.logger.Log(c, event.CheckoutUID, mylog.SeverityInfo, "Event: checkout on basket %s completed (%s) -> %v", event.CheckoutUID, event.EventName, event.Success)

	now := s.nower.Now()

	return s.basketStore.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		basket, found, err := s.basketStore.Get(c, event.CheckoutUID)
		if err != nil {
			return myerrors.NewInternalError(err)
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("basket with uid %s not found", event.CheckoutUID))
		}

		basket.PaymentStatus = event.EventName
		basket.LastModified = &now

		err = s.basketStore.Put(c, event.CheckoutUID, basket)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		return nil
	})
}

// OnPaymentCaptured marks the basket as fully paid and announces this on the
// basket topic.
func (s *service) OnPaymentCaptured(c context.Context, topic string, event checkoutevents.PaymentCaptured) error {
	s.logger.Log(c, event.CheckoutUID, mylog.SeverityInfo, "Event: payment of %d %s captured for basket %s under order %s",
		event.AmountInCents, event.Currency, event.CheckoutUID, event.OrderNumber)

	now := s.nower.Now()

	return s.basketStore.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		basket, found, err := s.basketStore.Get(c, event.CheckoutUID)
		if err != nil {
			return myerrors.NewInternalError(err)
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("basket with uid %s not found", event.CheckoutUID))
		}

		basket.PaymentStatus = "captured"
		basket.OrderNumber = event.OrderNumber
		basket.LastModified = &now

		err = s.basketStore.Put(c, event.CheckoutUID, basket)
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		err = s.publisher.Publish(c, shopevents.TopicName, shopevents.BasketPaymentCompleted{
			BasketUID:   event.CheckoutUID,
			OrderNumber: event.OrderNumber,
			FinalState:  basket.State,
		})
		if err != nil {
			return myerrors.NewInternalError(err)
		}

		return nil
	})
}
