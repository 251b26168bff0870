package checkoutevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopkit/stripecheckout/lib/myerrors"
	"github.com/shopkit/stripecheckout/lib/myevents"
)

const (
	TopicName            = "checkout"
	checkoutStartedName  = TopicName + ".started"
	checkoutCompleteName = TopicName + ".completed"
	paymentCapturedName  = TopicName + ".paymentCaptured"
)

type CheckoutEventService interface {
	Subscribe(c context.Context) error
	OnCheckoutStarted(c context.Context, topic string, event CheckoutStarted) error
	OnCheckoutCompleted(c context.Context, topic string, event CheckoutCompleted) error
	OnPaymentCaptured(c context.Context, topic string, event PaymentCaptured) error
}

func DispatchEvent(c context.Context, reader io.Reader, service CheckoutEventService) error {
	envelope, err := myevents.ParseEventEnvelope(reader)
	if err != nil {
		return myerrors.NewInvalidInputError(err)
	}

	switch envelope.EventTypeName {
	case checkoutStartedName:
		{
			event := CheckoutStarted{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnCheckoutStarted(c, envelope.Topic, event)
		}
	case checkoutCompleteName:
		{
			event := CheckoutCompleted{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnCheckoutCompleted(c, envelope.Topic, event)
		}
	case paymentCapturedName:
		{
			event := PaymentCaptured{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnPaymentCaptured(c, envelope.Topic, event)
		}
	default:
		return myerrors.NewNotImplementedError(fmt.Errorf("unknown event %s", envelope.EventTypeName))
	}
}

type CheckoutStarted struct {
	CheckoutUID   string
	AmountInCents int64
	Currency      string
	ShopperEmail  string
}

func (e CheckoutStarted) GetEventTypeName() string {
	return checkoutStartedName
}

func (e CheckoutStarted) GetAggregateName() string {
	return e.CheckoutUID
}

type CheckoutCompleted struct {
	CheckoutUID string
	EventName   string
	Success     bool
}

func (e CheckoutCompleted) GetEventTypeName() string {
	return checkoutCompleteName
}

func (e CheckoutCompleted) GetAggregateName() string {
	return e.CheckoutUID
}

type PaymentCaptured struct {
	CheckoutUID   string
	OrderNumber   string
	Reference     string
	AmountInCents int64
	Currency      string
}

func (e PaymentCaptured) GetEventTypeName() string {
	return paymentCapturedName
}

func (e PaymentCaptured) GetAggregateName() string {
	return e.CheckoutUID
}
