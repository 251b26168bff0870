package shopevents

import (
	"github.com/shopkit/stripecheckout/services/basketapi"
)

const (
	TopicName                  = "basket"
	basketCreatedName          = TopicName + ".created"
	basketPaymentCompletedName = TopicName + ".payment.completed"
)

type BasketCreated struct {
	BasketUID string
}

func (e BasketCreated) GetEventTypeName() string {
	return basketCreatedName
}

func (e BasketCreated) GetAggregateName() string {
	return e.BasketUID
}

type BasketPaymentCompleted struct {
	BasketUID   string
	OrderNumber string
	FinalState  basketapi.BasketState
}

func (e BasketPaymentCompleted) GetEventTypeName() string {
	return basketPaymentCompletedName
}

func (e BasketPaymentCompleted) GetAggregateName() string {
	return e.BasketUID
}
