package shop

import (
	"github.com/shopkit/stripecheckout/lib/mylog"
	"github.com/shopkit/stripecheckout/lib/mypublisher"
	"github.com/shopkit/stripecheckout/lib/mypubsub"
	"github.com/shopkit/stripecheckout/lib/mystore"
	"github.com/shopkit/stripecheckout/lib/mytime"
	"github.com/shopkit/stripecheckout/lib/myuuid"
	"github.com/shopkit/stripecheckout/services/basketapi"
)

type service struct {
	basketStore mystore.Store[basketapi.Basket]
	publisher   mypublisher.Publisher
	pubsub      mypubsub.PubSub
	nower       mytime.Nower
	uuider      myuuid.UUIDer
	logger      mylog.Logger
	hostname    string
}

// Use dependency injection to isolate the infrastructure and easy testing
func newService(store mystore.Store[basketapi.Basket], nower mytime.Nower, uuider myuuid.UUIDer,
	logger mylog.Logger, pub mypublisher.Publisher, pubsub mypubsub.PubSub, hostname string) *service {
	return &service{
		basketStore: store,
		publisher:   pub,
		pubsub:      pubsub,
		nower:       nower,
		uuider:      uuider,
		logger:      logger,
		hostname:    hostname,
	}
}
