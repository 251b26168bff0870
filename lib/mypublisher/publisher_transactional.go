package mypublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shopkit/stripecheckout/lib/mycontext"
	"github.com/shopkit/stripecheckout/lib/myerrors"
	"github.com/shopkit/stripecheckout/lib/myevents"
	"github.com/shopkit/stripecheckout/lib/myhttp"
	"github.com/shopkit/stripecheckout/lib/mylog"
	"github.com/shopkit/stripecheckout/lib/mypubsub"
	"github.com/shopkit/stripecheckout/lib/myqueue"
	"github.com/shopkit/stripecheckout/lib/mystore"
	"github.com/shopkit/stripecheckout/lib/mytime"
)

// transactionalPublisher implements an outbox: events are stored together with
// the business mutation and pushed onto pubsub by a queued trigger.
type transactionalPublisher struct {
	logger    mylog.Logger
	outbox    mystore.Store[myevents.EventEnvelope]
	queue     myqueue.TaskQueuer
	enveloper enveloper
	pubsub    mypubsub.PubSub
}

func New(c context.Context, pubsub mypubsub.PubSub, queue myqueue.TaskQueuer, nower mytime.Nower) (*transactionalPublisher, func(), error) {
	outbox, outboxCleanup, err := mystore.New[myevents.EventEnvelope](c)
	if err != nil {
		return nil, nil, err
	}

	return &transactionalPublisher{
		logger:    mylog.New("publisher"),
		outbox:    outbox,
		queue:     queue,
		enveloper: newEnveloper(nower),
		pubsub:    pubsub,
	}, outboxCleanup, nil
}

func (p *transactionalPublisher) RegisterEndpoints(c context.Context, router *mux.Router) {
	router.HandleFunc("/pubsub/{topic}/{uid}", p.processTriggerPage()).Methods("PUT")
}

func (p *transactionalPublisher) CreateTopic(c context.Context, topicName string) error {
	return p.pubsub.CreateTopic(c, topicName)
}

func (p *transactionalPublisher) Publish(c context.Context, topic string, event myevents.Event) error {
	envelope, err := p.enveloper.do(topic, event)
	if err != nil {
		return fmt.Errorf("error creating envelope: %s", err)
	}

	err = p.outbox.Put(c, envelope.UID, envelope)
	if err != nil {
		return fmt.Errorf("error storing envelope: %s", err)
	}

	err = p.queue.Enqueue(c, myqueue.Task{
		UID:            envelope.UID,
		WebhookURLPath: fmt.Sprintf("/pubsub/%s/%s", envelope.Topic, envelope.UID),
		Payload:        []byte{},
	})
	if err != nil {
		return fmt.Errorf("error queueing publication-trigger %s: %s", envelope.UID, err)
	}

	return nil
}

func (p *transactionalPublisher) processTriggerPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(p.logger)

		eventUID := mux.Vars(r)["uid"]

		err := p.processTrigger(c, eventUID)
		if err != nil {
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{
			Message: "Successfully processed trigger",
		})
	}
}

func (p *transactionalPublisher) processTrigger(c context.Context, eventUID string) error {
	return p.outbox.RunInTransaction(c, func(c context.Context) error {
		// push out everything that is not yet published
		envelopes, err := p.outbox.Query(c, []mystore.Filter{
			{Field: "Published", Compare: "=", Value: false},
		}, "CreatedAt")
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error fetching envelopes: %s", err))
		}

		for _, envelope := range envelopes {
			data, err := json.Marshal(envelope)
			if err != nil {
				return myerrors.NewInternalError(fmt.Errorf("error marshalling envelope %s: %s", envelope.UID, err))
			}

			err = p.pubsub.Publish(c, envelope.Topic, string(data))
			if err != nil {
				return myerrors.NewInternalError(fmt.Errorf("error publishing envelope %s: %s", envelope.UID, err))
			}

			envelope.Published = true
			err = p.outbox.Put(c, envelope.UID, envelope)
			if err != nil {
				return myerrors.NewInternalError(fmt.Errorf("error storing envelope %s: %s", envelope.UID, err))
			}

			p.logger.Log(c, envelope.AggregateUID, mylog.SeverityInfo, "Published event %s", envelope.String())
		}

		return nil
	})
}
