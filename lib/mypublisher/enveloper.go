package mypublisher

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopkit/stripecheckout/lib/myevents"
	"github.com/shopkit/stripecheckout/lib/mytime"
)

type enveloper struct {
	nower mytime.Nower
}

func newEnveloper(nower mytime.Nower) enveloper {
	return enveloper{
		nower: nower,
	}
}

func (e enveloper) do(topic string, event myevents.Event) (myevents.EventEnvelope, error) {
	jsonPayload, err := json.Marshal(event)
	if err != nil {
		return myevents.EventEnvelope{}, fmt.Errorf("error marshalling event-payload: %s", err)
	}
	envelope := myevents.EventEnvelope{
		Topic:         topic,
		AggregateUID:  event.GetAggregateName(),
		EventTypeName: event.GetEventTypeName(),
		EventPayload:  string(jsonPayload),
		Published:     false,
	}

	// In order to be idempotent, the event uid is a checksum instead of a uuid
	envelope.UID, err = checksum(envelope)
	if err != nil {
		return myevents.EventEnvelope{}, fmt.Errorf("error checksumming event-payload: %s", err)
	}
	// The timestamp is excluded from the checksum
	envelope.CreatedAt = e.nower.Now()

	return envelope, nil
}

func checksum(envlp myevents.EventEnvelope) (string, error) {
	asJSON, err := json.Marshal(envlp)
	if err != nil {
		return "", err
	}

	sha2 := sha256.New()
	_, err = io.WriteString(sha2, string(asJSON))
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(sha2.Sum(nil)), nil
}
