// Package queue carries rendered notifications from the API to the
// notification worker over Redis or Kafka.
package queue

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Job is one email waiting for delivery.
type Job struct {
	ID         string
	Kind       string
	CustomerID string
	To         string
	Subject    string
	Text       string
	CreatedAt  time.Time
}

// Handler processes a job. Returned errors are logged by the consumer; the
// job is not retried.
type Handler func(ctx context.Context, job Job) error

// Publisher enqueues jobs.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// Consumer delivers queued jobs to a Handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
}

// Encode returns the JSON form of j.
func (j Job) Encode() []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(j.ID) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(j.Kind) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(j.CustomerID) })
		e.Field("to", func(e *jx.Encoder) { e.Str(j.To) })
		e.Field("subject", func(e *jx.Encoder) { e.Str(j.Subject) })
		e.Field("text", func(e *jx.Encoder) { e.Str(j.Text) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(j.CreatedAt.UTC().Format(time.RFC3339Nano)) })
	})
	return e.Bytes()
}

// Decode parses a job produced by Encode. Unknown fields are ignored.
func Decode(data []byte) (Job, error) {
	var j Job
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			j.ID, err = d.Str()
		case "kind":
			j.Kind, err = d.Str()
		case "customer_id":
			j.CustomerID, err = d.Str()
		case "to":
			j.To, err = d.Str()
		case "subject":
			j.Subject, err = d.Str()
		case "text":
			j.Text, err = d.Str()
		case "created_at":
			var s string
			if s, err = d.Str(); err != nil {
				return err
			}
			j.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return Job{}, errors.Wrap(err, "decode job")
	}
	if j.ID == "" || j.To == "" {
		return Job{}, errors.New("decode job: missing id or recipient")
	}
	return j, nil
}
