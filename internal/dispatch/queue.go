// Package dispatch moves submitted requests from socket handlers to the
// pairing step, either in-process or through per-partition Redis streams.
package dispatch

import (
	"context"

	"github.com/peerprep/matching-server-go/internal/model"
)

// Handler runs the pairing step for one request.
type Handler func(ctx context.Context, req *model.PendingRequest)

// Queue accepts requests for asynchronous processing. Requests that share a
// partition are handed to the Handler in the order they were enqueued.
type Queue interface {
	Enqueue(ctx context.Context, req *model.PendingRequest) error
	Close() error
}

// DirectQueue runs the handler on the caller's goroutine.
type DirectQueue struct {
	handler Handler
}

func NewDirectQueue(handler Handler) *DirectQueue {
	return &DirectQueue{handler: handler}
}

func (q *DirectQueue) Enqueue(ctx context.Context, req *model.PendingRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.handler(context.WithoutCancel(ctx), req)
	return nil
}

func (q *DirectQueue) Close() error {
	return nil
}
