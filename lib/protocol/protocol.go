// Package protocol correlates requests sent to the server with their responses.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"cds/client/lib/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrTimeout        = errors.New("request timed out")
	ErrClosed         = errors.New("protocol client is closed")
	ErrInvalidRequest = errors.New("request has no body")
)

var tracer = otel.Tracer("cds/client/protocol")

// Sender writes one message to the server.
type Sender interface {
	Send(message wire.Message) error
}

// Options control how long a call waits for its response.
type Options struct {
	// Timeout is the time to wait for a response after each attempt.
	Timeout time.Duration
	// Retries is the number of times the request is sent again after the first attempt.
	// A negative value retries until the context is cancelled.
	Retries int
}

type ResponseObserver func(response wire.Response)
type NotificationHandler func(message wire.Message)

type Client struct {
	sender   Sender
	sequence uint64

	observer ResponseObserver
	notifier NotificationHandler

	waiters   chan interface{}
	responses chan wire.Response
	done      chan struct{}
	closeOnce sync.Once

	log *log.Logger
}

type registerWaiter struct {
	sequenceID uint64
	waiter     chan wire.Response
}

type removeWaiter struct {
	sequenceID uint64
	waiter     chan wire.Response
}

// New creates a client and starts its response broker.
// The observer sees every response before any caller that waits for it,
// including responses nobody waits for anymore.
// Unsolicited messages from the server are passed to the notifier.
func New(sender Sender, observer ResponseObserver, notifier NotificationHandler) *Client {
	c := &Client{
		sender:    sender,
		observer:  observer,
		notifier:  notifier,
		waiters:   make(chan interface{}),
		responses: make(chan wire.Response),
		done:      make(chan struct{}),
		log:       log.New(log.Writer(), "protocol: ", log.Flags()),
	}
	go c.responseBroker()
	return c
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// NextSequence returns a new sequence id. It never returns 0.
func (c *Client) NextSequence() uint64 {
	for {
		next := atomic.AddUint64(&c.sequence, 1)
		if next != 0 {
			return next
		}
	}
}

// SeedSequence makes sure every following sequence id is larger than the given one.
func (c *Client) SeedSequence(last uint64) {
	for {
		current := atomic.LoadUint64(&c.sequence)
		if current >= last || atomic.CompareAndSwapUint64(&c.sequence, current, last) {
			return
		}
	}
}

// Call sends the request and waits for the response with the request's sequence id.
// A request without a sequence id is assigned a new one.
// On every timeout the request is sent again with the same sequence id.
func (c *Client) Call(ctx context.Context, request wire.Request, options Options) (response wire.Response, err error) {
	if request.Body == nil {
		return response, ErrInvalidRequest
	}
	if request.SequenceID == 0 {
		request.SequenceID = c.NextSequence()
	}

	ctx, span := tracer.Start(ctx, "protocol.call")
	span.SetAttributes(
		attribute.String("command", request.Command().String()),
		attribute.Int64("sequence_id", int64(request.SequenceID)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	waiter := make(chan wire.Response, 1)
	if err = c.operate(ctx, registerWaiter{request.SequenceID, waiter}); err != nil {
		return
	}
	defer c.operate(context.Background(), removeWaiter{request.SequenceID, waiter})

	var sendErr error
	for attempt := 0; options.Retries < 0 || attempt <= options.Retries; attempt++ {
		if sendErr = c.sender.Send(request.Message()); sendErr != nil {
			c.log.Printf("call: failed to send %v %d: %v", request.Command(), request.SequenceID, sendErr)
		}
		timer := time.NewTimer(options.Timeout)
		select {
		case response = <-waiter:
			timer.Stop()
			return response, nil
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return response, ctx.Err()
		case <-c.done:
			timer.Stop()
			return response, ErrClosed
		}
	}
	if sendErr != nil {
		return response, fmt.Errorf("%w: %v", ErrTimeout, sendErr)
	}
	return response, ErrTimeout
}

// Handle accepts a message read from the server.
func (c *Client) Handle(message wire.Message) {
	switch message.Kind {
	case wire.KindResponse:
		response := message.Response()
		if c.observer != nil {
			c.observer(response)
		}
		if response.IsRecovery() {
			// not tied to any request, nobody can wait for it
			return
		}
		select {
		case c.responses <- response:
		case <-c.done:
		}
	case wire.KindNotification:
		if c.notifier != nil {
			c.notifier(message)
		}
	default:
		c.log.Println("handle: unexpected message kind", message.Kind, message.Command)
	}
}

func (c *Client) operate(ctx context.Context, operation interface{}) error {
	select {
	case c.waiters <- operation:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// responseBroker routes incoming responses to the callers waiting for their sequence id.
func (c *Client) responseBroker() {
	waiters := make(map[uint64][]chan wire.Response, 4)
	for {
		select {
		case operation := <-c.waiters:
			switch value := operation.(type) {
			case registerWaiter:
				waiters[value.sequenceID] = append(waiters[value.sequenceID], value.waiter)
			case removeWaiter:
				list := waiters[value.sequenceID]
				for i, waiter := range list {
					if waiter == value.waiter {
						list = append(list[:i], list[i+1:]...)
						break
					}
				}
				if len(list) == 0 {
					delete(waiters, value.sequenceID)
				} else {
					waiters[value.sequenceID] = list
				}
			}
		case response := <-c.responses:
			list, ok := waiters[response.ReplyID]
			if !ok {
				c.log.Println("got a response for a request with unknown id:", response.ReplyID)
				continue
			}
			for _, waiter := range list {
				select {
				case waiter <- response:
				default:
				}
			}
			delete(waiters, response.ReplyID)
		case <-c.done:
			return
		}
	}
}
