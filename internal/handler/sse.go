package handler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/pulseline/broadcast-engine/internal/stream"
)

const sseHeartbeatInterval = 15 * time.Second

// sseSubscribe attaches a live subscription for the lifetime of one SSE
// connection. emit hands a marshaled snapshot to the stream, emitError a
// refresh or transport failure; the returned stop function detaches.
type sseSubscribe func(ctx context.Context, emit func(payload []byte) error, emitError func(error)) (func(), error)

// writeSSE streams full snapshots to the client. Each push is a complete
// `snapshot` event; comments keep intermediaries from closing idle
// connections. The connection ends when the client goes away.
func writeSSE(c *fiber.Ctx, subscribe sseSubscribe) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		runSSE(w, subscribe)
	}))

	return nil
}

// runSSE owns the wire loop. Subscription failures become `error` events;
// a lost subscription additionally ends the stream so the client's
// EventSource reconnects and resubscribes.
func runSSE(w *bufio.Writer, subscribe sseSubscribe) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Latest-wins buffer: a slow client skips straight to the newest
	// snapshot instead of replaying stale ones.
	snapshots := make(chan []byte, 1)
	emit := func(payload []byte) error {
		for {
			select {
			case snapshots <- payload:
				return nil
			default:
				select {
				case <-snapshots:
				default:
				}
			}
		}
	}

	errs := make(chan error, 1)
	emitError := func(err error) {
		select {
		case errs <- err:
		default:
		}
	}

	stop, err := subscribe(ctx, emit, emitError)
	if err != nil {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		_ = w.Flush()
		return
	}
	defer stop()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case payload := <-snapshots:
			if !writeSnapshotFrame(w, payload) {
				return
			}
		case err := <-errs:
			// A snapshot that raced in ahead of the failure still goes out
			// first; the client keeps the freshest state it can get.
			select {
			case payload := <-snapshots:
				if !writeSnapshotFrame(w, payload) {
					return
				}
			default:
			}
			if _, werr := fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error()); werr != nil {
				return
			}
			if errors.Is(err, stream.ErrSubscriptionLost) {
				_ = w.Flush()
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func writeSnapshotFrame(w *bufio.Writer, payload []byte) bool {
	_, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload)
	return err == nil
}
