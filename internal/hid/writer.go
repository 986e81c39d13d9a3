package hid

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// retryAfter is how long a backend reports itself unavailable after a failed
// write before the next command is allowed to try again.
const retryAfter = time.Second

var errWriterStopped = errors.New("hid writer stopped")

type frame struct {
	dst     io.Writer
	payload []byte
	done    chan error
}

// frameWriter serializes writes to the device files behind a rate limiter so a
// burst of reports does not overrun the gadget endpoint or the serial link.
// send returns once the frame is written, so callers can time the gaps between
// reports.
type frameWriter struct {
	queue   chan frame
	limiter *rate.Limiter
	ctx     context.Context
	done    chan struct{}

	mu         sync.Mutex
	failed     error
	failedAt   time.Time
	retryAfter time.Duration
	now        func() time.Time
}

func newFrameWriter(ctx context.Context, ratePerSec float64, burst int) *frameWriter {
	if burst <= 0 {
		burst = 1
	}
	w := &frameWriter{
		queue:      make(chan frame),
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		ctx:        ctx,
		done:       make(chan struct{}),
		retryAfter: retryAfter,
		now:        time.Now,
	}
	go w.loop()
	return w
}

func (w *frameWriter) send(dst io.Writer, payload []byte) error {
	f := frame{dst: dst, payload: payload, done: make(chan error, 1)}
	select {
	case w.queue <- f:
	case <-w.done:
		return errWriterStopped
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
	select {
	case err := <-f.done:
		return err
	case <-w.done:
		return errWriterStopped
	}
}

func (w *frameWriter) loop() {
	defer close(w.done)
	log.Println("[HID] Frame writer loop started.")
	for {
		select {
		case <-w.ctx.Done():
			return
		case f := <-w.queue:
			if err := w.limiter.Wait(w.ctx); err != nil {
				f.done <- err
				return
			}
			_, err := f.dst.Write(f.payload)
			w.record(err)
			f.done <- err
		}
	}
}

func (w *frameWriter) record(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		if w.failed == nil {
			log.Printf("[HID] Write failed: %v", err)
		}
		w.failed = err
		w.failedAt = w.now()
		return
	}
	if w.failed != nil {
		log.Println("[HID] Writes recovered")
	}
	w.failed = nil
}

// available is false after a failed write until retryAfter has passed or a
// write succeeds again.
func (w *frameWriter) available() bool {
	select {
	case <-w.done:
		return false
	default:
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed == nil || w.now().Sub(w.failedAt) >= w.retryAfter
}
