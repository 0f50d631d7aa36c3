package core

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned when sending on a closed LiveRequestQueue.
var ErrQueueClosed = errors.New("live request queue closed")

// LiveRequest is a single client-to-model message of a bidirectional session.
// Exactly one of the fields is expected to be set.
type LiveRequest struct {
	Content       *Content `json:"content,omitempty"`
	Blob          *Blob    `json:"blob,omitempty"`
	ActivityStart bool     `json:"activity_start,omitempty"`
	ActivityEnd   bool     `json:"activity_end,omitempty"`
	Close         bool     `json:"close,omitempty"`
}

// LiveRequestQueue buffers client input for a live agent run. Sends block
// while the buffer is full and give up once the queue is closed.
type LiveRequestQueue struct {
	ch   chan LiveRequest
	done chan struct{}
	once sync.Once

	// held for reading while sending, for writing while closing ch
	mu sync.RWMutex
}

// NewLiveRequestQueue creates a queue with the given buffer size (default 64).
func NewLiveRequestQueue(size int) *LiveRequestQueue {
	if size <= 0 {
		size = 64
	}
	return &LiveRequestQueue{ch: make(chan LiveRequest, size), done: make(chan struct{})}
}

// Send enqueues req. A request with Close set closes the queue.
func (q *LiveRequestQueue) Send(req LiveRequest) error {
	if req.Close {
		if !q.close() {
			return ErrQueueClosed
		}
		return nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- req:
		return nil
	case <-q.done:
		return ErrQueueClosed
	}
}

// SendContent enqueues a turn of content.
func (q *LiveRequestQueue) SendContent(c Content) error {
	return q.Send(LiveRequest{Content: &c})
}

// SendRealtime enqueues a media chunk.
func (q *LiveRequestQueue) SendRealtime(b Blob) error {
	return q.Send(LiveRequest{Blob: &b})
}

// SendActivityStart marks the beginning of user activity (manual VAD).
func (q *LiveRequestQueue) SendActivityStart() error {
	return q.Send(LiveRequest{ActivityStart: true})
}

// SendActivityEnd marks the end of user activity.
func (q *LiveRequestQueue) SendActivityEnd() error {
	return q.Send(LiveRequest{ActivityEnd: true})
}

// Close closes the queue. Calling Close more than once is a no-op.
func (q *LiveRequestQueue) Close() { q.close() }

// close marks the queue closed, appends a Close request when the buffer has
// room and closes the channel. It reports whether this call closed it.
func (q *LiveRequestQueue) close() bool {
	closed := false
	q.once.Do(func() {
		closed = true
		close(q.done)

		q.mu.Lock()
		defer q.mu.Unlock()

		select {
		case q.ch <- LiveRequest{Close: true}:
		default:
		}
		close(q.ch)
	})
	return closed
}

// Done is closed once the queue is closed.
func (q *LiveRequestQueue) Done() <-chan struct{} { return q.done }

// Requests returns the receive side of the queue.
func (q *LiveRequestQueue) Requests() <-chan LiveRequest { return q.ch }
