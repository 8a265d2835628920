package core

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultFanoutDepth = 16

// Fanout broadcasts one producer's bytes to a fixed set of consumers.
// Each consumer has its own bounded queue; chunks are shared read-only.
// Write and Close must be called from a single producer goroutine.
type Fanout struct {
	queues  []chan []byte
	readers []*fanoutReader
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	err     error
	closed  bool
}

func NewFanout(consumers int, depth int) *Fanout {
	if depth <= 0 {
		depth = defaultFanoutDepth
	}
	f := &Fanout{done: make(chan struct{})}
	for i := 0; i < consumers; i++ {
		queue := make(chan []byte, depth)
		f.queues = append(f.queues, queue)
		f.readers = append(f.readers, &fanoutReader{fanout: f, queue: queue})
	}
	return f
}

func (f *Fanout) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	for _, queue := range f.queues {
		select {
		case queue <- chunk:
		case <-f.done:
			return 0, f.abortErr()
		}
	}
	return len(p), nil
}

// Close signals end of stream; consumers drain their queues then see io.EOF.
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for _, queue := range f.queues {
		close(queue)
	}
	return nil
}

// Abort unblocks the producer and every consumer with err.
func (f *Fanout) Abort(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *Fanout) Reader(index int) io.Reader {
	return f.readers[index]
}

func (f *Fanout) abortErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

type fanoutReader struct {
	fanout  *Fanout
	queue   <-chan []byte
	pending []byte
}

func (r *fanoutReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		select {
		case chunk, ok := <-r.queue:
			if !ok {
				return 0, io.EOF
			}
			r.pending = chunk
		case <-r.fanout.done:
			return 0, r.fanout.abortErr()
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// RunFanout drives produce into every consumer concurrently. It succeeds
// only when the producer and all consumers finish without error. A
// consumer that returns early has its remaining input drained so the
// producer never stalls.
func RunFanout(ctx context.Context, produce func(ctx context.Context, w io.Writer) error, consumers ...func(ctx context.Context, r io.Reader) error) error {
	fan := NewFanout(len(consumers), defaultFanoutDepth)
	group, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		fan.Abort(context.Cause(gctx))
	})
	defer stop()

	group.Go(func() error {
		if err := produce(gctx, fan); err != nil {
			fan.Abort(err)
			return err
		}
		return fan.Close()
	})
	for i, consume := range consumers {
		reader := fan.Reader(i)
		group.Go(func() error {
			if err := consume(gctx, reader); err != nil {
				return err
			}
			_, err := io.Copy(io.Discard, reader)
			return err
		})
	}
	return group.Wait()
}
