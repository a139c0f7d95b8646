package port

import (
	"io"
)

type writeResult struct {
	n   int
	err error
}

type writeRequest struct {
	out  io.Writer
	buf  []byte
	done chan writeResult
}

// writer performs the blocking writes of one port. A write to a pipe whose
// reader stopped reading never returns, so the caller waits on done with a
// timeout and abandons the writer if it has to.
type writer struct {
	reqs chan writeRequest
	quit chan struct{}
}

func startWriter() *writer {
	w := &writer{
		reqs: make(chan writeRequest, 1),
		quit: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) run() {
	for {
		select {
		case req := <-w.reqs:
			n, err := req.out.Write(req.buf)
			req.done <- writeResult{n: n, err: err}
		case <-w.quit:
			return
		}
	}
}

// submit queues one write. The slot is free whenever the previous write
// completed, which the port guarantees by waiting on done.
func (w *writer) submit(out io.Writer, buf []byte) <-chan writeResult {
	done := make(chan writeResult, 1)
	w.reqs <- writeRequest{out: out, buf: buf, done: done}
	return done
}

// stop makes the goroutine exit once its current write, if any, returns.
func (w *writer) stop() {
	close(w.quit)
}
