package input

import (
	"io"
	"sync"
	"time"
)

type keyRead struct {
	key byte
	err error
}

// readerSource adapts a blocking reader. A background goroutine performs the
// reads; it may outlive Close until the reader returns.
type readerSource struct {
	keys      chan keyRead
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewReaderSource returns a key source reading one byte at a time from r.
func NewReaderSource(r io.Reader) KeySource {
	s := &readerSource{
		keys: make(chan keyRead),
		done: make(chan struct{}),
	}
	go s.read(r)
	return s
}

func (s *readerSource) read(r io.Reader) {
	var buf [1]byte
	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			select {
			case s.keys <- keyRead{key: buf[0]}:
			case <-s.done:
				return
			}
		}
		if err != nil {
			select {
			case s.keys <- keyRead{err: err}:
			case <-s.done:
			}
			return
		}
	}
}

func (s *readerSource) Poll(timeout time.Duration) (byte, bool, error) {
	if s.err != nil {
		return 0, false, s.err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-s.keys:
		if r.err != nil {
			s.err = r.err
			return 0, false, r.err
		}
		return r.key, true, nil
	case <-timer.C:
		return 0, false, nil
	case <-s.done:
		return 0, false, io.EOF
	}
}

func (s *readerSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
