package link

import (
	"sync"
)

// ChanLink is one end of an in-memory ethernet segment created by Pipe.
type ChanLink struct {
	in  chan []byte
	out chan []byte

	done      chan struct{}
	closeOnce *sync.Once
}

// Pipe returns two connected links. Each direction buffers up to queueLen
// frames; closing either end closes both.
func Pipe(queueLen int) (*ChanLink, *ChanLink) {
	aToB := make(chan []byte, queueLen)
	bToA := make(chan []byte, queueLen)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &ChanLink{in: bToA, out: aToB, done: done, closeOnce: once}
	b := &ChanLink{in: aToB, out: bToA, done: done, closeOnce: once}
	return a, b
}

func (c *ChanLink) ReadFrame() ([]byte, error) {
	select {
	case frame := <-c.in:
		return frame, nil
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *ChanLink) WriteFrame(frame []byte) error {
	if len(frame) > MTU {
		return ErrFrameLarge
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case c.out <- buf:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain returns every frame currently waiting to be read without blocking.
func (c *ChanLink) Drain() [][]byte {
	frames := make([][]byte, 0)
	for {
		select {
		case frame := <-c.in:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func (c *ChanLink) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
