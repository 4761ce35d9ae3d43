package link

import (
	"errors"
)

const (
	// largest ethernet frame we carry: 1500 byte payload + 14 byte header
	MTU = 1514
)

var (
	ErrClosed     = errors.New("link closed")
	ErrQueueFull  = errors.New("link queue full")
	ErrFrameLarge = errors.New("frame exceeds link MTU")
)

// A Link moves whole ethernet frames between an interface and its neighbor.
// Writes are fire and forget: a frame that can't be queued is dropped and
// reported, never retried.
type Link interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}
