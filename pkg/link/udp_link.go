package link

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// UDPLink emulates a point to point ethernet segment: every datagram sent to
// the remote address is one frame.
type UDPLink struct {
	HostConnection *net.UDPConn
	RemoteAddr     *net.UDPAddr

	closeOnce sync.Once
	closed    chan struct{}
}

/*
	bind the local side of the link and resolve the neighbor's address
*/
func NewUDPLink(local, remote string) (*UDPLink, error) {
	localAddr, err := net.ResolveUDPAddr("udp4", local)
	if err != nil {
		return nil, fmt.Errorf("resolve local %q: %w", local, err)
	}
	remoteAddr, err := net.ResolveUDPAddr("udp4", remote)
	if err != nil {
		return nil, fmt.Errorf("resolve remote %q: %w", remote, err)
	}

	conn, err := net.ListenUDP("udp4", localAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", localAddr, err)
	}

	return &UDPLink{
		HostConnection: conn,
		RemoteAddr:     remoteAddr,
		closed:         make(chan struct{}),
	}, nil
}

/*
	blocks until a frame from the configured neighbor arrives
	datagrams from any other address are ignored
*/
func (l *UDPLink) ReadFrame() ([]byte, error) {
	buffer := make([]byte, MTU)
	for {
		bytesRead, udpAddr, err := l.HostConnection.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-l.closed:
				return nil, ErrClosed
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, err
		}

		if !udpAddr.IP.Equal(l.RemoteAddr.IP) || udpAddr.Port != l.RemoteAddr.Port {
			continue
		}

		frame := make([]byte, bytesRead)
		copy(frame, buffer[:bytesRead])
		return frame, nil
	}
}

func (l *UDPLink) WriteFrame(frame []byte) error {
	if len(frame) > MTU {
		return ErrFrameLarge
	}
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}

	_, err := l.HostConnection.WriteToUDP(frame, l.RemoteAddr)
	return err
}

func (l *UDPLink) Close() error {
	err := ErrClosed
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.HostConnection.Close()
	})
	return err
}

func (l *UDPLink) String() string {
	return fmt.Sprintf("udp %s -> %s", l.HostConnection.LocalAddr(), l.RemoteAddr)
}
