package ip

import (
	"errors"
	"net"
	"sync"

	"vrouter/pkg/link"
)

var ErrInterfaceDown = errors.New("interface is down")

// Interface is one of the router's attached ports. Its link carries whole
// ethernet frames to whatever sits on the other side.
type Interface struct {
	Name      string
	IPAddress uint32 // this is us
	Mask      uint32
	MAC       net.HardwareAddr

	Link link.Link

	Stopped     bool
	StoppedLock sync.Mutex
}

func NewInterface(name string, ip net.IP, mask net.IPMask, mac net.HardwareAddr, l link.Link) *Interface {
	return &Interface{
		Name:      name,
		IPAddress: IPToNum(ip),
		Mask:      IPToNum(net.IP(mask)),
		MAC:       mac,
		Link:      l,
	}
}

// Network is the interface's own subnet number.
func (i *Interface) Network() uint32 {
	return i.IPAddress & i.Mask
}

/*
	hand a frame to the link layer, unless the interface has been downed
*/
func (i *Interface) Send(frame []byte) error {
	if !i.IsUp() {
		return ErrInterfaceDown
	}
	return i.Link.WriteFrame(frame)
}

func (i *Interface) IsUp() bool {
	i.StoppedLock.Lock()
	defer i.StoppedLock.Unlock()
	return !i.Stopped
}

/*
	enable/disable link interface at runtime
*/
func (i *Interface) Enable() {
	i.StoppedLock.Lock()
	defer i.StoppedLock.Unlock()
	i.Stopped = false
}

func (i *Interface) Disable() {
	i.StoppedLock.Lock()
	defer i.StoppedLock.Unlock()
	i.Stopped = true
}
