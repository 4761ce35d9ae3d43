package ip

import (
	"go.uber.org/atomic"
)

// Stats are updated from the packet path and both RIP timers without locks.
type Stats struct {
	FramesReceived atomic.Uint64
	ChecksumErrors atomic.Uint64
	Dropped        atomic.Uint64
	Forwarded      atomic.Uint64
	DeliveredLocal atomic.Uint64
	ICMPSent       atomic.Uint64

	RIPReceived    atomic.Uint64
	RIPSent        atomic.Uint64
	RoutesLearned  atomic.Uint64
	RoutesReplaced atomic.Uint64
	RoutesExpired  atomic.Uint64
}

type Counter struct {
	Name  string
	Value uint64
}

func (s *Stats) Counters() []Counter {
	return []Counter{
		{"frames received", s.FramesReceived.Load()},
		{"checksum errors", s.ChecksumErrors.Load()},
		{"dropped", s.Dropped.Load()},
		{"forwarded", s.Forwarded.Load()},
		{"delivered locally", s.DeliveredLocal.Load()},
		{"icmp sent", s.ICMPSent.Load()},
		{"rip received", s.RIPReceived.Load()},
		{"rip sent", s.RIPSent.Load()},
		{"routes learned", s.RoutesLearned.Load()},
		{"routes replaced", s.RoutesReplaced.Load()},
		{"routes expired", s.RoutesExpired.Load()},
	}
}
