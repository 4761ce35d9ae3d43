package ip

import (
	"net"
	"sort"
	"sync"
)

type ArpEntry struct {
	IPAddress uint32
	MAC       net.HardwareAddr
}

// ArpCache maps next hop addresses to link addresses. It is filled once at
// startup and only read afterwards.
type ArpCache struct {
	entries map[uint32]net.HardwareAddr
	lock    sync.RWMutex
}

func NewArpCache() *ArpCache {
	return &ArpCache{entries: make(map[uint32]net.HardwareAddr)}
}

func (c *ArpCache) Insert(ip uint32, mac net.HardwareAddr) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entries[ip] = mac
}

func (c *ArpCache) Lookup(ip uint32) (net.HardwareAddr, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	mac, ok := c.entries[ip]
	return mac, ok
}

func (c *ArpCache) Entries() []ArpEntry {
	c.lock.RLock()
	defer c.lock.RUnlock()

	entries := make([]ArpEntry, 0, len(c.entries))
	for ip, mac := range c.entries {
		entries = append(entries, ArpEntry{IPAddress: ip, MAC: mac})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].IPAddress < entries[j].IPAddress })
	return entries
}
