package ip

import (
	"math/bits"
	"sync"

	"github.com/google/btree"
)

// Contains a mapping from a (network, mask) pair to the gateway and interface
// packets for that network leave through. Gateway 0 means directly connected.
type RoutingTableEntry struct {
	Network uint32
	Mask    uint32
	Gateway uint32
	Iface   *Interface
}

// NextHop is the address we need a MAC for when sending toward dest.
func (e *RoutingTableEntry) NextHop(dest uint32) uint32 {
	if e.Gateway == 0 {
		return dest
	}
	return e.Gateway
}

func (e *RoutingTableEntry) PrefixLen() int {
	return MaskLen(e.Mask)
}

// MaskLen is the prefix length of a contiguous mask.
func MaskLen(mask uint32) int {
	return bits.OnesCount32(mask)
}

// longest prefixes sort first, so the first covering entry found by an
// ascending walk is the longest match
func routeLess(a, b *RoutingTableEntry) bool {
	if la, lb := a.PrefixLen(), b.PrefixLen(); la != lb {
		return la > lb
	}
	if a.Mask != b.Mask {
		return a.Mask > b.Mask
	}
	return a.Network < b.Network
}

type RoutingTable struct {
	Table     *btree.BTreeG[*RoutingTableEntry]
	TableLock sync.RWMutex
}

func NewRoutingTable() *RoutingTable {
	return &RoutingTable{Table: btree.NewG[*RoutingTableEntry](16, routeLess)}
}

// Insert function --> adds the route, replacing any entry for the same network and mask
func (rt *RoutingTable) Insert(network, mask, gateway uint32, iface *Interface) {
	rt.TableLock.Lock()
	defer rt.TableLock.Unlock()

	rt.Table.ReplaceOrInsert(&RoutingTableEntry{
		Network: network & mask,
		Mask:    mask,
		Gateway: gateway,
		Iface:   iface,
	})
}

// Remove function --> reports whether there was an entry to delete
func (rt *RoutingTable) Remove(network, mask uint32) bool {
	rt.TableLock.Lock()
	defer rt.TableLock.Unlock()

	_, removed := rt.Table.Delete(&RoutingTableEntry{Network: network & mask, Mask: mask})
	return removed
}

// Lookup function --> longest prefix match for dest, nil when nothing covers it
func (rt *RoutingTable) Lookup(dest uint32) *RoutingTableEntry {
	rt.TableLock.RLock()
	defer rt.TableLock.RUnlock()

	var match *RoutingTableEntry
	rt.Table.Ascend(func(entry *RoutingTableEntry) bool {
		if dest&entry.Mask == entry.Network {
			match = entry
			return false
		}
		return true
	})
	return match
}

// Get function --> exact match on network and mask
func (rt *RoutingTable) Get(network, mask uint32) *RoutingTableEntry {
	rt.TableLock.RLock()
	defer rt.TableLock.RUnlock()

	entry, found := rt.Table.Get(&RoutingTableEntry{Network: network & mask, Mask: mask})
	if !found {
		return nil
	}
	return entry
}

func (rt *RoutingTable) Len() int {
	rt.TableLock.RLock()
	defer rt.TableLock.RUnlock()
	return rt.Table.Len()
}

// Entries returns a copy of every route in lookup order.
func (rt *RoutingTable) Entries() []RoutingTableEntry {
	rt.TableLock.RLock()
	defer rt.TableLock.RUnlock()

	entries := make([]RoutingTableEntry, 0, rt.Table.Len())
	rt.Table.Ascend(func(entry *RoutingTableEntry) bool {
		entries = append(entries, *entry)
		return true
	})
	return entries
}
