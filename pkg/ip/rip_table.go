package ip

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RIPRecord is what we advertise for one network.
type RIPRecord struct {
	Address   uint32
	Mask      uint32
	Metric    uint32
	Updated   time.Time
	Connected bool // our own subnets never expire
}

type ripKey struct {
	address uint32
	mask    uint32
}

type RouteAction int

const (
	RouteLearned RouteAction = iota
	RouteReplaced
)

func (a RouteAction) String() string {
	if a == RouteReplaced {
		return "replaced"
	}
	return "learned"
}

// RouteChange describes one routing table mutation made while learning.
type RouteChange struct {
	Action  RouteAction
	Record  RIPRecord
	Gateway uint32
	Iface   *Interface
}

// RIPTable keeps advertisement records and their routes in step. Every
// operation that touches both takes TableLock first and the routing table's
// lock second, and no path takes them in the other order.
type RIPTable struct {
	records   map[ripKey]*RIPRecord
	routes    *RoutingTable
	TableLock sync.Mutex
}

func NewRIPTable(routes *RoutingTable) *RIPTable {
	return &RIPTable{
		records: make(map[ripKey]*RIPRecord),
		routes:  routes,
	}
}

/*
	install the directly connected route for an interface
	along with its metric 1 record
*/
func (t *RIPTable) AddConnected(iface *Interface, now time.Time) {
	t.TableLock.Lock()
	defer t.TableLock.Unlock()

	key := ripKey{address: iface.Network(), mask: iface.Mask}
	t.routes.Insert(key.address, key.mask, 0, iface)
	t.records[key] = &RIPRecord{
		Address:   key.address,
		Mask:      key.mask,
		Metric:    1,
		Updated:   now,
		Connected: true,
	}
}

/*
	apply a response received on iface from advertiser

	D --> advertised network, C --> advertised metric, C_old --> our metric
	  D unknown                 --> install <D, C+1, advertiser>
	  D known                   --> refresh timestamp
	  D known and C+1 < C_old   --> replace with <D, C+1, advertiser>
*/
func (t *RIPTable) Learn(entries []RIPEntry, advertiser uint32, iface *Interface, now time.Time) []RouteChange {
	t.TableLock.Lock()
	defer t.TableLock.Unlock()

	changes := make([]RouteChange, 0)
	for _, entry := range entries {
		if entry.AddressFamily != RIP_AF_INET || entry.Metric < 1 || entry.Metric >= INFINITY {
			continue
		}

		key := ripKey{address: entry.Address & entry.Mask, mask: entry.Mask}
		if key.address == iface.Network() && key.mask == iface.Mask {
			continue
		}
		metric := entry.Metric + 1

		record, exists := t.records[key]
		if !exists {
			if metric >= INFINITY {
				continue
			}
			record = &RIPRecord{Address: key.address, Mask: key.mask, Metric: metric, Updated: now}
			t.routes.Insert(key.address, key.mask, advertiser, iface)
			t.records[key] = record
			changes = append(changes, RouteChange{Action: RouteLearned, Record: *record, Gateway: advertiser, Iface: iface})
			continue
		}

		if now.After(record.Updated) {
			record.Updated = now
		}
		if metric < record.Metric {
			t.routes.Insert(key.address, key.mask, advertiser, iface)
			record.Metric = metric
			changes = append(changes, RouteChange{Action: RouteReplaced, Record: *record, Gateway: advertiser, Iface: iface})
		}
	}
	return changes
}

/*
	remove every learned record not refreshed within timeout,
	together with its route
*/
func (t *RIPTable) Expire(now time.Time, timeout time.Duration) []RIPRecord {
	t.TableLock.Lock()
	defer t.TableLock.Unlock()

	expired := make([]RIPRecord, 0)
	for key, record := range t.records {
		if record.Connected || now.Sub(record.Updated) <= timeout {
			continue
		}
		t.routes.Remove(key.address, key.mask)
		delete(t.records, key)
		expired = append(expired, *record)
	}
	sortRecords(expired)
	return expired
}

func (t *RIPTable) Get(address, mask uint32) (RIPRecord, bool) {
	t.TableLock.Lock()
	defer t.TableLock.Unlock()

	record, exists := t.records[ripKey{address: address & mask, mask: mask}]
	if !exists {
		return RIPRecord{}, false
	}
	return *record, true
}

// Records returns a sorted copy of the table.
func (t *RIPTable) Records() []RIPRecord {
	t.TableLock.Lock()
	defer t.TableLock.Unlock()

	records := make([]RIPRecord, 0, len(t.records))
	for _, record := range t.records {
		records = append(records, *record)
	}
	sortRecords(records)
	return records
}

// Verify reports the first record with no matching route.
func (t *RIPTable) Verify() error {
	t.TableLock.Lock()
	defer t.TableLock.Unlock()

	for key, record := range t.records {
		if record.Metric >= INFINITY {
			continue
		}
		if t.routes.Get(key.address, key.mask) == nil {
			return fmt.Errorf("rip record %s/%d (metric %d) has no route",
				FormatAddr(key.address), MaskLen(key.mask), record.Metric)
		}
	}
	return nil
}

func (t *RIPTable) entries() []RIPEntry {
	records := t.Records()
	entries := make([]RIPEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, RIPEntry{
			AddressFamily: RIP_AF_INET,
			Address:       record.Address,
			Mask:          record.Mask,
			Metric:        record.Metric,
		})
	}
	return entries
}

func sortRecords(records []RIPRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Address != records[j].Address {
			return records[i].Address < records[j].Address
		}
		return records[i].Mask < records[j].Mask
	})
}
