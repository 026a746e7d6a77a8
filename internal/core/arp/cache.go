package arp

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"firestige.xyz/tapstack/internal/core"
)

// UpdateResult describes what a Cache.Update did.
type UpdateResult int

const (
	// Unchanged means the binding was already present with the same MAC.
	Unchanged UpdateResult = iota
	// Inserted means no binding existed for the address.
	Inserted
	// Superseded means the address was bound to a different MAC, which was replaced.
	Superseded
)

func (r UpdateResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Superseded:
		return "superseded"
	}
	return "unchanged"
}

// Entry is a snapshot of one cache binding.
type Entry struct {
	IP      netip.Addr
	MAC     core.MAC
	Static  bool
	Expires time.Time // zero when the entry never expires
}

// Cache maps IPv4 addresses to hardware addresses. At most one MAC is bound
// to an address at any time and the last write wins.
//
// Entries expire after the configured TTL; a TTL of zero keeps them forever.
// Static entries never expire. Cache is safe for concurrent use.
type Cache struct {
	// mu serializes read-modify-write sequences; the store has its own lock
	// for plain reads.
	mu     sync.Mutex
	store  *gocache.Cache
	ttl    time.Duration
	static map[netip.Addr]struct{}
}

// NewCache creates an empty cache. A non-positive ttl disables expiry.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		return &Cache{
			store:  gocache.New(gocache.NoExpiration, 0),
			ttl:    gocache.NoExpiration,
			static: make(map[netip.Addr]struct{}),
		}
	}
	return &Cache{
		store:  gocache.New(ttl, ttl),
		ttl:    ttl,
		static: make(map[netip.Addr]struct{}),
	}
}

// AddStatic binds ip to mac with no expiry, replacing any learned binding.
// Later merges for ip still overwrite the MAC; the binding just never expires.
func (c *Cache) AddStatic(ip netip.Addr, mac core.MAC) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.static[ip] = struct{}{}
	c.store.Set(ip.String(), mac, gocache.NoExpiration)
}

// Lookup returns the MAC bound to ip, if any. Expired entries are reported absent.
func (c *Cache) Lookup(ip netip.Addr) (core.MAC, bool) {
	v, ok := c.store.Get(ip.String())
	if !ok {
		return core.MAC{}, false
	}
	return v.(core.MAC), true
}

// Update merges the binding ip -> mac.
func (c *Cache) Update(ip netip.Addr, mac core.MAC) UpdateResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ip.String()
	ttl := c.ttl
	if _, ok := c.static[ip]; ok {
		ttl = gocache.NoExpiration
	}

	prev, ok := c.store.Get(key)
	c.store.Set(key, mac, ttl)
	switch {
	case !ok:
		return Inserted
	case prev.(core.MAC) != mac:
		return Superseded
	default:
		return Unchanged
	}
}

// Contains reports whether ip has a live binding.
func (c *Cache) Contains(ip netip.Addr) bool {
	_, ok := c.Lookup(ip)
	return ok
}

// Len returns the number of stored bindings without taking a snapshot.
// Expired bindings count until the janitor removes them.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// Entries returns a snapshot of the live bindings ordered by address.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := c.store.Items()
	entries := make([]Entry, 0, len(items))
	for key, item := range items {
		ip, err := netip.ParseAddr(key)
		if err != nil {
			continue
		}
		e := Entry{IP: ip, MAC: item.Object.(core.MAC)}
		if item.Expiration > 0 {
			e.Expires = time.Unix(0, item.Expiration)
		}
		_, e.Static = c.static[ip]
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].IP.Less(entries[j].IP) })
	return entries
}
