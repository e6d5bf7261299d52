package peers

import (
	"sort"
	"sync"
)

// MaxPeers bounds the number of addresses kept in a Peers book. Addresses
// received beyond it are ignored.
const MaxPeers = 4096

// PeerStore provides access to a persistent list of addresses.
type PeerStore interface {
	Peers() ([]string, error)
	SetPeers([]string) error
}

// Peers is a concurrency-safe set of valid addresses, backed by a PeerStore.
type Peers struct {
	sync.RWMutex
	Sorted []string
	byAddr map[string]struct{}
	store  PeerStore
}

/* Constructors */

// NewPeers loads the addresses of store. Invalid entries are skipped.
func NewPeers(store PeerStore) (*Peers, error) {
	p := &Peers{
		byAddr: make(map[string]struct{}),
		store:  store,
	}

	addrs, err := store.Peers()
	if err != nil {
		return nil, err
	}

	for _, a := range addrs {
		p.addPeerRaw(a)
	}

	p.internalSort()

	return p, nil
}

/* Add Methods */

// addPeerRaw adds an address without sorting the set. It is not protected
// by the mutex.
func (p *Peers) addPeerRaw(addr string) bool {
	norm, err := ParseAddress(addr)
	if err != nil {
		return false
	}
	if _, ok := p.byAddr[norm]; ok {
		return false
	}
	if len(p.byAddr) >= MaxPeers {
		return false
	}
	p.byAddr[norm] = struct{}{}
	return true
}

// AddPeers adds the valid addresses among addrs and persists the book if any
// of them was new. It returns the number of addresses added.
func (p *Peers) AddPeers(addrs ...string) (int, error) {
	p.Lock()
	defer p.Unlock()

	added := 0
	for _, a := range addrs {
		if p.addPeerRaw(a) {
			added++
		}
	}

	if added == 0 {
		return 0, nil
	}

	p.internalSort()

	return added, p.store.SetPeers(p.Sorted)
}

func (p *Peers) internalSort() {
	res := make([]string, 0, len(p.byAddr))

	for a := range p.byAddr {
		res = append(res, a)
	}

	sort.Strings(res)

	p.Sorted = res
}

/* Remove Methods */

// RemovePeer deletes an address and persists the book.
func (p *Peers) RemovePeer(addr string) error {
	p.Lock()
	defer p.Unlock()

	if _, ok := p.byAddr[addr]; !ok {
		return nil
	}

	delete(p.byAddr, addr)

	p.internalSort()

	return p.store.SetPeers(p.Sorted)
}

/* ToSlice Methods */

// ToAddrSlice returns a copy of the sorted addresses.
func (p *Peers) ToAddrSlice() []string {
	p.RLock()
	defer p.RUnlock()

	return append([]string(nil), p.Sorted...)
}

/* Utilities */

// Has reports whether addr is in the book.
func (p *Peers) Has(addr string) bool {
	p.RLock()
	defer p.RUnlock()

	_, ok := p.byAddr[addr]
	return ok
}

// Len ...
func (p *Peers) Len() int {
	p.RLock()
	defer p.RUnlock()

	return len(p.byAddr)
}
