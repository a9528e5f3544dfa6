package ring

import (
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultVNodes is the number of virtual nodes per peer.
const DefaultVNodes = 128

// vnode represents a virtual node on the ring.
type vnode struct {
	hash uint64
	addr string
}

// Ring implements consistent hashing with virtual nodes over peer addresses.
type Ring struct {
	mu            sync.RWMutex
	vnodesPerPeer int
	vnodes        []vnode
	peers         []string // insertion order
}

// New creates a ring holding addrs. Duplicate and empty addresses are dropped.
func New(vnodesPerPeer int, addrs ...string) *Ring {
	if vnodesPerPeer <= 0 {
		vnodesPerPeer = DefaultVNodes
	}
	r := &Ring{vnodesPerPeer: vnodesPerPeer}
	r.SetPeers(addrs)
	return r
}

// SetPeers rebuilds the ring with the given peers.
// Same peers produce the same ring regardless of order.
func (r *Ring) SetPeers(addrs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers = make([]string, 0, len(addrs))
	r.vnodes = make([]vnode, 0, len(addrs)*r.vnodesPerPeer)

	for _, addr := range addrs {
		if addr == "" || slices.Contains(r.peers, addr) {
			continue
		}
		r.peers = append(r.peers, addr)
		r.vnodes = append(r.vnodes, r.vnodesFor(addr)...)
	}

	r.sortVNodes()
}

// Add adds a peer to the ring.
func (r *Ring) Add(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if addr == "" || slices.Contains(r.peers, addr) {
		return
	}
	r.peers = append(r.peers, addr)
	r.vnodes = append(r.vnodes, r.vnodesFor(addr)...)
	r.sortVNodes()
}

// Remove removes a peer from the ring.
func (r *Ring) Remove(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.Index(r.peers, addr)
	if idx < 0 {
		return
	}
	r.peers = slices.Delete(r.peers, idx, idx+1)

	kept := make([]vnode, 0, len(r.vnodes))
	for _, v := range r.vnodes {
		if v.addr != addr {
			kept = append(kept, v)
		}
	}
	r.vnodes = kept
}

// Owner returns the peer responsible for key, or false if the ring is empty.
func (r *Ring) Owner(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.vnodes) == 0 {
		return "", false
	}
	return r.vnodes[r.search(key)].addr, true
}

// Owners returns the first k distinct peers for key, starting with Owner.
func (r *Ring) Owners(key string, k int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.vnodes) == 0 || k <= 0 {
		return []string{}
	}

	idx := r.search(key)
	result := make([]string, 0, min(k, len(r.peers)))

	// Walk forward from the owner
	for i := 0; i < len(r.vnodes) && len(result) < k; i++ {
		addr := r.vnodes[(idx+i)%len(r.vnodes)].addr
		if !slices.Contains(result, addr) {
			result = append(result, addr)
		}
	}
	return result
}

// Peers returns the peers in insertion order.
func (r *Ring) Peers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.peers)
}

// Len returns the number of peers.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// search returns the index of the first vnode at or after key's hash,
// wrapping around. Caller must hold r.mu.
func (r *Ring) search(key string) int {
	h := xxhash.Sum64String(key)
	idx := sort.Search(len(r.vnodes), func(i int) bool {
		return r.vnodes[i].hash >= h
	})
	if idx >= len(r.vnodes) {
		idx = 0
	}
	return idx
}

func (r *Ring) vnodesFor(addr string) []vnode {
	out := make([]vnode, r.vnodesPerPeer)
	for i := range out {
		out[i] = vnode{hash: xxhash.Sum64String(addr + "#" + strconv.Itoa(i)), addr: addr}
	}
	return out
}

// sortVNodes orders vnodes by hash, breaking ties by address so the ring
// does not depend on insertion order. Caller must hold r.mu.
func (r *Ring) sortVNodes() {
	sort.Slice(r.vnodes, func(i, j int) bool {
		if r.vnodes[i].hash == r.vnodes[j].hash {
			return r.vnodes[i].addr < r.vnodes[j].addr
		}
		return r.vnodes[i].hash < r.vnodes[j].hash
	})
}
