package observe

import (
	"encoding/binary"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// pidSet shadows the in-kernel PID filter (§4.7) in user space with a
// cuckoo filter: cheap membership checks at the scale of a node's
// resolved task set, with deletion support so removed tasks stop being
// matched (a counting/standard bloom filter cannot delete).
type pidSet struct {
	mu     sync.Mutex
	filter *cuckoo.Filter
}

func newPIDSet(capacity uint) *pidSet {
	return &pidSet{filter: cuckoo.NewFilter(capacity)}
}

func pidKey(pid int) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(pid))
	return b[:]
}

func (s *pidSet) Add(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.InsertUnique(pidKey(pid))
}

func (s *pidSet) Remove(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.Delete(pidKey(pid))
}

func (s *pidSet) Contains(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Lookup(pidKey(pid))
}
