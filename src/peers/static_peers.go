package peers

import "sync"

// StaticPeers is used to provide a static list of peers. Nothing is written
// to disk.
type StaticPeers struct {
	StaticPeers []string
	l           sync.Mutex
}

// Peers implements the PeerStore interface.
func (s *StaticPeers) Peers() ([]string, error) {
	s.l.Lock()
	peers := append([]string(nil), s.StaticPeers...)
	s.l.Unlock()
	return peers, nil
}

// SetPeers implements the PeerStore interface.
func (s *StaticPeers) SetPeers(p []string) error {
	s.l.Lock()
	s.StaticPeers = append([]string(nil), p...)
	s.l.Unlock()
	return nil
}
