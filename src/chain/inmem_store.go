package chain

import (
	"sync"

	cm "github.com/marabunet/marabu/src/common"
)

// InmemStore implements the Store interface with in-memory maps. Nothing
// survives a restart.
type InmemStore struct {
	sync.RWMutex

	objects map[string][]byte
	utxos   map[string]UTXOSet
	heights map[string]int
	tip     string
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		objects: make(map[string][]byte),
		utxos:   make(map[string]UTXOSet),
		heights: make(map[string]int),
	}
}

// HasObject implements the Store interface.
func (s *InmemStore) HasObject(id string) (bool, error) {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.objects[id]
	return ok, nil
}

// GetObject implements the Store interface.
func (s *InmemStore) GetObject(id string) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()
	v, ok := s.objects[id]
	if !ok {
		return nil, cm.NewStoreErr("Object", cm.KeyNotFound, id)
	}
	return append([]byte(nil), v...), nil
}

// PutObject implements the Store interface.
func (s *InmemStore) PutObject(id string, value []byte) (bool, error) {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.objects[id]; ok {
		return false, nil
	}
	s.objects[id] = append([]byte(nil), value...)
	return true, nil
}

// GetUTXO implements the Store interface.
func (s *InmemStore) GetUTXO(blockID string) (UTXOSet, error) {
	s.RLock()
	defer s.RUnlock()
	set, ok := s.utxos[blockID]
	if !ok {
		return nil, cm.NewStoreErr("UTXO", cm.KeyNotFound, blockID)
	}
	return set.Clone(), nil
}

// PutUTXO implements the Store interface.
func (s *InmemStore) PutUTXO(blockID string, set UTXOSet) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.utxos[blockID]; ok {
		return cm.NewStoreErr("UTXO", cm.KeyAlreadyExists, blockID)
	}
	s.utxos[blockID] = set.Clone()
	return nil
}

// GetHeight implements the Store interface.
func (s *InmemStore) GetHeight(blockID string) (int, error) {
	s.RLock()
	defer s.RUnlock()
	h, ok := s.heights[blockID]
	if !ok {
		return 0, cm.NewStoreErr("Height", cm.KeyNotFound, blockID)
	}
	return h, nil
}

// PutHeight implements the Store interface.
func (s *InmemStore) PutHeight(blockID string, height int) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.heights[blockID]; ok {
		return cm.NewStoreErr("Height", cm.KeyAlreadyExists, blockID)
	}
	s.heights[blockID] = height
	return nil
}

// PutBlock implements the Store interface.
func (s *InmemStore) PutBlock(blockID string, value []byte, set UTXOSet, height int) (bool, error) {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.objects[blockID]; ok {
		return false, nil
	}
	s.utxos[blockID] = set.Clone()
	s.heights[blockID] = height
	s.objects[blockID] = append([]byte(nil), value...)
	return true, nil
}

// GetTip implements the Store interface.
func (s *InmemStore) GetTip() (string, error) {
	s.RLock()
	defer s.RUnlock()
	if s.tip == "" {
		return "", cm.NewStoreErr("Tip", cm.KeyNotFound, "tip")
	}
	return s.tip, nil
}

// PutTip implements the Store interface.
func (s *InmemStore) PutTip(blockID string) error {
	s.Lock()
	defer s.Unlock()
	s.tip = blockID
	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
