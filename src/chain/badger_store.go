package chain

import (
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger"
	cm "github.com/marabunet/marabu/src/common"
	"github.com/sirupsen/logrus"
)

const (
	objectPrefix = "obj"
	utxoPrefix   = "utxo"
	heightPrefix = "height"
	tipKey       = "meta_tip"
)

// BadgerStore implements the Store interface on top of a Badger database.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		db:   handle,
		path: path,
	}
	return store, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func objectKey(id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", objectPrefix, id))
}

func utxoKey(blockID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", utxoPrefix, blockID))
}

func heightKey(blockID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", heightPrefix, blockID))
}

/*******************************************************************************
Implement the Store interface
*******************************************************************************/

// HasObject implements the Store interface.
func (s *BadgerStore) HasObject(id string) (bool, error) {
	_, err := s.get(objectKey(id))
	if isDBKeyNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetObject implements the Store interface.
func (s *BadgerStore) GetObject(id string) ([]byte, error) {
	v, err := s.get(objectKey(id))
	return v, mapError(err, "Object", id)
}

// PutObject implements the Store interface.
func (s *BadgerStore) PutObject(id string, value []byte) (bool, error) {
	err := s.putOnce(objectKey(id), value)
	if cm.IsStore(err, cm.KeyAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetUTXO implements the Store interface.
func (s *BadgerStore) GetUTXO(blockID string) (UTXOSet, error) {
	v, err := s.get(utxoKey(blockID))
	if err != nil {
		return nil, mapError(err, "UTXO", blockID)
	}
	return UnmarshalUTXOSet(v)
}

// PutUTXO implements the Store interface.
func (s *BadgerStore) PutUTXO(blockID string, set UTXOSet) error {
	v, err := set.Marshal()
	if err != nil {
		return err
	}
	return mapExists(s.putOnce(utxoKey(blockID), v), "UTXO", blockID)
}

// GetHeight implements the Store interface.
func (s *BadgerStore) GetHeight(blockID string) (int, error) {
	v, err := s.get(heightKey(blockID))
	if err != nil {
		return 0, mapError(err, "Height", blockID)
	}
	return strconv.Atoi(string(v))
}

// PutHeight implements the Store interface.
func (s *BadgerStore) PutHeight(blockID string, height int) error {
	v := []byte(strconv.Itoa(height))
	return mapExists(s.putOnce(heightKey(blockID), v), "Height", blockID)
}

// PutBlock implements the Store interface. The three keys are written in one
// transaction, so a crash leaves either all of them or none.
func (s *BadgerStore) PutBlock(blockID string, value []byte, set UTXOSet, height int) (bool, error) {
	utxo, err := set.Marshal()
	if err != nil {
		return false, err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	_, err = tx.Get(objectKey(blockID))
	if err == nil {
		return false, nil
	}
	if !isDBKeyNotFound(err) {
		return false, err
	}

	if err := tx.Set(utxoKey(blockID), utxo); err != nil {
		return false, err
	}
	if err := tx.Set(heightKey(blockID), []byte(strconv.Itoa(height))); err != nil {
		return false, err
	}
	if err := tx.Set(objectKey(blockID), value); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// GetTip implements the Store interface.
func (s *BadgerStore) GetTip() (string, error) {
	v, err := s.get([]byte(tipKey))
	if err != nil {
		return "", mapError(err, "Tip", tipKey)
	}
	return string(v), nil
}

// PutTip implements the Store interface.
func (s *BadgerStore) PutTip(blockID string) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set([]byte(tipKey), []byte(blockID)); err != nil {
		return err
	}
	return tx.Commit()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func (s *BadgerStore) get(key []byte) ([]byte, error) {
	var res []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		res, err = item.ValueCopy(nil)
		return err
	})
	return res, err
}

// putOnce writes key unless it is already present, in which case it returns a
// KeyAlreadyExists StoreErr.
func (s *BadgerStore) putOnce(key []byte, value []byte) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	_, err := tx.Get(key)
	if err == nil {
		return cm.NewStoreErr("Key", cm.KeyAlreadyExists, string(key))
	}
	if !isDBKeyNotFound(err) {
		return err
	}

	if err := tx.Set(key, value); err != nil {
		return err
	}
	return tx.Commit()
}

func isDBKeyNotFound(err error) bool {
	return err != nil && err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}

func mapExists(err error, name, key string) error {
	if cm.IsStore(err, cm.KeyAlreadyExists) {
		return cm.NewStoreErr(name, cm.KeyAlreadyExists, key)
	}
	return err
}
