package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	cm "github.com/marabunet/marabu/src/common"
	"github.com/sirupsen/logrus"
)

const objectCacheSize = 4096

// Gossiper asks connected peers for objects this node is missing.
type Gossiper interface {
	RequestObject(id string)
}

// State is a snapshot of the chain tip and the mempool.
type State struct {
	Tip         string
	Height      int
	Mempool     []string
	MempoolUTXO UTXOSet
}

// Chain validates transactions and blocks, keeps them in a Store along with
// the UTXO set and height of every block, and maintains the best tip and the
// mempool.
//
// A single mutex guards the tip, the mempool and every write to the store.
// It is never held while waiting for missing dependencies; validators check
// object existence again after taking it, which makes concurrent deliveries of
// the same object idempotent.
type Chain struct {
	conf   Config
	store  Store
	gossip Gossiper
	logger *logrus.Entry

	arrivals *arrivals
	objects  *ttlcache.Cache[string, *Object]

	mu      sync.Mutex
	tip     string
	height  int
	mempool *Mempool
}

// NewChain ...
func NewChain(conf Config, store Store, gossip Gossiper, logger *logrus.Entry) *Chain {
	initPrometheusMetrics()

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Chain{
		conf:     conf,
		store:    store,
		gossip:   gossip,
		logger:   logger,
		arrivals: newArrivals(),
		objects: ttlcache.New[string, *Object](
			ttlcache.WithCapacity[string, *Object](objectCacheSize),
			ttlcache.WithDisableTouchOnHit[string, *Object](),
		),
		tip:     GenesisID,
		mempool: NewMempool(NewUTXOSet()),
	}
}

// Bootstrap stores the genesis block if needed and resumes from the tip
// recorded in the store. The mempool starts empty.
func (c *Chain) Bootstrap() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	genesis, err := ParseObject([]byte(GenesisJSON))
	if err != nil {
		return fmt.Errorf("parsing genesis: %w", err)
	}
	if genesis.ID != GenesisID {
		return fmt.Errorf("genesis hashes to %s, expected %s", genesis.ID, GenesisID)
	}

	if _, err := c.putObject(genesis); err != nil {
		return err
	}

	tip, err := c.store.GetTip()
	if cm.IsStore(err, cm.KeyNotFound) {
		tip = GenesisID
		err = c.store.PutTip(tip)
	}
	if err != nil {
		return err
	}

	height, err := c.heightOf(tip)
	if err != nil {
		return err
	}
	utxo, err := c.utxoOf(tip)
	if err != nil {
		return err
	}

	c.tip = tip
	c.height = height
	c.mempool = NewMempool(utxo)

	prometheusChainTipHeight.Set(float64(height))
	prometheusMempoolSize.Set(0)

	c.logger.WithFields(logrus.Fields{
		"tip":    tip,
		"height": height,
	}).Info("Chain bootstrapped")

	return nil
}

// State returns a copy of the current tip and mempool.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Tip:         c.tip,
		Height:      c.height,
		Mempool:     c.mempool.TxIDs(),
		MempoolUTXO: c.mempool.UTXO(),
	}
}

// Tip returns the current tip and its height.
func (c *Chain) Tip() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip, c.height
}

// HasObject reports whether id is a stored, validated object.
func (c *Chain) HasObject(id string) (bool, error) {
	return c.store.HasObject(id)
}

// GetObject returns a stored object.
func (c *Chain) GetObject(id string) (*Object, error) {
	return c.loadObject(id)
}

// Height returns the height of a stored block.
func (c *Chain) Height(blockID string) (int, error) {
	return c.heightOf(blockID)
}

// UTXO returns the UTXO set of a stored block.
func (c *Chain) UTXO(blockID string) (UTXOSet, error) {
	return c.utxoOf(blockID)
}

// ReceiveObject validates obj and, if it is valid and new, stores it and
// applies its effects to the tip and the mempool. It reports whether peers
// should be told about the object. Validation failures are ProtocolErrors;
// any other error comes from the store.
func (c *Chain) ReceiveObject(ctx context.Context, obj *Object) (bool, error) {
	var (
		announce bool
		err      error
	)

	switch obj.Kind {
	case PaymentKind:
		announce, err = c.receivePayment(obj)
	case CoinbaseKind:
		announce, err = c.receiveCoinbase(obj)
	case BlockKind:
		start := time.Now()
		announce, err = c.receiveBlock(ctx, obj)
		prometheusBlockValidation.Observe(time.Since(start).Seconds())
	default:
		err = NewProtocolError(InvalidFormat, "unknown object kind")
	}

	outcome := "ignored"
	if perr, ok := AsProtocolError(err); ok {
		outcome = string(perr.Kind)
	} else if err != nil {
		outcome = "error"
	} else if announce {
		outcome = "accepted"
	}
	prometheusObjectsReceived.WithLabelValues(obj.Kind.String(), outcome).Inc()

	return announce, err
}

// OfferTransaction re-attempts mempool admission of a stored payment
// transaction. It reports whether the transaction was admitted.
func (c *Chain) OfferTransaction(txid string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok, err := c.store.HasObject(txid)
	if err != nil || !ok {
		return false, err
	}

	obj, err := c.loadObject(txid)
	if err != nil {
		return false, err
	}
	if obj.Kind != PaymentKind {
		return false, nil
	}

	return c.admit(obj), nil
}

// AdoptChainTip makes a stored block the tip if it is higher than the current
// one. It reports whether the tip changed.
func (c *Chain) AdoptChainTip(blockID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok, err := c.store.HasObject(blockID)
	if err != nil || !ok {
		return false, err
	}

	obj, err := c.loadObject(blockID)
	if err != nil {
		return false, err
	}
	if obj.Kind != BlockKind {
		return false, NewProtocolError(InvalidFormat, "chaintip %s is not a block", blockID)
	}

	height, err := c.heightOf(blockID)
	if err != nil {
		return false, err
	}
	if height <= c.height {
		return false, nil
	}

	utxo, err := c.utxoOf(blockID)
	if err != nil {
		return false, err
	}

	if err := c.adoptTip(blockID, height, utxo, obj.Block); err != nil {
		return false, err
	}
	return true, nil
}

/*******************************************************************************
Transactions
*******************************************************************************/

func (c *Chain) receivePayment(obj *Object) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err := c.store.HasObject(obj.ID)
	if err != nil {
		return false, err
	}
	if exists {
		return c.admit(obj), nil
	}

	if err := verifyTransaction(obj, c.store.HasObject, c.loadObject); err != nil {
		return false, err
	}

	if _, err := c.putObject(obj); err != nil {
		return false, err
	}

	admitted := c.admit(obj)
	if !admitted {
		c.logger.WithField("txid", obj.ID).Debug("Stored transaction conflicts with mempool")
	}
	return admitted, nil
}

func (c *Chain) receiveCoinbase(obj *Object) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.putObject(obj)
}

func (c *Chain) admit(obj *Object) bool {
	if !c.mempool.Admit(obj.ID, obj.Payment) {
		return false
	}
	prometheusMempoolSize.Set(float64(c.mempool.Len()))
	c.logger.WithFields(logrus.Fields{
		"txid":    obj.ID,
		"mempool": c.mempool.Len(),
	}).Debug("Transaction added to mempool")
	return true
}

/*******************************************************************************
Store helpers
*******************************************************************************/

// putObject stores obj and wakes up anything waiting for it.
func (c *Chain) putObject(obj *Object) (bool, error) {
	inserted, err := c.store.PutObject(obj.ID, obj.Canonical)
	if err != nil {
		return false, err
	}
	if inserted {
		c.objectStored(obj)
	}
	return inserted, nil
}

// objectStored caches a newly stored object and wakes up its waiters.
func (c *Chain) objectStored(obj *Object) {
	c.cacheObject(obj)
	c.arrivals.notify(obj.ID)
}

func (c *Chain) loadObject(id string) (*Object, error) {
	if item := c.objects.Get(id); item != nil {
		return item.Value(), nil
	}

	raw, err := c.store.GetObject(id)
	if err != nil {
		return nil, err
	}

	obj, err := ParseObject(raw)
	if err != nil {
		return nil, fmt.Errorf("stored object %s does not parse: %w", id, err)
	}

	c.cacheObject(obj)
	return obj, nil
}

func (c *Chain) cacheObject(obj *Object) {
	c.objects.Set(obj.ID, obj, ttlcache.NoTTL)
	prometheusObjectCacheItems.Set(float64(c.objects.Len()))
}

func (c *Chain) heightOf(blockID string) (int, error) {
	if blockID == GenesisID {
		return 0, nil
	}
	return c.store.GetHeight(blockID)
}

func (c *Chain) utxoOf(blockID string) (UTXOSet, error) {
	if blockID == GenesisID {
		return NewUTXOSet(), nil
	}
	return c.store.GetUTXO(blockID)
}
