package node

import (
	"testing"
	"time"

	"github.com/marabunet/marabu/src/common"
	"github.com/marabunet/marabu/src/version"
	"github.com/sirupsen/logrus"
)

// Config contains the parameters of a Node.
type Config struct {
	// Agent is announced to peers in the hello message.
	Agent string

	// MaxOutbound is the number of known peers the node tries to stay
	// connected to.
	MaxOutbound int

	// RequestTTL is the window during which repeated getobject requests for
	// the same object are suppressed.
	RequestTTL time.Duration

	// WorkerLimit bounds the number of objects processed concurrently.
	WorkerLimit int

	Logger *logrus.Logger
}

// NewConfig ...
func NewConfig(agent string,
	maxOutbound int,
	requestTTL time.Duration,
	workerLimit int,
	logger *logrus.Logger) *Config {

	return &Config{
		Agent:       agent,
		MaxOutbound: maxOutbound,
		RequestTTL:  requestTTL,
		WorkerLimit: workerLimit,
		Logger:      logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		Agent:       version.Agent(),
		MaxOutbound: 8,
		RequestTTL:  2 * time.Second,
		WorkerLimit: DefaultWorkerLimit,
		Logger:      logger,
	}
}

// TestConfig returns the default configuration with a logger writing through
// t.Log.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.Logger = common.NewTestLogger(t, logrus.DebugLevel)
	return config
}
