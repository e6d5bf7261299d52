package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/marabunet/marabu/src/chain"
	"github.com/marabunet/marabu/src/common"
	"github.com/marabunet/marabu/src/net"
	"github.com/marabunet/marabu/src/node"
	"github.com/marabunet/marabu/src/version"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultConfigFile is the name, without extension, of the optional
	// configuration file in the data directory.
	DefaultConfigFile = "marabu"
)

// Default configuration values.
const (
	DefaultLogLevel           = "debug"
	DefaultBindAddr           = "0.0.0.0:18018"
	DefaultServiceAddr        = "127.0.0.1:8018"
	DefaultTCPTimeout         = 1000 * time.Millisecond
	DefaultMaxOutbound        = 8
	DefaultRequestTTL         = 2 * time.Second
	DefaultStore              = false
	DefaultAncestorTimeout    = chain.DefaultAncestorTimeout
	DefaultTransactionTimeout = chain.DefaultTransactionTimeout
	DefaultTarget             = chain.ProductionTarget
	DefaultBlockReward        = chain.DefaultBlockReward
	DefaultMaxMessageSize     = net.DefaultMaxMessageSize
	DefaultWorkerLimit        = node.DefaultWorkerLimit
)

// Config contains all the configuration properties of a Marabu node.
type Config struct {
	// DataDir is the top-level directory containing the configuration file,
	// the peer book and the database.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log line.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node accepts peer
	// connections.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is the address announced to other nodes in peers
	// messages. It defaults to BindAddr when that is routable.
	AdvertiseAddr string `mapstructure:"advertise"`

	// BootstrapPeers are added to the peer book at startup.
	BootstrapPeers []string `mapstructure:"peers"`

	// MaxOutbound is the number of outbound connections the node tries to
	// keep.
	MaxOutbound int `mapstructure:"max-outbound"`

	// NoService disables the HTTP status service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP status service.
	ServiceAddr string `mapstructure:"service-listen"`

	// TCPTimeout is the write deadline of peer connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// MaxMessageSize is the longest accepted line, in bytes. A peer sending a
	// longer one is disconnected.
	MaxMessageSize int `mapstructure:"max-message-size"`

	// RequestTTL suppresses repeated getobject requests for the same object.
	RequestTTL time.Duration `mapstructure:"request-ttl"`

	// WorkerLimit bounds the number of objects validated concurrently.
	WorkerLimit int `mapstructure:"worker-limit"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// AncestorTimeout bounds the wait for the parent of a block.
	AncestorTimeout time.Duration `mapstructure:"ancestor-timeout"`

	// TransactionTimeout bounds the wait for the transactions of a block.
	TransactionTimeout time.Duration `mapstructure:"transaction-timeout"`

	// Target is the proof-of-work target, as 64 hex characters.
	Target string `mapstructure:"target"`

	// BlockReward is the subsidy of a coinbase, in picabu.
	BlockReward uint64 `mapstructure:"block-reward"`

	// Agent is the name announced in hello messages.
	Agent string `mapstructure:"agent"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		BindAddr:           DefaultBindAddr,
		ServiceAddr:        DefaultServiceAddr,
		MaxOutbound:        DefaultMaxOutbound,
		TCPTimeout:         DefaultTCPTimeout,
		MaxMessageSize:     DefaultMaxMessageSize,
		RequestTTL:         DefaultRequestTTL,
		WorkerLimit:        DefaultWorkerLimit,
		Store:              DefaultStore,
		DatabaseDir:        DefaultDatabaseDir(),
		AncestorTimeout:    DefaultAncestorTimeout,
		TransactionTimeout: DefaultTransactionTimeout,
		Target:             DefaultTarget,
		BlockReward:        DefaultBlockReward,
		Agent:              version.Agent(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests. It listens on a random loopback port, does not
// serve HTTP and uses the debug target.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.BindAddr = "127.0.0.1:0"
	config.NoService = true
	config.Target = chain.DebugTarget
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level Marabu directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// ChainConfig returns the consensus parameters.
func (c *Config) ChainConfig() chain.Config {
	return chain.Config{
		Target:             c.Target,
		BlockReward:        c.BlockReward,
		AncestorTimeout:    c.AncestorTimeout,
		TransactionTimeout: c.TransactionTimeout,
	}
}

// NodeConfig returns the parameters of the gossip node, sharing this
// config's logger.
func (c *Config) NodeConfig() *node.Config {
	return node.NewConfig(
		c.Agent,
		c.MaxOutbound,
		c.RequestTTL,
		c.WorkerLimit,
		c.baseLogger(),
	)
}

// Logger returns a formatted logrus Entry, with prefix set to "marabu".
func (c *Config) Logger() *logrus.Entry {
	return c.baseLogger().WithField("prefix", "marabu")
}

func (c *Config) baseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}
			for _, l := range logrus.AllLevels {
				pathMap[l] = c.LogFile
			}
			c.logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.TextFormatter{}))
		}
	}
	return c.logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level Marabu config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Marabu")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Marabu")
		} else {
			return filepath.Join(home, ".marabu")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
