package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/marabunet/marabu/src/config"
	"github.com/marabunet/marabu/src/marabu"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a Marabu node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runMarabu,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runMarabu(cmd *cobra.Command, args []string) error {
	engine := marabu.NewMarabu(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		_config.Logger().WithField("signal", sig).Info("Shutting down")
		engine.Shutdown()
	}()

	return engine.Run()
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write logs to this file")
	cmd.Flags().String("agent", _config.Agent, "Agent announced in hello messages")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for marabu node")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for marabu node")
	cmd.Flags().StringSlice("peers", _config.BootstrapPeers, "Bootstrap peers, host:port")
	cmd.Flags().Int("max-outbound", _config.MaxOutbound, "Number of outbound connections to keep")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-message-size", _config.MaxMessageSize, "Longest accepted message, in bytes")
	cmd.Flags().Duration("request-ttl", _config.RequestTTL, "Window for suppressing repeated object requests")
	cmd.Flags().Int("worker-limit", _config.WorkerLimit, "Max number of objects validated concurrently")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")

	// Consensus
	cmd.Flags().String("target", _config.Target, "Proof-of-work target, 64 hex characters")
	cmd.Flags().Uint64("block-reward", _config.BlockReward, "Block reward, in picabu")
	cmd.Flags().Duration("ancestor-timeout", _config.AncestorTimeout, "Wait for the parent of a block")
	cmd.Flags().Duration("transaction-timeout", _config.TransactionTimeout, "Wait for the transactions of a block")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"marabu.DataDir":        _config.DataDir,
		"marabu.BindAddr":       _config.BindAddr,
		"marabu.AdvertiseAddr":  _config.AdvertiseAddr,
		"marabu.BootstrapPeers": _config.BootstrapPeers,
		"marabu.MaxOutbound":    _config.MaxOutbound,
		"marabu.ServiceAddr":    _config.ServiceAddr,
		"marabu.NoService":      _config.NoService,
		"marabu.Store":          _config.Store,
		"marabu.LogLevel":       _config.LogLevel,
		"marabu.TCPTimeout":     _config.TCPTimeout,
		"marabu.Target":         _config.Target,
		"marabu.BlockReward":    _config.BlockReward,
	}

	if _config.Store {
		logFields["marabu.DatabaseDir"] = _config.DatabaseDir
	}

	if f := viper.ConfigFileUsed(); f != "" {
		logFields["ConfigFile"] = f
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/marabu.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigFile) // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir)          // search root directory

	// If a config file is found, read it in. Nothing is logged before the
	// second unmarshal, which may still change the log level and log file.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
