package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/puffscoin/puffsd/src/node"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a puffsd node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runPuffsd,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runPuffsd(cmd *cobra.Command, args []string) error {
	logger := _config.Puffsd.Logger()

	n := node.NewNode(&_config.Puffsd, nil)

	if _, err := n.Start(); err != nil {
		logger.WithError(err).Error("Cannot start node")
		return err
	}

	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGTERM)
	<-sigintCh

	logger.Info("Received interrupt, stopping node")

	_, err := n.Stop()
	return err
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Puffsd.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Puffsd.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Puffsd.LogFile, "Also write logs to this file")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Puffsd.BindAddr, "Listen IP:Port for puffsd node")
	cmd.Flags().StringP("advertise", "a", _config.Puffsd.AdvertiseAddr, "Advertise IP:Port for puffsd node")
	cmd.Flags().StringSlice("bootnodes", _config.Puffsd.Bootnodes, "Comma separated IP:Port of nodes to dial on start")
	cmd.Flags().Int("max-peers", _config.Puffsd.MaxPeers, "Maximum number of connected peers")
	cmd.Flags().Uint64("network-id", _config.Puffsd.NetworkID, "Network identifier")
	cmd.Flags().Duration("handshake-timeout", _config.Puffsd.HandshakeTimeout, "Connection hello timeout")
	cmd.Flags().DurationP("timeout", "t", _config.Puffsd.RequestTimeout, "Protocol handshake and request timeout")

	// Light serving
	cmd.Flags().Bool("lightserv", _config.Puffsd.LightServ, "Serve the les protocol to light clients")
	cmd.Flags().Duration("ban-duration", _config.Puffsd.BanDuration, "How long flow control violators are banned")
	cmd.Flags().Uint64("flow-buffer-limit", _config.Puffsd.FlowBufferLimit, "Flow control buffer granted to each light client")
	cmd.Flags().Uint64("flow-recharge-rate", _config.Puffsd.FlowMaxRechargeRate, "Flow control buffer recharge per millisecond")

	// Store
	cmd.Flags().Bool("store", _config.Puffsd.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Puffsd.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.Puffsd.CacheSize, "Number of headers in the LRU cache")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Puffsd.SetDataDir(_config.Puffsd.DataDir)

	logFields := logrus.Fields{
		"puffsd.DataDir":          _config.Puffsd.DataDir,
		"puffsd.BindAddr":         _config.Puffsd.BindAddr,
		"puffsd.AdvertiseAddr":    _config.Puffsd.AdvertiseAddr,
		"puffsd.Bootnodes":        _config.Puffsd.Bootnodes,
		"puffsd.MaxPeers":         _config.Puffsd.MaxPeers,
		"puffsd.NetworkID":        _config.Puffsd.NetworkID,
		"puffsd.LightServ":        _config.Puffsd.LightServ,
		"puffsd.HandshakeTimeout": _config.Puffsd.HandshakeTimeout,
		"puffsd.RequestTimeout":   _config.Puffsd.RequestTimeout,
		"puffsd.Store":            _config.Puffsd.Store,
		"puffsd.LogLevel":         _config.Puffsd.LogLevel,
		"puffsd.CacheSize":        _config.Puffsd.CacheSize,
	}

	if _config.Puffsd.LightServ {
		logFields["puffsd.BanDuration"] = _config.Puffsd.BanDuration
		logFields["puffsd.FlowBufferLimit"] = _config.Puffsd.FlowBufferLimit
		logFields["puffsd.FlowMaxRechargeRate"] = _config.Puffsd.FlowMaxRechargeRate
	}

	if _config.Puffsd.Store {
		logFields["puffsd.DatabaseDir"] = _config.Puffsd.DatabaseDir
	}

	_config.Puffsd.Logger().WithFields(logFields).Debug("RUN")

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

	// look for config file in [datadir]/puffsd.toml (.json, .yaml also work)
	viper.SetConfigName("puffsd")               // name of config file (without extension)
	viper.AddConfigPath(_config.Puffsd.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Puffsd.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Puffsd.Logger().Debugf("No config file found in: %s", _config.Puffsd.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
