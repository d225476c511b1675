package config

import (
	"crypto/ecdsa"
	"math/big"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/puffscoin/puffsd/src/chain"
	"github.com/puffscoin/puffsd/src/common"
	"github.com/puffscoin/puffsd/src/flowcontrol"
	"github.com/puffscoin/puffsd/src/peer"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "node_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "chaindata"
)

// Default configuration values.
const (
	DefaultLogLevel            = "debug"
	DefaultBindAddr            = "127.0.0.1:30303"
	DefaultMaxPeers            = peer.DefaultMaxPeers
	DefaultNetworkID           = chain.DefaultNetworkID
	DefaultLightServ           = false
	DefaultHandshakeTimeout    = 5000 * time.Millisecond
	DefaultRequestTimeout      = 5000 * time.Millisecond
	DefaultBanDuration         = 300000 * time.Millisecond
	DefaultFlowBufferLimit     = flowcontrol.DefaultBufferLimit
	DefaultFlowMaxRechargeRate = flowcontrol.DefaultMaxRechargeRate
	DefaultStore               = false
	DefaultCacheSize           = 10000
)

// Config contains all the configuration properties of a puffsd node.
type Config struct {
	// DataDir is the top-level directory containing puffsd configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of the log output.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node accepts connections
	// from other nodes.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// Bootnodes are dialed when the node starts.
	Bootnodes []string `mapstructure:"bootnodes"`

	// MaxPeers is the maximum number of connected peers.
	MaxPeers int `mapstructure:"max-peers"`

	// NetworkID identifies the chain the node belongs to. It is announced in
	// the status handshake of every protocol.
	NetworkID uint64 `mapstructure:"network-id"`

	// LightServ enables serving the les protocol to light clients.
	LightServ bool `mapstructure:"lightserv"`

	// HandshakeTimeout bounds the hello exchange of new connections.
	HandshakeTimeout time.Duration `mapstructure:"handshake-timeout"`

	// RequestTimeout bounds the status handshake of each protocol and the wait
	// for a response to a request.
	RequestTimeout time.Duration `mapstructure:"timeout"`

	// BanDuration is how long a peer violating flow control is refused.
	BanDuration time.Duration `mapstructure:"ban-duration"`

	// FlowBufferLimit is the flow control buffer (BL) granted to each light
	// client.
	FlowBufferLimit uint64 `mapstructure:"flow-buffer-limit"`

	// FlowMaxRechargeRate is the number of buffer units recharged per
	// millisecond (MRR).
	FlowMaxRechargeRate uint64 `mapstructure:"flow-recharge-rate"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of headers in the in-memory cache.
	CacheSize int `mapstructure:"cache-size"`

	// Key is the private key of the node.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:             DefaultDataDir(),
		LogLevel:            DefaultLogLevel,
		BindAddr:            DefaultBindAddr,
		MaxPeers:            DefaultMaxPeers,
		NetworkID:           DefaultNetworkID,
		LightServ:           DefaultLightServ,
		HandshakeTimeout:    DefaultHandshakeTimeout,
		RequestTimeout:      DefaultRequestTimeout,
		BanDuration:         DefaultBanDuration,
		FlowBufferLimit:     DefaultFlowBufferLimit,
		FlowMaxRechargeRate: DefaultFlowMaxRechargeRate,
		Store:               DefaultStore,
		DatabaseDir:         DefaultDatabaseDir(),
		CacheSize:           DefaultCacheSize,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level puffsd directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// FlowParams returns the flow control parameters served to light clients.
func (c *Config) FlowParams() flowcontrol.Params {
	params := flowcontrol.DefaultParams()
	if c.FlowBufferLimit > 0 {
		params.BufferLimit = new(big.Int).SetUint64(c.FlowBufferLimit)
	}
	if c.FlowMaxRechargeRate > 0 {
		params.MaxRechargeRate = new(big.Int).SetUint64(c.FlowMaxRechargeRate)
	}
	return params
}

// Logger returns a formatted logrus Entry, with prefix set to "puffsd". When
// LogFile is set, every level is also written to that file.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.AddHook(lfshook.NewHook(lfshook.PathMap{
				logrus.DebugLevel: c.LogFile,
				logrus.InfoLevel:  c.LogFile,
				logrus.WarnLevel:  c.LogFile,
				logrus.ErrorLevel: c.LogFile,
				logrus.FatalLevel: c.LogFile,
				logrus.PanicLevel: c.LogFile,
			}, &logrus.TextFormatter{}))
		}
	}
	return c.logger.WithField("prefix", "puffsd")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level puffsd config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Puffsd")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Puffsd")
		} else {
			return filepath.Join(home, ".puffsd")
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
