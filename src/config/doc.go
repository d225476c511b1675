// Package config defines the configuration for a puffsd node.
//
// Regardless of how puffsd is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, puffsd relies on a data directory, defined by
// Config.DataDir, where it expects to find:
//
//  node_key // a plain text file containing the raw private key (cf. puffsd keygen).
//  puffsd.toml // (optional) configuration file read by the command line.
//  chaindata // the badger database, when Store is set.
package config
