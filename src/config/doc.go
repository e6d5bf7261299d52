// Package config defines the configuration for a Marabu node.
//
// Regardless of how Marabu is started, directly from Go code or as a standalone
// process from the command line, it uses the Config object defined in this
// package to store and forward configuration options. On top of these
// configuration options, Marabu relies on a data directory, defined by
// Config.DataDir, where it looks for a few additional files:
//
//  marabu.toml // (optional) configuration file, same keys as the command line flags.
//  peers.json // a JSON array of known peer addresses, rewritten as new peers are learned.
//  badger_db // the database directory when persistent storage is enabled.
package config
