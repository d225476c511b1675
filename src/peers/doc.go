// Package peers manages lists of known nodes.
//
// A known node is identified by its node id, the compressed public key that
// the node proves ownership of during the connection hello, and the address
// where it listens. Upon starting, a node looks for a peers.json file in its
// data directory and dials every node listed there. Unlike bootnodes, a
// connection to a listed node is dropped when the remote node id does not
// match the one in the file.
package peers
