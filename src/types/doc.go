// Package types defines the chain data exchanged by the puffs and les wire
// protocols: block headers, block bodies and the hash-or-number origin used in
// header queries. Every type encodes to RLP and headers are identified by the
// keccak256 hash of their encoding.
package types
