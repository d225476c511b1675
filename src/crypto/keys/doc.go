// Package keys implements the node identity used by puffsd.
//
// A node owns a secp256k1 key-pair. Its node id is the compressed public key
// in hex. Nodes prove ownership of their id when a TCP connection is set up,
// by signing a nonce chosen by the other side.
//
// We chose the secp256k1 curve because it is also used by Bitcoin and Ethereum,
// which means that existing keys can be used to operate a node.
package keys
