// Package node implements the lifecycle of a puffsd node.
//
// A Node owns a blockchain, the protocol service serving puffs (and les when
// light serving is enabled) and a transport. Open loads the node key, the chain
// and the service and creates the transport. Start runs the transport listener,
// hands every accepted peer to the service, and dials the configured
// bootnodes. Stop closes the transport, disconnects every peer and closes the
// chain.
//
// Open, Start and Stop are idempotent: a call that finds nothing to do returns
// false. Stop is final; Open and Start return ErrStopped afterwards.
package node
