/*
Package protocol implements the versioned sub-protocols a puffsd node speaks to
its peers, and the machinery binding them to a connection.

A Protocol describes one sub-protocol: its name, the versions it supports, the
Catalog of messages it defines and how its status handshake is encoded. Two
variants exist:

	puffs  full block synchronisation (versions 63 and 62)
	les    light client serving (versions 2 and 1)

Bind attaches a Protocol to one peer connection, represented by a Sender. It
exchanges status messages, negotiates the highest common version and then runs
a read loop that decodes incoming frames. Frames answering an outstanding
Request are routed back to the caller; every other frame is published on the
binding's Messages channel.

Requests are correlated in one of two ways. les messages carry a request id,
allocated from a counter owned by the binding. puffs messages carry none, so a
binding allows a single outstanding request per response code and rejects a
second one with DuplicateOutstandingRequest.
*/
package protocol
