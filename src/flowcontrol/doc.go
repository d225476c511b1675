/*
Package flowcontrol implements the credit based admission control used when
serving light clients.

Every served peer owns a buffer of tokens capped at the buffer limit (BL). The
buffer recharges at the max recharge rate (MRR, tokens per millisecond) and each
request is priced from a cost table as base + perUnit*quantity. A request is
admitted when the recharged buffer covers its cost; the cost is then debited
and the remaining buffer value reported back to the client. A request that
does not fit is refused with a negative value and the buffer is left at its
recharged value.

The client side of the scheme tracks the buffer values reported by the servers
it talks to, so that it can size its requests to what a server will accept.
*/
package flowcontrol
