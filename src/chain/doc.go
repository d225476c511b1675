/*
Package chain implements the blockchain collaborator the wire protocols serve
from.

Blockchain keeps a canonical chain of blocks on top of a Store, tracks the head
by total difficulty and answers the header and block queries issued by remote
peers. Two stores are provided: InmemStore, which keeps everything in maps, and
BadgerStore, which persists blocks in a Badger database.

Reads are safe for concurrent use; every peer task queries the same Blockchain.
*/
package chain
