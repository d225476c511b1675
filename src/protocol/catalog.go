package protocol

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
)

// StatusCode is the frame code of the status handshake in every protocol. No
// catalog entry may use it.
const StatusCode = 0x00

// MessageEntry describes one message of a protocol. Response is the code of the
// paired response message, or 0 when the message expects none.
type MessageEntry struct {
	Name     string
	Code     uint64
	Response uint64
	Encode   func(args interface{}) ([]byte, error)
	Decode   func(payload []byte) (interface{}, error)
}

// Catalog is the immutable table of messages defined by a protocol. Names and
// codes are unique within a catalog.
type Catalog struct {
	byName map[string]*MessageEntry
	byCode map[uint64]*MessageEntry
	codes  []uint64
}

// NewCatalog builds a catalog from a static table. It panics if the table
// breaks the uniqueness of names or codes, uses the status code, or pairs a
// request with a response code it does not define.
func NewCatalog(entries ...MessageEntry) *Catalog {
	c := &Catalog{
		byName: make(map[string]*MessageEntry, len(entries)),
		byCode: make(map[uint64]*MessageEntry, len(entries)),
	}

	for i := range entries {
		e := &entries[i]
		if e.Code == StatusCode {
			panic(fmt.Sprintf("message %s uses the status code", e.Name))
		}
		if _, ok := c.byName[e.Name]; ok {
			panic(fmt.Sprintf("duplicate message name %s", e.Name))
		}
		if _, ok := c.byCode[e.Code]; ok {
			panic(fmt.Sprintf("duplicate message code %#x", e.Code))
		}
		c.byName[e.Name] = e
		c.byCode[e.Code] = e
		c.codes = append(c.codes, e.Code)
	}

	for _, e := range c.byName {
		if e.Response == 0 {
			continue
		}
		if _, ok := c.byCode[e.Response]; !ok {
			panic(fmt.Sprintf("message %s expects undefined response %#x", e.Name, e.Response))
		}
	}

	sort.Slice(c.codes, func(i, j int) bool { return c.codes[i] < c.codes[j] })

	return c
}

// ByName returns the entry with the given name.
func (c *Catalog) ByName(name string) (*MessageEntry, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// ByCode returns the entry with the given code.
func (c *Catalog) ByCode(code uint64) (*MessageEntry, bool) {
	e, ok := c.byCode[code]
	return e, ok
}

// Entries returns the entries ordered by code.
func (c *Catalog) Entries() []*MessageEntry {
	res := make([]*MessageEntry, len(c.codes))
	for i, code := range c.codes {
		res[i] = c.byCode[code]
	}
	return res
}

// rlpEntry returns a catalog entry whose payload is the RLP encoding of T.
// Encode accepts a T or a *T; Decode yields a T.
func rlpEntry[T any](name string, code, response uint64) MessageEntry {
	return MessageEntry{
		Name:     name,
		Code:     code,
		Response: response,
		Encode: func(args interface{}) ([]byte, error) {
			switch v := args.(type) {
			case T:
				return rlp.EncodeToBytes(&v)
			case *T:
				if v == nil {
					return nil, fmt.Errorf("%s: nil payload", name)
				}
				return rlp.EncodeToBytes(v)
			default:
				var want T
				return nil, fmt.Errorf("%s: payload is %T, want %T", name, args, want)
			}
		},
		Decode: func(payload []byte) (interface{}, error) {
			var v T
			if err := rlp.DecodeBytes(payload, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}
