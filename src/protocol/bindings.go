package protocol

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puffscoin/puffsd/src/types"
)

// PuffsBinding exposes the puffs catalog of a binding as typed calls.
type PuffsBinding struct {
	*BoundProtocol
}

// Status returns the remote puffs status.
func (b PuffsBinding) Status() *PuffsStatus {
	s, _ := b.BoundProtocol.Status().(*PuffsStatus)
	return s
}

// NewBlockHashes announces blocks.
func (b PuffsBinding) NewBlockHashes(hashes []BlockHashNumber) error {
	return b.Send("NewBlockHashes", hashes)
}

// GetBlockHeaders requests headers and waits for the answer.
func (b PuffsBinding) GetBlockHeaders(ctx context.Context, query GetBlockHeadersData) ([]*types.Header, error) {
	res, err := b.Request(ctx, "GetBlockHeaders", query)
	if err != nil {
		return nil, err
	}
	headers, ok := res.([]*types.Header)
	if !ok {
		return nil, unexpected(PuffsName, "BlockHeaders", res)
	}
	return headers, nil
}

// BlockHeaders sends headers.
func (b PuffsBinding) BlockHeaders(headers []*types.Header) error {
	return b.Send("BlockHeaders", headers)
}

// GetBlockBodies requests bodies and waits for the answer.
func (b PuffsBinding) GetBlockBodies(ctx context.Context, hashes []common.Hash) ([]*types.Body, error) {
	res, err := b.Request(ctx, "GetBlockBodies", hashes)
	if err != nil {
		return nil, err
	}
	bodies, ok := res.([]*types.Body)
	if !ok {
		return nil, unexpected(PuffsName, "BlockBodies", res)
	}
	return bodies, nil
}

// BlockBodies sends bodies.
func (b PuffsBinding) BlockBodies(bodies []*types.Body) error {
	return b.Send("BlockBodies", bodies)
}

// LesBinding exposes the les catalog of a binding as typed calls. Request ids
// left at zero are allocated by the binding.
type LesBinding struct {
	*BoundProtocol
}

// Status returns the remote les status.
func (b LesBinding) Status() *LesStatus {
	s, _ := b.BoundProtocol.Status().(*LesStatus)
	return s
}

// Announce announces a new head.
func (b LesBinding) Announce(a AnnounceData) error {
	return b.Send("Announce", a)
}

// GetBlockHeaders requests headers and waits for the answer.
func (b LesBinding) GetBlockHeaders(ctx context.Context, reqID uint64, query GetBlockHeadersData) (*BlockHeadersPacket, error) {
	res, err := b.Request(ctx, "GetBlockHeaders", GetBlockHeadersPacket{ReqID: reqID, Query: query})
	if err != nil {
		return nil, err
	}
	packet, ok := res.(BlockHeadersPacket)
	if !ok {
		return nil, unexpected(LesName, "BlockHeaders", res)
	}
	return &packet, nil
}

// BlockHeaders sends headers.
func (b LesBinding) BlockHeaders(packet BlockHeadersPacket) error {
	return b.Send("BlockHeaders", packet)
}

// GetBlockBodies requests bodies and waits for the answer.
func (b LesBinding) GetBlockBodies(ctx context.Context, reqID uint64, hashes []common.Hash) (*BlockBodiesPacket, error) {
	res, err := b.Request(ctx, "GetBlockBodies", GetBlockBodiesPacket{ReqID: reqID, Hashes: hashes})
	if err != nil {
		return nil, err
	}
	packet, ok := res.(BlockBodiesPacket)
	if !ok {
		return nil, unexpected(LesName, "BlockBodies", res)
	}
	return &packet, nil
}

// BlockBodies sends bodies.
func (b LesBinding) BlockBodies(packet BlockBodiesPacket) error {
	return b.Send("BlockBodies", packet)
}

func unexpected(protocol, name string, res interface{}) error {
	return NewErr(protocol, DecodeError, fmt.Sprintf("%s: unexpected %T", name, res))
}
