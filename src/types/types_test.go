package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genesisHeader() *Header {
	return &Header{
		Difficulty: big.NewInt(131072),
		Number:     big.NewInt(0),
		GasLimit:   5000,
		Extra:      []byte("puffs genesis"),
	}
}

func TestHeaderHash(t *testing.T) {
	h := genesisHeader()
	assert.Equal(t,
		"0x5c365a9bc5f174b2b89ef10358194172e8bb8b2229d4e070687358ca1437c485",
		h.Hash().Hex())

	// a nil number encodes like zero
	h.Number = nil
	assert.Equal(t,
		"0x5c365a9bc5f174b2b89ef10358194172e8bb8b2229d4e070687358ca1437c485",
		h.Hash().Hex())
}

func TestHeaderMarshal(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)

	h := genesisHeader()
	h.Number = new(big.Int).Lsh(big.NewInt(1), 60)
	h.Difficulty = huge
	h.ParentHash = common.HexToHash("0x01")

	data, err := h.Marshal()
	require.NoError(t, err)

	var out Header
	require.NoError(t, out.Unmarshal(data))

	assert.Equal(t, 0, out.Number.Cmp(h.Number))
	assert.Equal(t, 0, out.Difficulty.Cmp(huge))
	assert.Equal(t, h.ParentHash, out.ParentHash)
	assert.Equal(t, h.Extra, out.Extra)
	assert.Equal(t, h.Hash(), out.Hash())
}

func TestBlockBody(t *testing.T) {
	b := NewBlock(genesisHeader(), nil)

	data, err := rlp.EncodeToBytes(b.Body())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc2, 0xc0, 0xc0}, data)

	var body Body
	require.NoError(t, rlp.DecodeBytes(data, &body))
	assert.Len(t, body.Transactions, 0)
	assert.Len(t, body.Uncles, 0)

	enc, err := b.Marshal()
	require.NoError(t, err)

	var out Block
	require.NoError(t, out.Unmarshal(enc))
	assert.Equal(t, b.Hash(), out.Hash())
}

func TestHashOrNumber(t *testing.T) {
	beyond53 := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 53), big.NewInt(1))

	cases := []HashOrNumber{
		ByHash(common.HexToHash("0xa321d27cd2743617c1c1b0d7ecb607dd14febcdfca8f01b79c3f0249505ea069")),
		ByNumber(0),
		ByNumber(1),
		{Number: beyond53},
	}

	for _, c := range cases {
		data, err := rlp.EncodeToBytes(&c)
		require.NoError(t, err)

		var out HashOrNumber
		require.NoError(t, rlp.DecodeBytes(data, &out))

		if c.IsHash() {
			assert.True(t, out.IsHash())
			assert.Equal(t, c.Hash, out.Hash)
		} else {
			assert.False(t, out.IsHash())
			assert.Equal(t, 0, out.Number.Cmp(c.Number), "number %s", c.Number)
		}
	}

	bad := HashOrNumber{Hash: common.HexToHash("0x01"), Number: big.NewInt(3)}
	_, err := rlp.EncodeToBytes(&bad)
	assert.Error(t, err)
}
