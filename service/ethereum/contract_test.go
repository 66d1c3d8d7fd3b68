package ethereum

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDAI      = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	testSender   = common.HexToAddress("0x28C6c06298d514Db089934071355E5743bf21d60")
	testReceiver = common.HexToAddress("0xA9D1e08C7793af67e9d92fe308d5697FB81d3E43")
)

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

func newTestContract(t *testing.T) *TokenContract {
	t.Helper()
	c, err := NewTokenContract(testDAI)
	require.NoError(t, err)
	return c
}

// transferLog builds a raw Transfer log the way a node would return it.
func transferLog(from, to common.Address, amount *big.Int, txHash common.Hash, index uint, block uint64) types.Log {
	return types.Log{
		Address: testDAI,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(common.LeftPadBytes(from.Bytes(), 32)),
			common.BytesToHash(common.LeftPadBytes(to.Bytes(), 32)),
		},
		Data:        common.LeftPadBytes(amount.Bytes(), 32),
		BlockNumber: block,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)),
		TxHash:      txHash,
		Index:       index,
	}
}

func dai(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestTokenContract_TransferTopic(t *testing.T) {
	c := newTestContract(t)
	assert.Equal(t, transferTopic, c.TransferTopic())
	assert.Equal(t, testDAI, c.Address())
}

func TestTokenContract_DecodeTransfer(t *testing.T) {
	c := newTestContract(t)
	l := transferLog(testSender, testReceiver, dai(1500), common.HexToHash("0x01"), 7, 100)

	tr, err := c.DecodeTransfer(&l)
	require.NoError(t, err)
	assert.Equal(t, testSender, tr.From)
	assert.Equal(t, testReceiver, tr.To)
	assert.Equal(t, 0, dai(1500).Cmp(tr.Amount))
}

func TestTokenContract_DecodeTransfer_Rejects(t *testing.T) {
	c := newTestContract(t)

	tests := []struct {
		name   string
		mutate func(l *types.Log)
	}{
		{"other contract", func(l *types.Log) { l.Address = testSender }},
		{"other event", func(l *types.Log) { l.Topics[0] = common.HexToHash("0x8c5be1e5") }},
		{"missing topic", func(l *types.Log) { l.Topics = l.Topics[:2] }},
		{"short data", func(l *types.Log) { l.Data = []byte{0x01} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := transferLog(testSender, testReceiver, dai(1), common.HexToHash("0x02"), 0, 100)
			tt.mutate(&l)
			_, err := c.DecodeTransfer(&l)
			assert.Error(t, err)
		})
	}
}

func TestTokenContract_IsTransferLog(t *testing.T) {
	c := newTestContract(t)
	l := transferLog(testSender, testReceiver, dai(1), common.HexToHash("0x03"), 0, 100)
	assert.True(t, c.IsTransferLog(&l))
	assert.False(t, c.IsTransferLog(nil))

	other := l
	other.Address = testReceiver
	assert.False(t, c.IsTransferLog(&other))
}

func TestTokenContract_FilterQuery(t *testing.T) {
	c := newTestContract(t)

	q := c.FilterQuery(big.NewInt(10), big.NewInt(20))
	assert.Equal(t, []common.Address{testDAI}, q.Addresses)
	require.Len(t, q.Topics, 1)
	assert.Equal(t, []common.Hash{transferTopic}, q.Topics[0])
	assert.Equal(t, int64(10), q.FromBlock.Int64())
	assert.Equal(t, int64(20), q.ToBlock.Int64())

	open := c.FilterQuery(nil, nil)
	assert.Nil(t, open.FromBlock)
	assert.Nil(t, open.ToBlock)
}
