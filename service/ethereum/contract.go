package ethereum

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:embed abi/dai.json
var daiABIJSON []byte

// TransferEventName is the ABI name of the ERC-20 transfer event.
const TransferEventName = "Transfer"

// Transfer is a decoded Transfer event before it is turned into a feed record.
type Transfer struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// TokenContract decodes Transfer logs emitted by a single token contract.
type TokenContract struct {
	address   common.Address
	abi       abi.ABI
	transfer  abi.Event
	indexed   abi.Arguments
	valueName string
}

// NewTokenContract binds the embedded DAI ABI to the given contract address.
func NewTokenContract(address common.Address) (*TokenContract, error) {
	parsed, err := abi.JSON(bytes.NewReader(daiABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}

	ev, ok := parsed.Events[TransferEventName]
	if !ok {
		return nil, fmt.Errorf("token ABI has no %s event", TransferEventName)
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	nonIndexed := ev.Inputs.NonIndexed()
	if len(indexed) != 2 || len(nonIndexed) != 1 {
		return nil, fmt.Errorf("unexpected %s event shape: %d indexed, %d data arguments",
			TransferEventName, len(indexed), len(nonIndexed))
	}

	return &TokenContract{
		address:   address,
		abi:       parsed,
		transfer:  ev,
		indexed:   indexed,
		valueName: nonIndexed[0].Name,
	}, nil
}

// Address returns the contract address.
func (c *TokenContract) Address() common.Address {
	return c.address
}

// TransferTopic returns topic0 of Transfer logs, the keccak256 hash of the event signature.
func (c *TokenContract) TransferTopic() common.Hash {
	return c.transfer.ID
}

// IsTransferLog reports whether l was emitted by this contract and is a Transfer event.
func (c *TokenContract) IsTransferLog(l *types.Log) bool {
	return l != nil &&
		l.Address == c.address &&
		len(l.Topics) > 0 &&
		l.Topics[0] == c.transfer.ID
}

// FilterQuery builds a log filter for Transfer events in [from, to].
// Nil bounds leave the range open, as used for live subscriptions.
func (c *TokenContract) FilterQuery(from, to *big.Int) goethereum.FilterQuery {
	return goethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{c.transfer.ID}},
	}
}

// DecodeTransfer ABI-decodes a Transfer log: sender and recipient from the
// indexed topics, amount from the data section.
func (c *TokenContract) DecodeTransfer(l *types.Log) (*Transfer, error) {
	if !c.IsTransferLog(l) {
		return nil, fmt.Errorf("log %s/%d is not a %s event of %s", l.TxHash.Hex(), l.Index, TransferEventName, c.address.Hex())
	}
	if len(l.Topics) != len(c.indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(c.indexed)+1, len(l.Topics))
	}

	out := make(map[string]interface{}, 3)
	if err := abi.ParseTopicsIntoMap(out, c.indexed, l.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to decode topics: %w", err)
	}
	if err := c.abi.UnpackIntoMap(out, TransferEventName, l.Data); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}

	from, ok := out[c.indexed[0].Name].(common.Address)
	if !ok {
		return nil, fmt.Errorf("sender is %T, not an address", out[c.indexed[0].Name])
	}
	to, ok := out[c.indexed[1].Name].(common.Address)
	if !ok {
		return nil, fmt.Errorf("recipient is %T, not an address", out[c.indexed[1].Name])
	}
	amount, ok := out[c.valueName].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("amount is %T, not an integer", out[c.valueName])
	}

	return &Transfer{From: from, To: to, Amount: amount}, nil
}
