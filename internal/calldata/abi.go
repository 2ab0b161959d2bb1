package calldata

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const positionManagerABIJSON = `[
  {
    "inputs": [{"internalType": "bytes[]", "name": "data", "type": "bytes[]"}],
    "name": "multicall",
    "outputs": [{"internalType": "bytes[]", "name": "results", "type": "bytes[]"}],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes", "name": "unlockData", "type": "bytes"},
      {"internalType": "uint256", "name": "deadline", "type": "uint256"}
    ],
    "name": "modifyLiquidities",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "owner", "type": "address"},
      {
        "components": [
          {
            "components": [
              {"internalType": "address", "name": "token", "type": "address"},
              {"internalType": "uint160", "name": "amount", "type": "uint160"},
              {"internalType": "uint48", "name": "expiration", "type": "uint48"},
              {"internalType": "uint48", "name": "nonce", "type": "uint48"}
            ],
            "internalType": "struct IAllowanceTransfer.PermitDetails[]",
            "name": "details",
            "type": "tuple[]"
          },
          {"internalType": "address", "name": "spender", "type": "address"},
          {"internalType": "uint256", "name": "sigDeadline", "type": "uint256"}
        ],
        "internalType": "struct IAllowanceTransfer.PermitBatch",
        "name": "_permitBatch",
        "type": "tuple"
      },
      {"internalType": "bytes", "name": "signature", "type": "bytes"}
    ],
    "name": "permitBatch",
    "outputs": [{"internalType": "bytes", "name": "err", "type": "bytes"}],
    "stateMutability": "payable",
    "type": "function"
  }
]`

const universalRouterABIJSON = `[
  {
    "inputs": [
      {"internalType": "bytes", "name": "commands", "type": "bytes"},
      {"internalType": "bytes[]", "name": "inputs", "type": "bytes[]"},
      {"internalType": "uint256", "name": "deadline", "type": "uint256"}
    ],
    "name": "execute",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  }
]`

var (
	positionManagerABI     abi.ABI
	positionManagerABIOnce sync.Once
	positionManagerABIErr  error

	universalRouterABI     abi.ABI
	universalRouterABIOnce sync.Once
	universalRouterABIErr  error
)

// PositionManagerABI returns the parsed V4 position manager ABI subset.
func PositionManagerABI() (abi.ABI, error) {
	positionManagerABIOnce.Do(func() {
		positionManagerABI, positionManagerABIErr = abi.JSON(strings.NewReader(positionManagerABIJSON))
	})
	return positionManagerABI, positionManagerABIErr
}

// UniversalRouterABI returns the parsed universal router ABI subset.
func UniversalRouterABI() (abi.ABI, error) {
	universalRouterABIOnce.Do(func() {
		universalRouterABI, universalRouterABIErr = abi.JSON(strings.NewReader(universalRouterABIJSON))
	})
	return universalRouterABI, universalRouterABIErr
}

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	permitDetailsComponents = []abi.ArgumentMarshaling{
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint160"},
		{Name: "expiration", Type: "uint48"},
		{Name: "nonce", Type: "uint48"},
	}
	poolKeyComponents = []abi.ArgumentMarshaling{
		{Name: "currency0", Type: "address"},
		{Name: "currency1", Type: "address"},
		{Name: "fee", Type: "uint24"},
		{Name: "tickSpacing", Type: "int24"},
		{Name: "hooks", Type: "address"},
	}

	addressType = mustType("address", nil)
	uint128Type = mustType("uint128", nil)
	uint256Type = mustType("uint256", nil)
	int24Type   = mustType("int24", nil)
	boolType    = mustType("bool", nil)
	bytesType   = mustType("bytes", nil)
	bytesArray  = mustType("bytes[]", nil)
	poolKeyType = mustType("tuple", poolKeyComponents)

	permitSingleType = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "details", Type: "tuple", Components: permitDetailsComponents},
		{Name: "spender", Type: "address"},
		{Name: "sigDeadline", Type: "uint256"},
	})

	// Position manager action parameters.
	mintParams = abi.Arguments{
		{Type: poolKeyType}, {Type: int24Type}, {Type: int24Type}, {Type: uint256Type},
		{Type: uint128Type}, {Type: uint128Type}, {Type: addressType}, {Type: bytesType},
	}
	increaseParams = abi.Arguments{
		{Type: uint256Type}, {Type: uint256Type}, {Type: uint128Type}, {Type: uint128Type}, {Type: bytesType},
	}
	decreaseParams = abi.Arguments{
		{Type: uint256Type}, {Type: uint256Type}, {Type: uint128Type}, {Type: uint128Type}, {Type: bytesType},
	}
	settlePairParams = abi.Arguments{{Type: addressType}, {Type: addressType}}
	takePairParams   = abi.Arguments{{Type: addressType}, {Type: addressType}, {Type: addressType}}
	unlockDataArgs   = abi.Arguments{{Type: bytesType}, {Type: bytesArray}}

	// Universal router command inputs.
	permit2PermitInput = abi.Arguments{{Type: permitSingleType}, {Type: bytesType}}
	v3SwapExactInInput = abi.Arguments{
		{Type: addressType}, {Type: uint256Type}, {Type: uint256Type}, {Type: bytesType}, {Type: boolType},
	}
)
