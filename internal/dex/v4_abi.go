package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const v4StateViewABIJSON = `[
  {
    "inputs": [{"internalType": "PoolId", "name": "poolId", "type": "bytes32"}],
    "name": "getSlot0",
    "outputs": [
      {"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"internalType": "int24", "name": "tick", "type": "int24"},
      {"internalType": "uint24", "name": "protocolFee", "type": "uint24"},
      {"internalType": "uint24", "name": "lpFee", "type": "uint24"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "PoolId", "name": "poolId", "type": "bytes32"}],
    "name": "getLiquidity",
    "outputs": [{"internalType": "uint128", "name": "liquidity", "type": "uint128"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const v4PoolManagerABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "PoolId", "name": "id", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": false, "internalType": "int128", "name": "amount0", "type": "int128"},
      {"indexed": false, "internalType": "int128", "name": "amount1", "type": "int128"},
      {"indexed": false, "internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"indexed": false, "internalType": "uint128", "name": "liquidity", "type": "uint128"},
      {"indexed": false, "internalType": "int24", "name": "tick", "type": "int24"},
      {"indexed": false, "internalType": "uint24", "name": "fee", "type": "uint24"}
    ],
    "name": "Swap",
    "type": "event"
  }
]`

var (
	v4StateViewABI     abi.ABI
	v4StateViewABIOnce sync.Once
	v4StateViewABIErr  error

	v4PoolManagerABI     abi.ABI
	v4PoolManagerABIOnce sync.Once
	v4PoolManagerABIErr  error
)

// V4StateViewABI returns the parsed V4 StateView ABI.
func V4StateViewABI() (abi.ABI, error) {
	v4StateViewABIOnce.Do(func() {
		v4StateViewABI, v4StateViewABIErr = abi.JSON(strings.NewReader(v4StateViewABIJSON))
	})
	return v4StateViewABI, v4StateViewABIErr
}

// V4PoolManagerABI returns the parsed V4 PoolManager event ABI.
func V4PoolManagerABI() (abi.ABI, error) {
	v4PoolManagerABIOnce.Do(func() {
		v4PoolManagerABI, v4PoolManagerABIErr = abi.JSON(strings.NewReader(v4PoolManagerABIJSON))
	})
	return v4PoolManagerABI, v4PoolManagerABIErr
}
