package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
  {"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// sendOFT(address token, uint32 dstChainId, bytes32 to, uint256 amount, bytes options) payable
const bridgeABIJSON = `[
  {"inputs":[
    {"name":"token","type":"address"},
    {"name":"dstChainId","type":"uint32"},
    {"name":"to","type":"bytes32"},
    {"name":"amount","type":"uint256"},
    {"name":"options","type":"bytes"}
  ],"name":"sendOFT","outputs":[],"stateMutability":"payable","type":"function"}
]`

var (
	erc20ABI  = mustParseABI(erc20ABIJSON)
	bridgeABI = mustParseABI(bridgeABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: invalid abi: " + err.Error())
	}
	return parsed
}
