package evm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fullyclips/whalewatch/internal/watch"
)

// swapMethod describes one recognized router call: its argument layout and
// how to pull the input/output assets out of the decoded values.
type swapMethod struct {
	dex     string
	name    string
	args    abi.Arguments
	extract func(vals []any) (tokenIn, tokenOut common.Address, ok bool)
}

// swapMethods maps 4-byte selectors to argument-layout descriptors. Built
// once at package init; lookup is a map probe, no reflection dispatch.
var swapMethods map[[4]byte]swapMethod

func init() {
	uint256T := mustType("uint256")
	uint24T := mustType("uint24")
	uint160T := mustType("uint160")
	addressT := mustType("address")
	addressSliceT := mustType("address[]")

	pathExtract := func(pathIndex int) func([]any) (common.Address, common.Address, bool) {
		return func(vals []any) (common.Address, common.Address, bool) {
			if pathIndex >= len(vals) {
				return common.Address{}, common.Address{}, false
			}
			path, ok := vals[pathIndex].([]common.Address)
			if !ok || len(path) == 0 {
				return common.Address{}, common.Address{}, false
			}
			return path[0], path[len(path)-1], true
		}
	}

	swapMethods = map[[4]byte]swapMethod{
		selector("swapExactETHForTokens(uint256,address[],address,uint256)"): {
			dex:  "V2",
			name: "swapExactETHForTokens",
			args: abi.Arguments{
				{Type: uint256T}, {Type: addressSliceT}, {Type: addressT}, {Type: uint256T},
			},
			extract: pathExtract(1),
		},
		selector("swapExactTokensForTokens(uint256,uint256,address[],address,uint256)"): {
			dex:  "V2",
			name: "swapExactTokensForTokens",
			args: abi.Arguments{
				{Type: uint256T}, {Type: uint256T}, {Type: addressSliceT}, {Type: addressT}, {Type: uint256T},
			},
			extract: pathExtract(2),
		},
		// The params struct is all static types, so its tuple encoding is
		// identical to the flat member layout.
		selector("exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))"): {
			dex:  "V3",
			name: "exactInputSingle",
			args: abi.Arguments{
				{Type: addressT}, {Type: addressT}, {Type: uint24T}, {Type: addressT},
				{Type: uint256T}, {Type: uint256T}, {Type: uint256T}, {Type: uint160T},
			},
			extract: func(vals []any) (common.Address, common.Address, bool) {
				if len(vals) < 2 {
					return common.Address{}, common.Address{}, false
				}
				in, okIn := vals[0].(common.Address)
				out, okOut := vals[1].(common.Address)
				return in, out, okIn && okOut
			},
		},
	}
}

func selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", name, err))
	}
	return t
}

// ParseSwap decodes recognized router swap calls into a descriptor.
// Unknown selectors, short input and decode errors all return nil; this
// never fails hard, classification simply proceeds without a descriptor.
func ParseSwap(input []byte) *watch.SwapDescriptor {
	if len(input) < 4 {
		return nil
	}

	var sel [4]byte
	copy(sel[:], input[:4])
	method, ok := swapMethods[sel]
	if !ok {
		return nil
	}

	vals, err := method.args.Unpack(input[4:])
	if err != nil {
		return nil
	}
	tokenIn, tokenOut, ok := method.extract(vals)
	if !ok {
		return nil
	}

	return &watch.SwapDescriptor{
		DEX:      method.dex,
		Method:   method.name,
		TokenIn:  tokenIn.Hex(),
		TokenOut: tokenOut.Hex(),
	}
}
