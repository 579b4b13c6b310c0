package cowswap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/abiutil"
)

// Settlement is the canonical GPv2Settlement deployment.
var Settlement = common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41")

var settlementABI = abiutil.MustParse(`[
  {"type":"function","name":"setPreSignature","stateMutability":"nonpayable",
   "inputs":[{"name":"orderUid","type":"bytes"},{"name":"signed","type":"bool"}],"outputs":[]},
  {"type":"function","name":"domainSeparator","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"bytes32"}]}
]`)

// SettlementABI exposes the settlement contract surface this package uses.
func SettlementABI() abi.ABI { return settlementABI }

// PackSetPreSignature builds setPreSignature(orderUid, signed) calldata.
func PackSetPreSignature(uid []byte, signed bool) ([]byte, error) {
	if len(uid) != UIDLen {
		return nil, fmt.Errorf("order uid is %d bytes, want %d", len(uid), UIDLen)
	}
	return settlementABI.Pack("setPreSignature", uid, signed)
}
