package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Contract interfaces, reduced to the functions and events the bot calls.

const stremeJSON = `[
  {"type":"function","name":"generateSalt","stateMutability":"view",
   "inputs":[
     {"name":"_symbol","type":"string"},
     {"name":"_requestor","type":"address"},
     {"name":"_tokenFactory","type":"address"},
     {"name":"_pairedToken","type":"address"}],
   "outputs":[
     {"name":"salt","type":"bytes32"},
     {"name":"token","type":"address"}]},
  {"type":"function","name":"deployToken","stateMutability":"payable",
   "inputs":[
     {"name":"tokenFactory","type":"address"},
     {"name":"postDeployHook","type":"address"},
     {"name":"liquidityFactory","type":"address"},
     {"name":"postLPHook","type":"address"},
     {"name":"preSaleTokenConfig","type":"tuple","components":[
       {"name":"_name","type":"string"},
       {"name":"_symbol","type":"string"},
       {"name":"_supply","type":"uint256"},
       {"name":"_fee","type":"uint24"},
       {"name":"_salt","type":"bytes32"},
       {"name":"_deployer","type":"address"},
       {"name":"_fid","type":"uint256"},
       {"name":"_image","type":"string"},
       {"name":"_castHash","type":"string"},
       {"name":"_poolConfig","type":"tuple","components":[
         {"name":"tick","type":"int24"},
         {"name":"pairedToken","type":"address"},
         {"name":"devBuyFee","type":"uint24"}]}]}],
   "outputs":[
     {"name":"token","type":"address"},
     {"name":"liquidityId","type":"uint256"}]}
]`

const stakingFactoryJSON = `[
  {"type":"event","name":"StakedTokenCreated","anonymous":false,
   "inputs":[
     {"name":"stakeToken","type":"address","indexed":false},
     {"name":"depositToken","type":"address","indexed":false},
     {"name":"pool","type":"address","indexed":false}]}
]`

const uniswapV3FactoryJSON = `[
  {"type":"function","name":"getPool","stateMutability":"view",
   "inputs":[
     {"name":"tokenA","type":"address"},
     {"name":"tokenB","type":"address"},
     {"name":"fee","type":"uint24"}],
   "outputs":[{"name":"pool","type":"address"}]},
  {"type":"event","name":"PoolCreated","anonymous":false,
   "inputs":[
     {"name":"token0","type":"address","indexed":true},
     {"name":"token1","type":"address","indexed":true},
     {"name":"fee","type":"uint24","indexed":true},
     {"name":"tickSpacing","type":"int24","indexed":false},
     {"name":"pool","type":"address","indexed":false}]}
]`

const erc20JSON = `[
  {"type":"function","name":"totalSupply","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

const gdaPoolJSON = `[
  {"type":"function","name":"getUnits","stateMutability":"view",
   "inputs":[{"name":"memberAddress","type":"address"}],
   "outputs":[{"name":"","type":"uint128"}]},
  {"type":"function","name":"getTotalUnits","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint128"}]},
  {"type":"function","name":"getMemberFlowRate","stateMutability":"view",
   "inputs":[{"name":"memberAddress","type":"address"}],
   "outputs":[{"name":"","type":"int96"}]},
  {"type":"function","name":"getClaimableNow","stateMutability":"view",
   "inputs":[{"name":"memberAddr","type":"address"}],
   "outputs":[{"name":"claimableBalance","type":"int256"},{"name":"timestamp","type":"uint256"}]},
  {"type":"function","name":"getTotalAmountReceivedByMember","stateMutability":"view",
   "inputs":[{"name":"memberAddr","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

const gdaForwarderJSON = `[
  {"type":"function","name":"isMemberConnected","stateMutability":"view",
   "inputs":[{"name":"pool","type":"address"},{"name":"member","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

var (
	stremeABI           = mustParseABI(stremeJSON)
	stakingFactoryABI   = mustParseABI(stakingFactoryJSON)
	uniswapV3FactoryABI = mustParseABI(uniswapV3FactoryJSON)
	erc20ABI            = mustParseABI(erc20JSON)
	gdaPoolABI          = mustParseABI(gdaPoolJSON)
	gdaForwarderABI     = mustParseABI(gdaForwarderJSON)

	// StakedTokenCreatedTopic is topic0 of the staking factory event.
	StakedTokenCreatedTopic = stakingFactoryABI.Events["StakedTokenCreated"].ID
	// PoolCreatedTopic is topic0 of the Uniswap v3 factory event.
	PoolCreatedTopic = uniswapV3FactoryABI.Events["PoolCreated"].ID

	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("chain: parse abi: " + err.Error())
	}
	return parsed
}
