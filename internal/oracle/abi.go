package oracle

// ABI 是预言机合约对外暴露的唯一权威接口描述。stakeMore/unstake 由前端钱包签名，
// 服务端不绑定这两个方法。
const ABI = `[
  {"type":"function","name":"getAgentDetails","stateMutability":"view",
   "inputs":[{"name":"agent","type":"address"}],
   "outputs":[{"name":"registered","type":"bool"},{"name":"stake","type":"uint256"},{"name":"rewards","type":"uint256"}]},
  {"type":"function","name":"registerAsAgent","stateMutability":"nonpayable",
   "inputs":[{"name":"stake","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"submitPrice","stateMutability":"nonpayable",
   "inputs":[{"name":"price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getLatestPrice","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"price","type":"uint256"}]},
  {"type":"function","name":"stakeMore","stateMutability":"nonpayable",
   "inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"unstake","stateMutability":"nonpayable",
   "inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

const (
	methodAgentDetails = "getAgentDetails"
	methodRegister     = "registerAsAgent"
	methodSubmitPrice  = "submitPrice"
	methodLatestPrice  = "getLatestPrice"
)
