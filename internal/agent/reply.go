package agent

// Query 是 POST /query 的请求体。
type Query struct {
	UserQuery string `json:"userQuery"`
	UserID    string `json:"userId"`
}

// Reply 是返回给前端的结构化回复。Action 为 nil 时不输出该字段。
type Reply struct {
	Type   string `json:"type"`
	Data   any    `json:"data"`
	Action *bool  `json:"action,omitempty"`
}

// AmountData 是金额类回复的数据部分。
type AmountData struct {
	Amount string `json:"amount"`
}

// NewsData 是新闻类回复的数据部分，两个切片一一对应。
type NewsData struct {
	Headlines  []string `json:"headlines"`
	Sentiments []string `json:"sentiments"`
}

// 回复类型。
const (
	TypePrice         = "price"
	TypeSentiment     = "sentiment"
	TypePrediction    = "prediction"
	TypeNews          = "news"
	TypeStakeAmount   = "stakeAmount"
	TypeStaking       = "staking"
	TypeUnstakeAmount = "unstakeAmount"
	TypeUnstaking     = "unstaking"
	TypeReward        = "reward"
	TypeRewardCount   = "rewardCount"
	TypeError         = "error"
)

// 固定的回复文本。
const (
	MsgPriceUnavailable      = "Unable to fetch prices at this time"
	MsgHistoryUnavailable    = "Unable to fetch historical data"
	MsgPredictionUnavailable = "Unable to generate a prediction at this time"
	MsgNewsUnavailable       = "Unable to fetch news data"
	MsgStakingHelp           = "As you stake more amount of money you'll be given priority points and this will give you better yields"
	MsgUnstakingHelp         = "You can unstake some amount of tokens from the amount that you have staked"
	MsgUnknownQuery          = "Unknown query type"
	MsgInternalError         = "Internal Server Error"
	MsgEmptyQuery            = "userQuery is required"
)

func flag(v bool) *bool { return &v }

// ErrorReply 构造错误回复。
func ErrorReply(message string) Reply {
	return Reply{Type: TypeError, Data: message}
}
