package dto

import "time"

type AuthResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type ParamsResponse struct {
	MinBidIncrement           string `json:"min_bid_increment"`
	AntiSnipeThresholdSeconds int64  `json:"anti_snipe_threshold_seconds"`
	ExtensionWindowSeconds    int64  `json:"extension_window_seconds"`
}

type CountResponse struct {
	Count uint64 `json:"count"`
}

type AccountResponse struct {
	Address              string `json:"address"`
	Whitelisted          bool   `json:"whitelisted"`
	DepositBalance       string `json:"deposit_balance"`
	AuctionsParticipated int    `json:"auctions_participated"`
	AuctionsWon          int    `json:"auctions_won"`
}

type MembershipResponse struct {
	Address string `json:"address"`
	Member  bool   `json:"member"`
}

type WithdrawResponse struct {
	Amount string `json:"amount"`
}

type ExtendResponse struct {
	Extended bool      `json:"extended"`
	EndTime  time.Time `json:"end_time"`
}
