package dto

type IssueTokenRequest struct {
	Address string `json:"address"`
}

type CreateAuctionRequest struct {
	TokenID         uint64 `json:"token_id"`
	StartPrice      string `json:"start_price"`
	DurationSeconds int64  `json:"duration_seconds"`
	Charity         string `json:"charity"`
	BuyNowPrice     string `json:"buy_now_price,omitempty"` // empty disables buy-now
}

type PlaceBidRequest struct {
	Amount string `json:"amount"`
}

type BuyNowRequest struct {
	Amount string `json:"amount"`
}

type RegistryRequest struct {
	Address string `json:"address"`
}
