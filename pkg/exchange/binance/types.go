package binance

// p2pSearchRequest is the body of the public C2C advert search.
type p2pSearchRequest struct {
	Asset     string   `json:"asset"`
	Fiat      string   `json:"fiat"`
	Page      int      `json:"page"`
	Rows      int      `json:"rows"`
	TradeType string   `json:"tradeType"` // BUY or SELL, taker perspective
	PayTypes  []string `json:"payTypes"`
}

type p2pSearchResponse struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Data    []p2pAdvItem `json:"data"`
	Total   int          `json:"total"`
	Success bool         `json:"success"`
}

type p2pAdvItem struct {
	Adv        p2pAdv        `json:"adv"`
	Advertiser p2pAdvertiser `json:"advertiser"`
}

type p2pAdv struct {
	AdvNo                string           `json:"advNo"`
	TradeType            string           `json:"tradeType"`
	Asset                string           `json:"asset"`
	FiatUnit             string           `json:"fiatUnit"`
	Price                string           `json:"price"`
	SurplusAmount        string           `json:"surplusAmount"`
	MinSingleTransAmount string           `json:"minSingleTransAmount"`
	MaxSingleTransAmount string           `json:"maxSingleTransAmount"`
	TradeMethods         []p2pTradeMethod `json:"tradeMethods"`
}

type p2pTradeMethod struct {
	Identifier      string `json:"identifier"`
	TradeMethodName string `json:"tradeMethodName"`
}

type p2pAdvertiser struct {
	UserNo          string  `json:"userNo"`
	NickName        string  `json:"nickName"`
	MonthFinishRate float64 `json:"monthFinishRate"` // 0..1
}

// ticker24h is one entry of GET /api/v3/ticker/24hr.
type ticker24h struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	BidPrice    string `json:"bidPrice"`
	AskPrice    string `json:"askPrice"`
	Volume      string `json:"volume"`
	HighPrice   string `json:"highPrice"`
	LowPrice    string `json:"lowPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

type filterConditions struct {
	Code string `json:"code"`
	Data struct {
		TradeMethods []p2pTradeMethod `json:"tradeMethods"`
	} `json:"data"`
}
