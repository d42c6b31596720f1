package bybit

import "encoding/json"

// Response represents a generic response from Bybit's V5 REST API.
type Response struct {
	RetCode int             `json:"retCode"` // 0 means success
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"` // decoded per endpoint
	Time    int64           `json:"time"`
}

// otcResponse is the envelope of the P2P (otc) endpoints, which use snake
// case keys unlike the V5 market API.
type otcResponse struct {
	RetCode int             `json:"ret_code"`
	RetMsg  string          `json:"ret_msg"`
	Result  json.RawMessage `json:"result"`
}

type instrumentList struct {
	Category       string `json:"category"`
	NextPageCursor string `json:"nextPageCursor"`
	List           []struct {
		Symbol    string `json:"symbol"`
		BaseCoin  string `json:"baseCoin"`
		QuoteCoin string `json:"quoteCoin"`
		Status    string `json:"status"`
	} `json:"list"`
}

type tickerList struct {
	Category string   `json:"category"`
	List     []ticker `json:"list"`
}

type ticker struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Bid1Price    string `json:"bid1Price"`
	Ask1Price    string `json:"ask1Price"`
	Volume24h    string `json:"volume24h"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
}

type p2pSearchRequest struct {
	TokenID            string   `json:"tokenId"`
	CurrencyID         string   `json:"currencyId"`
	Payment            []string `json:"payment"`
	Side               string   `json:"side"` // "0" or "1"
	Size               string   `json:"size"`
	Page               string   `json:"page"`
	Amount             string   `json:"amount"`
	CanTrade           bool     `json:"canTrade"`
	VerificationFilter int      `json:"verificationFilter"`
	SortType           string   `json:"sortType"`
	ItemRegion         int      `json:"itemRegion"`
}

type p2pItems struct {
	Count int       `json:"count"`
	Items []p2pItem `json:"items"`
}

type p2pItem struct {
	ID                string   `json:"id"`
	UserID            string   `json:"userId"`
	NickName          string   `json:"nickName"`
	TokenID           string   `json:"tokenId"`
	CurrencyID        string   `json:"currencyId"`
	Side              int      `json:"side"`
	Price             string   `json:"price"`
	Quantity          string   `json:"quantity"`
	LastQuantity      string   `json:"lastQuantity"`
	MinAmount         string   `json:"minAmount"`
	MaxAmount         string   `json:"maxAmount"`
	Payments          []string `json:"payments"`
	RecentExecuteRate float64  `json:"recentExecuteRate"` // already a percentage
}

type paymentList struct {
	PaymentConfigVo []struct {
		PaymentType json.Number `json:"paymentType"`
		PaymentName string      `json:"paymentName"`
	} `json:"paymentConfigVo"`
}
