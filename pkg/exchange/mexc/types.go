package mexc

import "encoding/json"

// otcResponse is the envelope of the OTC endpoints; code 200 means success.
type otcResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

const codeOK = 200

type adsPage struct {
	List []ad `json:"list"`
}

type ad struct {
	ID         string      `json:"id"`
	CoinName   string      `json:"coinName"`
	Currency   string      `json:"currency"`
	Price      string      `json:"price"`
	Quantity   string      `json:"quantity"`
	MinAmount  string      `json:"minAmount"`
	MaxAmount  string      `json:"maxAmount"`
	PayMethods []payMethod `json:"payMethods"`
	Merchant   merchant    `json:"merchant"`
}

// payMethod carries either an inline name or only an id that has to be
// translated through the payment method table.
type payMethod struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

type merchant struct {
	UID        string `json:"uid"`
	NickName   string `json:"nickName"`
	FinishRate string `json:"finishRate"` // 0..1
}

// ticker24h is one entry of GET /api/v3/ticker/24hr.
type ticker24h struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	BidPrice  string `json:"bidPrice"`
	AskPrice  string `json:"askPrice"`
	Volume    string `json:"volume"`
	HighPrice string `json:"highPrice"`
	LowPrice  string `json:"lowPrice"`
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

type paymentList struct {
	Data []payMethod `json:"data"`
}
