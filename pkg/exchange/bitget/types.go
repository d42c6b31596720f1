package bitget

import "encoding/json"

// Response is the common Bitget V2 envelope; code "00000" means success.
type Response struct {
	Code        string          `json:"code"`
	Msg         string          `json:"msg"`
	RequestTime int64           `json:"requestTime"`
	Data        json.RawMessage `json:"data"`
}

const codeOK = "00000"

type advList struct {
	AdvList []adv `json:"advList"`
}

type adv struct {
	AdvNo          string          `json:"advNo"`
	Coin           string          `json:"coin"`
	Fiat           string          `json:"fiat"`
	Side           string          `json:"side"`
	Price          string          `json:"price"`
	AdvSize        string          `json:"advSize"`
	MinTradeAmount string          `json:"minTradeAmount"`
	MaxTradeAmount string          `json:"maxTradeAmount"`
	UserID         string          `json:"userId"`
	UserName       string          `json:"userName"`
	TurnoverRate   string          `json:"turnoverRate"` // 0..1
	PaymentMethods []paymentMethod `json:"paymentMethodList"`
}

type paymentMethod struct {
	PaymentMethod string `json:"paymentMethod"`
	PaymentID     string `json:"paymentId"`
}

type ticker struct {
	Symbol     string `json:"symbol"`
	LastPr     string `json:"lastPr"`
	BidPr      string `json:"bidPr"`
	AskPr      string `json:"askPr"`
	BaseVolume string `json:"baseVolume"`
	High24h    string `json:"high24h"`
	Low24h     string `json:"low24h"`
}

type symbolInfo struct {
	Symbol    string `json:"symbol"`
	BaseCoin  string `json:"baseCoin"`
	QuoteCoin string `json:"quoteCoin"`
	Status    string `json:"status"`
}
