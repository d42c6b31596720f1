package storage

var assetNames = map[string]string{
	"BTC":   "Bitcoin",
	"ETH":   "Ethereum",
	"USDT":  "Tether",
	"USDC":  "USD Coin",
	"FDUSD": "First Digital USD",
	"BUSD":  "Binance USD",
	"DAI":   "Dai",
	"BNB":   "BNB",
	"SOL":   "Solana",
	"XRP":   "XRP",
	"ADA":   "Cardano",
	"DOGE":  "Dogecoin",
	"TRX":   "TRON",
	"TON":   "Toncoin",
	"LTC":   "Litecoin",
	"DOT":   "Polkadot",
	"AVAX":  "Avalanche",
	"MATIC": "Polygon",
	"LINK":  "Chainlink",
}

var fiatNames = map[string]string{
	"USD": "US Dollar",
	"EUR": "Euro",
	"GBP": "British Pound",
	"JPY": "Japanese Yen",
	"CNY": "Chinese Yuan",
	"RUB": "Russian Ruble",
	"TRY": "Turkish Lira",
	"UAH": "Ukrainian Hryvnia",
	"KZT": "Kazakhstani Tenge",
	"INR": "Indian Rupee",
	"NGN": "Nigerian Naira",
	"BRL": "Brazilian Real",
	"ARS": "Argentine Peso",
	"VND": "Vietnamese Dong",
	"IDR": "Indonesian Rupiah",
	"PHP": "Philippine Peso",
	"AED": "UAE Dirham",
	"PLN": "Polish Zloty",
	"GEL": "Georgian Lari",
}

// AssetName returns a display name, or the symbol itself when unknown.
func AssetName(symbol string) string {
	if n, ok := assetNames[symbol]; ok {
		return n
	}
	return symbol
}

// FiatName returns a display name, or the code itself when unknown.
func FiatName(code string) string {
	if n, ok := fiatNames[code]; ok {
		return n
	}
	return code
}
