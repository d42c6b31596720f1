package refdata

import (
	"sort"
	"strings"
)

// quoteSuffixes is ordered longest first so "USDT" wins over "USD".
var quoteSuffixes = func() []string {
	q := []string{"USDT", "USDC", "BUSD", "FDUSD", "USD", "BTC", "ETH", "BNB", "EUR", "GBP", "JPY", "TRY"}
	sort.SliceStable(q, func(i, j int) bool { return len(q[i]) > len(q[j]) })
	return q
}()

// SplitSymbol guesses base/quote from a concatenated symbol such as
// "ETHUSDT". Separators ("BTC-USDT", "BTC_USDT", "BTC/USDT") are honored.
// ok is false when no known quote suffix matches.
func SplitSymbol(symbol string) (SymbolInfo, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, sep := range []string{"/", "-", "_"} {
		if base, quote, found := strings.Cut(s, sep); found && base != "" && quote != "" {
			return SymbolInfo{Base: base, Quote: quote}, true
		}
	}
	for _, quote := range quoteSuffixes {
		if base, found := strings.CutSuffix(s, quote); found && base != "" {
			return SymbolInfo{Base: base, Quote: quote}, true
		}
	}
	return SymbolInfo{}, false
}
