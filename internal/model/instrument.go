package model

// TradingPair is a selectable market.
type TradingPair struct {
	Label string `json:"label" yaml:"label"` // display name, e.g. "BTC / USDT"
	Value string `json:"value" yaml:"value"` // feed symbol, e.g. "BTCUSDT"
}

// DefaultPairs is the built-in market catalogue.
var DefaultPairs = []TradingPair{
	{Label: "BTC / USDT", Value: "BTCUSDT"},
	{Label: "ETH / USDT", Value: "ETHUSDT"},
	{Label: "SOL / USDT", Value: "SOLUSDT"},
	{Label: "XRP / USDT", Value: "XRPUSDT"},
	{Label: "ADA / USDT", Value: "ADAUSDT"},
	{Label: "BNB / USDT", Value: "BNBUSDT"},
	{Label: "DOGE / USDT", Value: "DOGEUSDT"},
	{Label: "MATIC / USDT", Value: "MATICUSDT"},
	{Label: "DOT / USDT", Value: "DOTUSDT"},
	{Label: "LTC / USDT", Value: "LTCUSDT"},
	{Label: "TRX / USDT", Value: "TRXUSDT"},
	{Label: "AVAX / USDT", Value: "AVAXUSDT"},
	{Label: "SHIB / USDT", Value: "SHIBUSDT"},
	{Label: "LINK / USDT", Value: "LINKUSDT"},
}

// ConnectionStatus is the feed connection state, passed through from the
// feed adapter to the read model.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)
