package types

// IndicatorType identifies an indicator algorithm.
type IndicatorType string

const (
	IndicatorTypeSMA         IndicatorType = "sma"
	IndicatorTypeEMA         IndicatorType = "ema"
	IndicatorTypeRSI         IndicatorType = "rsi"
	IndicatorTypeATR         IndicatorType = "atr"
	IndicatorTypeRollingHigh IndicatorType = "rolling_high"
	IndicatorTypeRollingLow  IndicatorType = "rolling_low"
	IndicatorTypeMACD        IndicatorType = "macd"
)
