// Package pricefeed fetches market data from public REST endpoints: spot
// prices (Binance, Bitget), historical series and news headlines
// (CoinGecko). It also converts decimal prices to the oracle contract's
// fixed-point integer scale.
package pricefeed
