/*

This file contains the default token universe registered at startup when
SEED_REGISTRY=true.

It exists for dev and test deployments so the registry is never empty on
first boot. Production deployments register tokens through the API and
should leave seeding disabled.

*/

package config

// SeedToken pairs a token contract with its price oracle contract.
type SeedToken struct {
	Symbol         string
	TokenContract  string
	OracleContract string
}

var SeedTokens = []SeedToken{
	{Symbol: "WBTC", TokenContract: "token_wbtc", OracleContract: "oracle_wbtc"},
	{Symbol: "WETH", TokenContract: "token_weth", OracleContract: "oracle_weth"},
	{Symbol: "ATOM", TokenContract: "token_atom", OracleContract: "oracle_atom"},
	{Symbol: "OSMO", TokenContract: "token_osmo", OracleContract: "oracle_osmo"},
	{Symbol: "TIA", TokenContract: "token_tia", OracleContract: "oracle_tia"},
	{Symbol: "USDT", TokenContract: "token_usdt", OracleContract: "oracle_usdt"},
	{Symbol: "USDC", TokenContract: "token_usdc", OracleContract: "oracle_usdc"},
}
