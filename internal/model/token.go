package model

// TokenMeta captures ERC20 metadata. A nil *TokenMeta is a valid cached
// resolution result meaning "not a standard token".
type TokenMeta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// PoolTokens is the resolved token pair of an AMM pool.
type PoolTokens struct {
	Pool   string `json:"pool"`
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
}
