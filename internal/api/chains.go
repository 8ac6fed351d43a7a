package api

import "github.com/Proton-105/omnikiosk/internal/flow"

// ChainOption is one entry of the chain picker.
type ChainOption struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// layerZeroChains is the display list of popular LayerZero EVM chains.
var layerZeroChains = []flow.Chain{
	{ID: 1, Name: "Ethereum"},
	{ID: 8453, Name: "Base"},
	{ID: 42161, Name: "Arbitrum"},
	{ID: 10, Name: "Optimism"},
	{ID: 137, Name: "Polygon"},
	{ID: 43114, Name: "Avalanche"},
	{ID: 56, Name: "BNB Chain"},
	{ID: 250, Name: "Fantom"},
	{ID: 324, Name: "zkSync Era"},
	{ID: 1101, Name: "Polygon zkEVM"},
}

// chainOptions lists the display chains followed by any configured chain missing from it.
// Only supported chains with a token address are enabled.
func chainOptions(cfg flow.Config) []ChainOption {
	options := make([]ChainOption, 0, len(layerZeroChains)+len(cfg.Chains))
	listed := make(map[int64]bool, len(layerZeroChains))

	for _, chain := range layerZeroChains {
		listed[chain.ID] = true
		options = append(options, ChainOption{ID: chain.ID, Name: chain.Name, Enabled: cfg.Enabled(chain.ID)})
	}

	for _, chain := range cfg.Chains {
		if listed[chain.ID] {
			continue
		}
		options = append(options, ChainOption{ID: chain.ID, Name: chain.Name, Enabled: cfg.Enabled(chain.ID)})
	}

	return options
}
