package types

import "math/big"

// Network represents supported EVM networks
type Network string

const (
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia" // testnet
	NetworkEthereum    Network = "ethereum"
	NetworkSepolia     Network = "sepolia" // testnet
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy" // testnet
)

// ProviderKind selects which account session backs a ScanPay instance.
type ProviderKind string

const (
	// ProviderEmbedded is a smart account driven through a bundler and paymaster,
	// signed by the embedded-wallet key.
	ProviderEmbedded ProviderKind = "embedded"
	// ProviderLocal is a locally held EOA key sending plain transactions.
	ProviderLocal ProviderKind = "local"
)

var networkChainIDs = map[Network]int64{
	NetworkBase:        8453,
	NetworkBaseSepolia: 84532,
	NetworkEthereum:    1,
	NetworkSepolia:     11155111,
	NetworkPolygon:     137,
	NetworkPolygonAmoy: 80002,
}

var networkExplorers = map[Network]string{
	NetworkBase:        "https://basescan.org",
	NetworkBaseSepolia: "https://sepolia.basescan.org",
	NetworkEthereum:    "https://etherscan.io",
	NetworkSepolia:     "https://sepolia.etherscan.io",
	NetworkPolygon:     "https://polygonscan.com",
	NetworkPolygonAmoy: "https://amoy.polygonscan.com",
}

// IsSupported reports whether the network has a known chain id.
func (n Network) IsSupported() bool {
	_, ok := networkChainIDs[n]
	return ok
}

// ChainID returns the EIP-155 chain id, or nil for unknown networks.
func (n Network) ChainID() *big.Int {
	id, ok := networkChainIDs[n]
	if !ok {
		return nil
	}
	return big.NewInt(id)
}

// DefaultExplorerURL returns the public block explorer for the network.
func (n Network) DefaultExplorerURL() string {
	return networkExplorers[n]
}

func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia || n == NetworkSepolia || n == NetworkPolygonAmoy
}

func (n Network) String() string {
	return string(n)
}

// SupportedNetworks lists every network with a known chain id.
func SupportedNetworks() []Network {
	return []Network{
		NetworkBase, NetworkBaseSepolia,
		NetworkEthereum, NetworkSepolia,
		NetworkPolygon, NetworkPolygonAmoy,
	}
}
