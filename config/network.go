package config

// Base units.
const (
	Coin = 100_000_000 // 10^8 base units (satoshis) per coin
)

// DisplayDecimals is the number of decimals shown for balance totals.
const DisplayDecimals = 2

// NetworkParams holds the fixed per-network parameters the payment core
// relies on. The Electrum and relay lists are only defaults: deployments
// normally supply their own.
type NetworkParams struct {
	Name NetworkType

	// Mainnet selects the address version byte used for P2PKH addresses.
	Mainnet bool

	// CoinType is the BIP-44 coin type used when key material is a mnemonic.
	CoinType uint32

	// MinFeeRate is the fee floor in base units per byte.
	MinFeeRate uint64

	// DustLimit is the smallest change output worth creating.
	DustLimit uint64

	ElectrumServers []string
	Relays          []string
}

// MainnetParams returns the mainnet parameters.
func MainnetParams() *NetworkParams {
	return &NetworkParams{
		Name:       Mainnet,
		Mainnet:    true,
		CoinType:   236,
		MinFeeRate: 1,
		DustLimit:  1,
		ElectrumServers: []string{
			"ssl://electrumx.gorillapool.io:50002",
			"ssl://electrumx.bitails.io:50002",
			"tcp://electrumx.gorillapool.io:50001",
		},
		Relays: []string{
			"wss://relay.damus.io",
			"wss://nos.lol",
			"wss://relay.nostr.band",
		},
	}
}

// TestnetParams returns the testnet parameters.
func TestnetParams() *NetworkParams {
	p := MainnetParams()
	p.Name = Testnet
	p.Mainnet = false
	p.CoinType = 1
	p.ElectrumServers = []string{
		"ssl://testnet.electrumx.gorillapool.io:51002",
		"tcp://testnet.electrumx.gorillapool.io:51001",
	}
	return p
}

// ParamsFor returns the parameters for the given network.
func ParamsFor(network NetworkType) *NetworkParams {
	switch network {
	case Testnet:
		return TestnetParams()
	default:
		return MainnetParams()
	}
}
