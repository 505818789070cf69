package config

import "time"

// Validation tags described here: https://pkg.go.dev/github.com/go-playground/validator/v10
type Config struct {
	Chain struct {
		RelayRPC       string `env:"RELAY_RPC_URL"    flag:"relay-rpc"    validate:"required,url" desc:"websocket RPC endpoint of the relay chain"`
		AssetHubRPC    string `env:"ASSETHUB_RPC_URL" flag:"assethub-rpc" validate:"required,url" desc:"websocket RPC endpoint of the asset hub"`
		CoretimeRPC    string `env:"CORETIME_RPC_URL" flag:"coretime-rpc" validate:"required,url" desc:"websocket RPC endpoint of the coretime chain"`
		CoretimeParaID uint32 `env:"CORETIME_PARA_ID" flag:"coretime-para-id" validate:"omitempty,number" desc:"parachain id of the coretime chain"`
		SS58Prefix     uint16 `env:"SS58_PREFIX"      flag:"ss58-prefix"  validate:"omitempty,number" desc:"address format of the network"`
	}
	Purchase struct {
		SafetyMarginPercent uint64        `env:"PURCHASE_SAFETY_MARGIN_PERCENT" flag:"safety-margin-percent" validate:"omitempty,min=100" desc:"coretime-chain balance required before purchase, percent of the price limit"`
		TopupPercent        uint64        `env:"PURCHASE_TOPUP_PERCENT"         flag:"topup-percent"         validate:"omitempty,min=100" desc:"amount bridged when topping up, percent of the price limit"`
		SettleTimeout       time.Duration `env:"BRIDGE_SETTLE_TIMEOUT"          flag:"bridge-settle-timeout" validate:"omitempty" desc:"how long to wait for bridged funds to arrive on the coretime chain"`
		SettleInterval      time.Duration `env:"BRIDGE_SETTLE_INTERVAL"         flag:"bridge-settle-interval" validate:"omitempty" desc:"poll interval while waiting for bridged funds"`
	}
	Mode struct {
		DryRun       bool `env:"DRY_RUN"       flag:"dry-run"       desc:"simulate the purchase without submitting transactions"`
		SkipBridge   bool `env:"SKIP_BRIDGE"   flag:"skip-bridge"   desc:"skip bridging funds, assume sufficient balance on the coretime chain"`
		CheckRegions bool `env:"CHECK_REGIONS" flag:"check-regions" desc:"only list owned regions and workplan assignments"`
	}
	Log struct {
		Color  bool   `env:"LOG_COLOR"   flag:"log-color"`
		IsProd bool   `env:"LOG_IS_PROD" flag:"log-is-prod" desc:"affects the format of the log output"`
		JSON   bool   `env:"LOG_JSON"    flag:"log-json"`
		Level  string `env:"LOG_LEVEL"   flag:"log-level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	}
}

func (cfg *Config) SetDefaults() {
	// Chain: Westend and its system parachains
	if cfg.Chain.RelayRPC == "" {
		cfg.Chain.RelayRPC = "wss://westend-rpc.polkadot.io"
	}
	if cfg.Chain.AssetHubRPC == "" {
		cfg.Chain.AssetHubRPC = "wss://westend-asset-hub-rpc.polkadot.io"
	}
	if cfg.Chain.CoretimeRPC == "" {
		cfg.Chain.CoretimeRPC = "wss://westend-coretime-rpc.polkadot.io"
	}
	if cfg.Chain.CoretimeParaID == 0 {
		cfg.Chain.CoretimeParaID = 1005
	}
	if cfg.Chain.SS58Prefix == 0 {
		cfg.Chain.SS58Prefix = 42
	}

	// Purchase
	if cfg.Purchase.SafetyMarginPercent == 0 {
		cfg.Purchase.SafetyMarginPercent = 110
	}
	if cfg.Purchase.TopupPercent == 0 {
		cfg.Purchase.TopupPercent = 200
	}
	if cfg.Purchase.SettleTimeout == 0 {
		cfg.Purchase.SettleTimeout = 2 * time.Minute
	}
	if cfg.Purchase.SettleInterval == 0 {
		cfg.Purchase.SettleInterval = 6 * time.Second
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
