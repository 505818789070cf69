package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/coretime-tools/coretime-purchaser/internal/bridge"
	"github.com/coretime-tools/coretime-purchaser/internal/broker"
	"github.com/coretime-tools/coretime-purchaser/internal/config"
	"github.com/coretime-tools/coretime-purchaser/internal/interfaces"
	"github.com/coretime-tools/coretime-purchaser/internal/lib"
	"github.com/coretime-tools/coretime-purchaser/internal/purchaser"
	"github.com/coretime-tools/coretime-purchaser/internal/repositories/chain"
	"github.com/coretime-tools/coretime-purchaser/internal/wallet"
	"github.com/joho/godotenv"
)

const usage = `usage: coretime-purchaser [flags] "<mnemonic>" <price-limit-wnd> [//derivation]
       coretime-purchaser --check-regions "<mnemonic>" [//derivation]

flags:
  --dry-run        simulate the purchase without submitting transactions
  --skip-bridge    skip bridging funds (use when WND is already on the coretime chain)
  --check-regions  only list owned coretime regions and workplan assignments
`

// boolean flags that may appear without a value
var boolFlags = map[string]bool{
	"--dry-run":       true,
	"--skip-bridge":   true,
	"--check-regions": true,
	"--log-color":     true,
	"--log-json":      true,
	"--log-is-prod":   true,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	_ = godotenv.Load()

	flagArgs, positional := splitArgs(args)

	var cfg config.Config
	if err := config.LoadConfig(&cfg, flagArgs); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n\n%s", err, usage)
		return 1
	}

	log, err := lib.NewLogger(cfg.Log.Level, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() {
		_ = log.Sync()
	}()

	mnemonic, priceArg, derivation, ok := parsePositional(positional, cfg.Mode.CheckRegions)
	if !ok {
		fmt.Fprint(os.Stderr, usage)
		return 1
	}

	var priceLimit *big.Int
	if !cfg.Mode.CheckRegions {
		priceLimit, err = lib.ParseWND(priceArg)
		if err != nil || priceLimit.Sign() <= 0 {
			fmt.Fprintf(os.Stderr, "invalid price limit %q\n\n%s", priceArg, usage)
			return 1
		}
	}

	account, err := wallet.NewAccountFromMnemonic(mnemonic, derivation, cfg.Chain.SS58Prefix)
	if err != nil {
		log.Errorf("cannot load wallet: %s", err)
		return 1
	}
	log.Infof("account: %s", account.Address())
	if derivation != "" {
		log.Infof("derivation path: %s", derivation)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-shutdownChan
		log.Warnf("received signal: %s", s)
		cancel()

		s = <-shutdownChan
		log.Warnf("received signal: %s, forcing exit", s)
		os.Exit(1)
	}()

	clients, err := chain.Connect(ctx, cfg.Chain.RelayRPC, cfg.Chain.AssetHubRPC, cfg.Chain.CoretimeRPC, log.Named("CHAIN"))
	if err != nil {
		log.Errorf("cannot connect to chains: %s", err)
		return 1
	}
	defer clients.Close()

	if cfg.Mode.CheckRegions {
		return checkRegions(ctx, clients, account, log)
	}

	result, err := buildDriver(clients, account, &cfg, log).Run(ctx, purchaser.Params{
		PriceLimit:          priceLimit,
		DryRun:              cfg.Mode.DryRun,
		SkipBridge:          cfg.Mode.SkipBridge,
		SafetyMarginPercent: cfg.Purchase.SafetyMarginPercent,
		TopupPercent:        cfg.Purchase.TopupPercent,
	})
	if err != nil {
		log.Errorf("purchase attempt failed: %s", err)
		if hint := broker.Guidance(err); hint != "" {
			log.Infof("hint: %s", hint)
		}
		return 1
	}

	switch result.State {
	case purchaser.StatePurchased:
		if result.Simulated {
			log.Infof("dry run: purchase simulation successful")
		} else {
			log.Infof("purchase successful")
		}
		return 0
	case purchaser.StateInterlude, purchaser.StateOverpriced, purchaser.StateUnfunded:
		// legitimate no-buy decisions, reported along the way
		return 0
	default:
		return 0
	}
}

func buildDriver(clients *chain.Clients, account *wallet.Account, cfg *config.Config, log interfaces.ILogger) *purchaser.Driver {
	kp := account.Keypair()

	paths := []bridge.Path{
		{
			Name:      "ASSETHUB",
			Source:    clients.AssetHub,
			Submitter: chain.NewTransferSubmitter(clients.AssetHub, kp, log),
			BuildTransfer: func(amount *big.Int) (types.Call, error) {
				return chain.NewTransferAssetsCall(clients.AssetHub.Meta(), chain.TransferAssetsParaHost, chain.TransferAssetsParams{
					Parents:     1,
					DestParaID:  cfg.Chain.CoretimeParaID,
					Beneficiary: account.PublicKey(),
					Amount:      amount,
				})
			},
		},
		{
			Name:      "RELAY",
			Source:    clients.Relay,
			Submitter: chain.NewTransferSubmitter(clients.Relay, kp, log),
			BuildTransfer: func(amount *big.Int) (types.Call, error) {
				return chain.NewTransferAssetsCall(clients.Relay.Meta(), chain.TransferAssetsRelay, chain.TransferAssetsParams{
					Parents:     0,
					DestParaID:  cfg.Chain.CoretimeParaID,
					Beneficiary: account.PublicKey(),
					Amount:      amount,
				})
			},
		},
	}

	funder := bridge.NewOrchestrator(
		clients.Coretime, paths, account,
		cfg.Purchase.SettleTimeout, cfg.Purchase.SettleInterval,
		log,
	)
	sales := broker.NewSaleReader(clients.Coretime, clients.Relay, log)
	buyer := broker.NewExecutor(clients.Coretime, chain.NewBrokerSubmitter(clients.Coretime, kp, log), log)

	return purchaser.NewDriver(account, clients.Relay, clients.AssetHub, clients.Coretime, funder, sales, buyer, log)
}

func checkRegions(ctx context.Context, clients *chain.Clients, account *wallet.Account, log interfaces.ILogger) int {
	reader := broker.NewRegionReader(clients.Coretime, account, log)

	regions, err := reader.Regions(ctx)
	if err != nil {
		log.Errorf("region check failed: %s", err)
		return 1
	}

	cores := make([]uint16, 0, len(regions))
	for _, region := range regions {
		cores = append(cores, uint16(region.ID.Core))
	}

	if _, err := reader.Workplan(ctx, cores); err != nil {
		log.Errorf("workplan check failed: %s", err)
		return 1
	}
	return 0
}

// splitArgs partitions argv into flag-style and positional arguments so that
// flags may appear before or after the mnemonic. Bare boolean flags are
// normalized to the key=value form the flag package expects.
func splitArgs(args []string) (flagArgs, positional []string) {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			if boolFlags[arg] {
				arg += "=true"
			}
			flagArgs = append(flagArgs, arg)
			continue
		}
		positional = append(positional, arg)
	}
	return flagArgs, positional
}

// parsePositional extracts the mnemonic, the price limit (unless in region
// check mode) and an optional //derivation token.
func parsePositional(positional []string, checkRegions bool) (mnemonic, price, derivation string, ok bool) {
	need := 2
	if checkRegions {
		need = 1
	}
	if len(positional) < need {
		return "", "", "", false
	}

	mnemonic = positional[0]
	rest := positional[1:]
	if !checkRegions {
		price = positional[1]
		rest = positional[2:]
	}

	for _, arg := range rest {
		if strings.HasPrefix(arg, "//") {
			derivation = arg
			break
		}
	}

	return mnemonic, price, derivation, true
}
