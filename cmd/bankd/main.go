// Command bankd runs a bank's peer-to-peer settlement relay: it loads (or
// creates) a bank from its ledger and listens for note hand-in and
// redemption submissions from other banks.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/offlinecheck/checkbook/checkbook/bank"
	"github.com/offlinecheck/checkbook/checkbook/clock"
	"github.com/offlinecheck/checkbook/checkbook/config"
	"github.com/offlinecheck/checkbook/internal/xcrypto"
	"github.com/offlinecheck/checkbook/network"
	"github.com/offlinecheck/checkbook/persistence/ledger"
)

func main() {
	bankID := flag.Uint("id", 0, "bank identifier")
	addr := flag.String("addr", "localhost:4000", "listen address")
	peers := flag.String("peers", "", "comma-separated peer relay addresses")
	flag.Parse()

	path := fmt.Sprintf("./tmp/bank_ledger_%d", *bankID)
	store, err := ledger.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	cfg := config.Default()
	clk := clock.System{}
	registry := bank.NewRegistry()

	b, err := store.LoadBank(uint32(*bankID), cfg, clk, registry)
	if err != nil {
		priv, genErr := xcrypto.GenerateKey()
		if genErr != nil {
			log.Fatal(genErr)
		}
		b = bank.New(uint32(*bankID), priv, cfg, clk, registry)
		if saveErr := store.SaveBank(b); saveErr != nil {
			log.Fatal(saveErr)
		}
		fmt.Printf("Bank %d created\n", *bankID)
	}

	relay := network.NewRelay(*addr, b, store)
	for _, p := range splitNonEmpty(*peers) {
		relay.AddPeer(p)
	}

	fmt.Printf("Bank %d relay listening on %s\n", *bankID, *addr)
	if err := relay.Serve(); err != nil {
		log.Fatal(err)
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
