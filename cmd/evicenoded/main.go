// Command evicenoded runs a single evice-chain node: the state store,
// blockchain, mempool, P2P overlay, RPC surface, and (when configured as
// the authority) the block production loop.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"

	"github.com/evice-network/evice-chain/internal/authority"
	"github.com/evice-network/evice-chain/internal/blockchain"
	"github.com/evice-network/evice-chain/internal/chain"
	"github.com/evice-network/evice-chain/internal/cryptoutil"
	"github.com/evice-network/evice-chain/internal/mempool"
	"github.com/evice-network/evice-chain/internal/nodeconfig"
	"github.com/evice-network/evice-chain/internal/p2p"
	"github.com/evice-network/evice-chain/internal/rpcserver"
	"github.com/evice-network/evice-chain/internal/state"
)

// mempoolCapacity bounds the number of pending transactions held at once.
const mempoolCapacity = 10_000

// genesisBalance and voterBalance are the reference starting balances for
// the two bootstrap accounts.
const (
	genesisBalance uint64 = 1_000_000_000
	voterBalance   uint64 = 500
)

func main() {
	root := &cobra.Command{
		Use:   "evicenoded",
		Short: "run an evice-chain node",
		RunE:  run,
	}
	nodeconfig.RegisterFlags(root)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := nodeconfig.Load(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("bad log level %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	if cfg.Bootstrap {
		return runBootstrap(cfg.DBPath)
	}

	store, err := state.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	bc, err := blockchain.Open(store, nil)
	if err != nil {
		return fmt.Errorf("open blockchain: %w", err)
	}

	pool := mempool.New(mempoolCapacity, bc)

	p2pNode, err := p2p.New(p2p.Config{
		ListenAddr:     fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.P2PPort),
		BootstrapPeers: bootstrapList(cfg.BootstrapNode),
		Chain:          bc,
		Mempool:        pool,
	})
	if err != nil {
		return fmt.Errorf("start p2p node: %w", err)
	}
	defer p2pNode.Close()

	log.WithFields(log.Fields{
		"peer_id": p2pNode.ID(),
		"addrs":   p2pNode.Addrs(),
	}).Info("p2p node listening")

	rpc := rpcserver.New(
		fmt.Sprintf("127.0.0.1:%d", cfg.RPCPort),
		bc,
		pool,
		func(tx chain.Transaction) { p2pNode.Publish(p2p.NewTransactionMessage(tx)) },
	)
	go func() {
		if err := rpc.Start(); err != nil {
			log.WithError(err).Error("rpc server stopped")
		}
	}()
	defer rpc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IsAuthority {
		authorityKP, err := cryptoutil.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("generate authority key pair: %w", err)
		}
		log.WithField("authority", chain.NewAddress(authorityKP.PublicKey)).Info("running as authority")

		loop := authority.New(bc, pool, authorityKP, func(b chain.Block) {
			p2pNode.Publish(p2p.NewBlockMessage(b))
		})
		go loop.Run(ctx)
	}

	waitForShutdown()
	return nil
}

func bootstrapList(addr string) []string {
	if addr == "" {
		return nil
	}
	return []string{addr}
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
}

// runBootstrap generates a genesis-funded account and a voter account,
// persists both to the state store at dbPath with their starting
// balances, prints their key material, and exits without starting the
// node.
func runBootstrap(dbPath string) error {
	genesisKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate genesis account: %w", err)
	}
	voterKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate voter account: %w", err)
	}

	store, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	genesisAddr := chain.NewAddress(genesisKP.PublicKey)
	if err := store.SetAccount(genesisAddr, chain.Account{Balance: genesisBalance}); err != nil {
		return fmt.Errorf("fund genesis account: %w", err)
	}
	voterAddr := chain.NewAddress(voterKP.PublicKey)
	if err := store.SetAccount(voterAddr, chain.Account{Balance: voterBalance}); err != nil {
		return fmt.Errorf("fund voter account: %w", err)
	}

	fmt.Println("genesis-funded account:")
	printKeyPair(genesisKP)
	fmt.Println("voter account:")
	printKeyPair(voterKP)
	return nil
}

func printKeyPair(kp cryptoutil.KeyPair) {
	fmt.Printf("  public_key:  %s\n", hex.EncodeToString(kp.PublicKey))
	fmt.Printf("  private_key: %s\n", hex.EncodeToString(kp.PrivateKey))
}
