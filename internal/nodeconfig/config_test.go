package nodeconfig

import (
	"testing"

	"github.com/spf13/cobra"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	RegisterFlags(cmd)
	return cmd
}

func TestLoadUsesDefaults(t *testing.T) {
	cmd := newTestCommand()
	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != DefaultDBPath {
		t.Fatalf("expected default db path, got %s", cfg.DBPath)
	}
	if cfg.RPCPort != DefaultRPCPort {
		t.Fatalf("expected default rpc port, got %d", cfg.RPCPort)
	}
	if cfg.IsAuthority {
		t.Fatal("expected is-authority to default to false")
	}
}

func TestLoadReflectsFlagOverrides(t *testing.T) {
	cmd := newTestCommand()
	if err := cmd.Flags().Set("is-authority", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cmd.Flags().Set("rpc-port", "9090"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cmd.Flags().Set("bootstrap-node", "/ip4/127.0.0.1/tcp/4001/p2p/abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsAuthority {
		t.Fatal("expected is-authority to be true")
	}
	if cfg.RPCPort != 9090 {
		t.Fatalf("expected rpc port 9090, got %d", cfg.RPCPort)
	}
	if cfg.BootstrapNode != "/ip4/127.0.0.1/tcp/4001/p2p/abc" {
		t.Fatalf("unexpected bootstrap node: %s", cfg.BootstrapNode)
	}
}
