package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/config"
	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/marketplace"
)

// Hardhat account #0.
const (
	ownerKey  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	ownerAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Deployer.PrivateKey = ownerKey
	cfg.Market.ArtifactPath = filepath.Join(t.TempDir(), "abi", "PromiseLand.json")
	return &cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeployModeWritesArtifact(t *testing.T) {
	cfg := testConfig(t, "deploy")
	a := New(cfg, testLogger())
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))

	artifact, err := marketplace.ReadArtifact(cfg.Market.ArtifactPath)
	require.NoError(t, err)
	require.Equal(t, marketplace.ContractAddress(common.HexToAddress(ownerAddr)), artifact.Address)
	require.NotEmpty(t, artifact.ABI)
}

func TestDeployModeKeepsExistingMarket(t *testing.T) {
	cfg := testConfig(t, "deploy")
	cfg.Market.CommissionBps = 250
	a := New(cfg, testLogger())
	ctx := context.Background()

	deps, cleanup, err := Wire(ctx, cfg, a.logger)
	require.NoError(t, err)
	defer cleanup()

	first, err := a.DeployMode(ctx, deps)
	require.NoError(t, err)
	require.Equal(t, uint16(250), first.CommissionBps)
	require.Equal(t, "1000000000000000", first.LikingPrice.String())

	cfg.Market.CommissionBps = 500
	second, err := a.DeployMode(ctx, deps)
	require.NoError(t, err)
	require.Equal(t, first.Address, second.Address)
	require.Equal(t, uint16(250), second.CommissionBps)
}

func TestDeployModeRejectsBadSettings(t *testing.T) {
	ctx := context.Background()

	cases := map[string]func(*config.Config){
		"bad fee":       func(c *config.Config) { c.Market.ListingFee = "ten" },
		"commission":    func(c *config.Config) { c.Market.CommissionBps = 10_001 },
		"recipient":     func(c *config.Config) { c.Market.LikeFeeRecipient = "nobody" },
		"missing key":   func(c *config.Config) { c.Deployer.PrivateKey = "" },
		"malformed key": func(c *config.Config) { c.Deployer.PrivateKey = "0x1234" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, "deploy")
			mutate(cfg)
			a := New(cfg, testLogger())

			deps, cleanup, err := Wire(ctx, cfg, a.logger)
			require.NoError(t, err)
			defer cleanup()

			_, err = a.DeployMode(ctx, deps)
			require.Error(t, err)

			deployed, err := deps.Market.Deployed(ctx)
			require.NoError(t, err)
			require.False(t, deployed)
		})
	}
}

func TestFullModeServesUntilCancelled(t *testing.T) {
	cfg := testConfig(t, "full")
	a := New(cfg, testLogger())
	defer a.Close()

	addrCh := make(chan string, 1)
	a.listen = func() (net.Listener, error) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		addrCh <- ln.Addr().String()
		return ln, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var base string
	select {
	case addr := <-addrCh:
		base = "http://" + addr
	case err := <-done:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/api/market")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var settings domain.MarketSettings
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&settings))
	require.Equal(t, common.HexToAddress(ownerAddr), settings.Owner)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestUnsupportedMode(t *testing.T) {
	cfg := testConfig(t, "trade")
	a := New(cfg, testLogger())
	defer a.Close()

	require.ErrorContains(t, a.Run(context.Background()), "unsupported mode")
}
