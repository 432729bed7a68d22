package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/promiseland/internal/crypto"
	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/marketplace"
	"github.com/alanyoungcy/promiseland/internal/server"
	"github.com/alanyoungcy/promiseland/internal/server/handler"
	"github.com/alanyoungcy/promiseland/internal/server/ws"
)

const (
	deployLockKey = "deploy"
	deployLockTTL = 30 * time.Second
)

// DeployMode deploys the market with the configured owner key and fees, then
// writes the deployment artifact locally and, when S3 is wired, uploads it.
// When storage already holds a market, the existing settings are kept and the
// artifact is rewritten for them.
func (a *App) DeployMode(ctx context.Context, deps *Dependencies) (domain.MarketSettings, error) {
	a.logger.InfoContext(ctx, "starting deploy mode")

	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Deployer.PrivateKey,
		EncryptedKeyPath: a.cfg.Deployer.EncryptedKeyPath,
		KeyPassword:      a.cfg.Deployer.KeyPassword,
	})
	if err != nil {
		return domain.MarketSettings{}, fmt.Errorf("deploy mode: load deployer key: %w", err)
	}

	params, err := a.deployParams()
	if err != nil {
		return domain.MarketSettings{}, fmt.Errorf("deploy mode: %w", err)
	}

	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, deployLockKey, deployLockTTL)
		if err != nil {
			return domain.MarketSettings{}, fmt.Errorf("deploy mode: acquire lock: %w", err)
		}
		defer unlock()
	}

	settings, err := deps.Market.Deploy(ctx, signer.Address(), params)
	switch {
	case errors.Is(err, domain.ErrAlreadyDeployed):
		settings, err = deps.Market.Settings(ctx)
		if err != nil {
			return domain.MarketSettings{}, fmt.Errorf("deploy mode: read existing market: %w", err)
		}
		a.logger.WarnContext(ctx, "market already deployed; keeping existing settings",
			slog.String("address", settings.Address.Hex()),
			slog.String("owner", settings.Owner.Hex()),
		)
	case err != nil:
		return domain.MarketSettings{}, fmt.Errorf("deploy mode: %w", err)
	}

	artifact := marketplace.NewArtifact(settings.Address)
	if err := marketplace.WriteArtifact(a.cfg.Market.ArtifactPath, artifact); err != nil {
		return domain.MarketSettings{}, fmt.Errorf("deploy mode: %w", err)
	}
	a.logger.InfoContext(ctx, "PromiseLand deployed to",
		slog.String("address", settings.Address.Hex()),
		slog.String("artifact", a.cfg.Market.ArtifactPath),
	)

	if deps.BlobWriter != nil && a.cfg.S3.ArtifactKey != "" {
		data, err := artifact.Marshal()
		if err != nil {
			return domain.MarketSettings{}, fmt.Errorf("deploy mode: %w", err)
		}
		if err := deps.BlobWriter.Put(ctx, a.cfg.S3.ArtifactKey, bytes.NewReader(data), "application/json"); err != nil {
			return domain.MarketSettings{}, fmt.Errorf("deploy mode: upload artifact: %w", err)
		}
		a.logger.InfoContext(ctx, "artifact uploaded", slog.String("key", a.cfg.S3.ArtifactKey))
	}
	return settings, nil
}

func (a *App) deployParams() (marketplace.DeployParams, error) {
	listingFee, err := a.cfg.Market.ListingFeeWei()
	if err != nil {
		return marketplace.DeployParams{}, fmt.Errorf("listing fee: %w", err)
	}
	likingPrice, err := a.cfg.Market.LikingPriceWei()
	if err != nil {
		return marketplace.DeployParams{}, fmt.Errorf("liking price: %w", err)
	}
	if a.cfg.Market.CommissionBps < 0 || a.cfg.Market.CommissionBps > domain.MaxCommissionBps {
		return marketplace.DeployParams{}, fmt.Errorf("commission %d bps: %w", a.cfg.Market.CommissionBps, domain.ErrInvalidArgument)
	}
	recipient := domain.LikeFeeRecipient(a.cfg.Market.LikeFeeRecipient)
	if recipient == "" {
		recipient = domain.LikeFeeToMarketOwner
	}
	return marketplace.DeployParams{
		ChainID:          a.cfg.Chain.ResolvedChainID(),
		ListingFee:       listingFee,
		LikingPrice:      likingPrice,
		CommissionBps:    uint16(a.cfg.Market.CommissionBps),
		LikeFeeRecipient: recipient,
	}, nil
}

// ServeMode runs the API server, the WebSocket hub and the event archiver
// until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	deployed, err := deps.Market.Deployed(ctx)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	if !deployed {
		a.logger.WarnContext(ctx, "no market deployed yet; calls fail until deploy mode runs")
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps)
	}

	if deps.Archiver != nil && a.cfg.S3.ArchiveInterval.Duration > 0 {
		g.Go(func() error {
			return a.runArchiver(gctx, deps)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// FullMode deploys the market when storage holds none yet, then serves it.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	if _, err := a.DeployMode(ctx, deps); err != nil {
		return err
	}
	return a.ServeMode(ctx, deps)
}

// startHTTPServer adds the hub, the event relay, the HTTP server and its
// shutdown watcher to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// With a bus every replica sees every event through Redis; without one
	// only local calls reach the hub.
	if deps.SignalBus != nil {
		g.Go(func() error {
			return hub.RelayBus(ctx, deps.SignalBus)
		})
	} else {
		deps.Market.OnEvent(hub.PublishEvent)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		RateLimit:       a.cfg.Server.RateLimit,
		RateWindow:      time.Minute,
		SignatureMaxAge: a.cfg.Server.SignatureMaxAge.Duration,
		Limiter:         deps.RateLimiter,
		Nonces:          deps.NonceStore,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.Market, a.logger),
		Market:   handler.NewMarketHandler(deps.Market, a.logger),
		Nfts:     handler.NewNftHandler(deps.Market, a.logger),
		Accounts: handler.NewAccountHandler(deps.Market, a.logger),
		Admin:    handler.NewAdminHandler(deps.Market, a.logger),
		Events:   handler.NewEventHandler(deps.Market, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		if a.listen == nil {
			return srv.Start()
		}
		ln, err := a.listen()
		if err != nil {
			return fmt.Errorf("http server: listen: %w", err)
		}
		return srv.Serve(ln)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runArchiver copies new events to blob storage on every tick, resuming from
// the last archived sequence number.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	last, err := deps.Archiver.LastArchived(ctx)
	if err != nil {
		return fmt.Errorf("archiver: %w", err)
	}

	ticker := time.NewTicker(a.cfg.S3.ArchiveInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			seq, err := deps.Archiver.Archive(ctx, last)
			if err != nil {
				a.logger.ErrorContext(ctx, "event archive failed",
					slog.Uint64("after", last),
					slog.String("error", err.Error()),
				)
				continue
			}
			last = seq
		}
	}
}

// listenFunc lets tests bind the server to an ephemeral port.
type listenFunc func() (net.Listener, error)
