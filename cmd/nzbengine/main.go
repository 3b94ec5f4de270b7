// Command nzbengine runs the Usenet streaming engine and IPTV HLS proxy: it
// wires configuration, logging, provider pools, the mount store, and the
// HTTP servers, then blocks until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nzbengine/pkg/config"
	"nzbengine/pkg/httpapi"
	"nzbengine/pkg/iptv"
	"nzbengine/pkg/logger"
	"nzbengine/pkg/mount"
	"nzbengine/pkg/nntp"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

func main() {
	configPath := flag.String("config", "./config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("nzbengine: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, cfg.DataDir)
	defer logger.Close()
	logger.Info("nzbengine starting", "listenAddr", cfg.ListenAddr, "mountStore", cfg.MountStore)

	manager, err := nntp.NewManager(cfg.EnabledServers())
	if err != nil {
		logger.Error("failed to build nntp provider pools", "error", err)
		os.Exit(1)
	}
	defer manager.Close()

	store, err := buildMountStore(cfg)
	if err != nil {
		logger.Error("failed to build mount store", "error", err)
		os.Exit(1)
	}

	streamService := mount.NewService(store, manager, cfg.PrefetchCount)
	defer streamService.Close()

	mux := http.NewServeMux()
	httpapi.NewRangeHandler(streamService).Register(mux)
	httpapi.NewOpsHandler(manager, nil).Register(mux)

	if cfg.IPTV.Portal != "" {
		portalClient := iptv.NewPortalClient(cfg.IPTV.StbUserAgent)
		defer portalClient.Close()
		streamFetcher := iptv.NewStreamService(cfg.IPTV.StbUserAgent)
		resolver := singleAccountResolver{cfg: cfg.IPTV}
		iptv.NewHandler(portalClient, streamFetcher, resolver).Register(mux)
	}

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown did not complete cleanly", "error", err)
	}
}

func buildMountStore(cfg *config.Config) (mount.Store, error) {
	switch cfg.MountStore {
	case "file":
		return mount.NewFileStore(afero.NewOsFs(), cfg.DataDir+"/mounts.json")
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return mount.NewRedisStore(client), nil
	default:
		return mount.NewMemoryStore(), nil
	}
}

// singleAccountResolver resolves every channel against the single
// statically-configured IPTV account; multi-account support is a
// deployment-level extension left to the MountStore/config wiring above.
type singleAccountResolver struct {
	cfg config.IPTVConfig
}

func (r singleAccountResolver) Resolve(ctx context.Context, account, channel string) (iptv.Account, string, error) {
	acct := iptv.Account{Name: account, Portal: r.cfg.Portal, Mac: r.cfg.Mac}
	cmd := "ffrt http://localhost/ch/" + channel
	return acct, cmd, nil
}
