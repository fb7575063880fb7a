// trendingd serves dataserver catalogs and trending data over REST.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtxerr/trending/config"
	"github.com/xtxerr/trending/internal/handler"
	"github.com/xtxerr/trending/internal/loader"
	"github.com/xtxerr/trending/internal/logging"
	"github.com/xtxerr/trending/internal/server"
	"github.com/xtxerr/trending/internal/site"
	"github.com/xtxerr/trending/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

var log = logging.Component("trendingd")

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	tlsCert := flag.String("tls-cert", "", "TLS certificate file")
	tlsKey := flag.String("tls-key", "", "TLS key file")
	dbPath := flag.String("db", "", "metastore database path (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	watch := flag.Bool("watch", false, "watch config for changes")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("trendingd", Version)
		return
	}

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		fatal("load config", err)
	}

	// CLI overrides
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *tlsCert != "" {
		cfg.TLS.CertFile = *tlsCert
	}
	if *tlsKey != "" {
		cfg.TLS.KeyFile = *tlsKey
	}
	if *dbPath != "" {
		cfg.Metastore.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}

	if err := loader.Validate(cfg); err != nil {
		fatal("invalid config", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fatal("invalid log level", err)
	}
	logging.Init(level, cfg.Log.JSON)
	log.Info("trendingd starting", "version", Version, "config", *cfgPath)

	sites, err := loader.ToSiteConfigs(cfg)
	if err != nil {
		fatal("convert sites", err)
	}
	keys := newPassphrases(promptPassphrase)
	if err := keys.resolve(sites, true); err != nil {
		fatal("ssh key", err)
	}

	// =========================================================================
	// Metastore
	// =========================================================================

	var (
		st     *store.Store
		pruner *store.Pruner
		loads  handler.LoadHistory
		opts   site.Options
	)
	if sc, ok := loader.ToStoreConfig(&cfg.Metastore); ok {
		log.Info("opening metastore", "path", sc.DSN)
		st, err = store.New(sc)
		if err != nil {
			fatal("open metastore", err)
		}
		loads = st
		opts.Observer = st.Observer()

		if retention := cfg.Metastore.Retention.Duration(); retention > 0 {
			pruner = store.NewPruner(st, retention, config.DefaultPruneInterval)
			pruner.Start()
		}
	} else {
		log.Info("metastore disabled")
	}

	// =========================================================================
	// Sites
	// =========================================================================

	registry := site.NewRegistry(opts)
	if err := registry.Apply(sites, cfg.DefaultSiteName()); err != nil {
		fatal("apply sites", err)
	}
	log.Info("sites configured", "sites", registry.Names(), "default", registry.Default())

	if cfg.Catalog.Warm {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), loadTimeout(cfg))
			defer cancel()
			if err := registry.Warm(ctx); err != nil {
				log.Warn("catalog warm-up incomplete", "error", err)
			}
		}()
	}

	if *watch {
		w, err := loader.NewWatcher(*cfgPath, loader.DefaultDebounce, func(next *loader.Config, err error) {
			if err != nil {
				log.Error("config reload failed, keeping current sites", "error", err)
				return
			}
			reload(registry, keys, next)
		})
		if err != nil {
			fatal("watch config", err)
		}
		w.Start()
		defer w.Stop()
	}

	// =========================================================================
	// Server
	// =========================================================================

	srv, err := server.New(server.Config{
		Handler: handler.New(registry, handler.Options{
			Loads:   loads,
			Parquet: loader.ToParquetOptions(&cfg.Export),
		}),
		Listen:      cfg.Listen,
		TLSCertFile: cfg.TLS.CertFile,
		TLSKeyFile:  cfg.TLS.KeyFile,
	})
	if err != nil {
		fatal("create server", err)
	}
	if err := srv.Listen(); err != nil {
		fatal("listen", err)
	}
	log.Info("listening", "addr", srv.Addr().String(), "tls", cfg.TLS.CertFile != "")

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	done := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer close(done)
		s := <-sig
		log.Info("shutting down", "signal", s.String())

		// Stop serving first, then release upstream connections
		ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("server shutdown", "error", err)
		}
		if err := registry.Close(); err != nil {
			log.Warn("close sites", "error", err)
		}

		// Metastore last, after the final load events
		if pruner != nil {
			pruner.Stop()
		}
		if st != nil {
			if err := st.Close(); err != nil {
				log.Warn("close metastore", "error", err)
			}
		}
	}()

	if err := srv.Run(); err != nil {
		fatal("server error", err)
	}
	<-done
	log.Info("stopped")
}

// reload applies a changed config to the registry. Settings other than
// the sites and catalog timing need a restart.
func reload(registry *site.Registry, keys *passphrases, cfg *loader.Config) {
	sites, err := loader.ToSiteConfigs(cfg)
	if err == nil {
		// No terminal to prompt from once running
		err = keys.resolve(sites, false)
	}
	if err == nil {
		err = registry.Apply(sites, cfg.DefaultSiteName())
	}
	if err != nil {
		log.Error("config reload failed, keeping current sites", "error", err)
		return
	}
	log.Info("config reloaded", "sites", registry.Names(), "default", registry.Default())
}

func loadTimeout(cfg *loader.Config) time.Duration {
	if d := cfg.Catalog.LoadTimeout.Duration(); d > 0 {
		return d
	}
	return config.DefaultLoadTimeout
}

func fatal(msg string, err error) {
	log.Error(msg, "error", err)
	fmt.Fprintf(os.Stderr, "trendingd: %s: %v\n", msg, err)
	os.Exit(1)
}
