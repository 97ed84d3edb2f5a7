package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/adfharrison1/go-indexdb/pkg/config"
	"github.com/adfharrison1/go-indexdb/pkg/documents"
	"github.com/adfharrison1/go-indexdb/pkg/indexing"
	"github.com/adfharrison1/go-indexdb/pkg/server"
	"github.com/adfharrison1/go-indexdb/pkg/storage"
)

var (
	configPath string
	addr       string
	backend    string
	dataDir    string
	durability string

	rootCmd = &cobra.Command{
		Use:   "indexdb",
		Short: "Indexed document store over a transactional key-value backend",
		Long: `indexdb keeps JSON documents in stores with secondary indexes.
Every store is a primary collection plus one collection per index, kept
in sync inside the same transaction as each write.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Example: `  indexdb serve                                # in-memory, no persistence
  indexdb serve --data-dir /tmp/indexdb --durability full
  indexdb serve --backend sqlite --data-dir /var/lib/indexdb
  indexdb serve --config indexdb.yaml --addr :9090`,
		RunE: runServe,
	}

	collectionsCmd = &cobra.Command{
		Use:   "collections",
		Short: "List the physical collections of the state store",
		RunE:  runCollections,
	}

	storesCmd = &cobra.Command{
		Use:   "stores",
		Short: "List declared stores and their indexes as JSON",
		RunE:  runStores,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "State store backend: memory, badger or sqlite")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory for the state store")
	rootCmd.PersistentFlags().StringVar(&durability, "durability", "", "Memory backend durability: none, os or full")

	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :8080)")

	rootCmd.AddCommand(serveCmd, collectionsCmd, storesCmd)
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flags.Changed("backend") {
		cfg.Storage.Backend = backend
	}
	if flags.Changed("data-dir") {
		cfg.Storage.DataDir = dataDir
	}
	if flags.Changed("durability") {
		cfg.Storage.Durability = durability
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openService(cfg config.Config, metrics *indexing.Metrics) (*documents.Service, func(), error) {
	sm, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state store: %w", err)
	}
	opts := []documents.Option{
		documents.WithCacheSize(cfg.Service.CacheSize),
		documents.WithMaxAttempts(cfg.Service.MaxAttempts),
	}
	if metrics != nil {
		opts = append(opts, documents.WithMetrics(metrics))
	}
	closeFn := func() {
		if err := sm.Close(); err != nil {
			log.Printf("ERROR: Closing state store failed: %v", err)
		}
	}
	return documents.NewService(sm, opts...), closeFn, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Storage.DataDir == "" {
		log.Printf("WARN: No data directory configured - documents are lost on shutdown")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service, closeStore, err := openService(cfg, indexing.NewMetrics(reg))
	if err != nil {
		return err
	}
	defer closeStore()

	srv := server.NewServer(service, reg)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("INFO: Starting indexdb server on %s (backend %s)", cfg.Server.Addr, cfg.Storage.Backend)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}
	log.Println("INFO: Shutting down server...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("INFO: Server exited")
	return nil
}

func runCollections(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	service, closeStore, err := openService(cfg, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	infos, err := service.Collections(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, info := range infos {
		if info.Index == "" {
			fmt.Fprintf(out, "%s\tstore=%s\n", info.Name, info.Store)
		} else {
			fmt.Fprintf(out, "%s\tstore=%s\tindex=%s\n", info.Name, info.Store, info.Index)
		}
	}
	return nil
}

func runStores(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	service, closeStore, err := openService(cfg, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	stores, err := service.Stores(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stores)
}
