package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/cuemby/vaultsync/pkg/access"
	"github.com/cuemby/vaultsync/pkg/blobstore"
	"github.com/cuemby/vaultsync/pkg/config"
	"github.com/cuemby/vaultsync/pkg/log"
	"github.com/cuemby/vaultsync/pkg/metrics"
	"github.com/cuemby/vaultsync/pkg/purger"
	"github.com/cuemby/vaultsync/pkg/store"
	"github.com/cuemby/vaultsync/pkg/syncconn"
	"github.com/cuemby/vaultsync/pkg/vaultchannel"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().String("db-path", "data/vaultsync.db", "Path to the SQLite database file")
	serveCmd.Flags().String("blob-root", "data/blobs", "Root directory for content-addressed blob storage")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	dbPath, _ := cmd.Flags().GetString("db-path")
	blobRoot, _ := cmd.Flags().GetString("blob-root")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(store.Config{Path: dbPath, Echo: cfg.Echo})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	blobs, err := blobstore.New(blobRoot)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	checker := access.NewChecker(st)
	hub := vaultchannel.NewHub(checker)

	var p *purger.Purger
	if cfg.Purge.Enabled {
		p = purger.New(st, blobs, purger.Config{
			Interval:   cfg.Purge.Interval,
			VaultAge:   cfg.Purge.VaultAge,
			PendingAge: cfg.Purge.PendingAge,
		})
		p.Start()
		defer p.Stop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/sync", syncHandler(st, blobs, hub))
	if cfg.Debug {
		mux.HandleFunc("/status", statusHandler(hub))
	}

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("addr", addr).Msg("vaultsyncd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	return srv.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func syncHandler(st *store.Store, blobs *blobstore.Store, hub *vaultchannel.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		conn := syncconn.New(ws, st, blobs, hub)
		conn.Serve(r.Context())
	}
}

// statusHandler is the debug-only GET /status route, listing every live
// vault channel and its connected device names.
func statusHandler(hub *vaultchannel.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"vaults": hub.Status()})
	}
}
