// Package purger implements the background reclamation task (C6): hard
// deletion of soft-deleted vaults and cleanup of abandoned uploads.
package purger

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/vaultsync/pkg/blobstore"
	"github.com/cuemby/vaultsync/pkg/log"
	"github.com/cuemby/vaultsync/pkg/metrics"
	"github.com/cuemby/vaultsync/pkg/store"
)

// Config controls the purger's schedule and retention windows, mirroring
// the purge__* configuration keys.
type Config struct {
	Interval   time.Duration
	VaultAge   time.Duration
	PendingAge time.Duration
}

// Purger periodically reclaims storage for deleted vaults and stale
// pending uploads.
type Purger struct {
	store  *store.Store
	blobs  *blobstore.Store
	cfg    Config
	logger zerolog.Logger
	stopCh chan struct{}
}

// New constructs a Purger. Start must be called to begin its loop.
func New(s *store.Store, b *blobstore.Store, cfg Config) *Purger {
	return &Purger{
		store:  s,
		blobs:  b,
		cfg:    cfg,
		logger: log.WithComponent("purger"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the purger's sleep/purge loop in a new goroutine.
func (p *Purger) Start() {
	go p.run()
}

// Stop signals the purger to exit. A purger that is sleeping exits at once;
// a pass that is already running completes first. No new pass starts after
// the signal. Stop does not wait for the loop to exit, and must be called
// at most once.
func (p *Purger) Stop() {
	close(p.stopCh)
}

func (p *Purger) run() {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.cfg.Interval).Msg("purger started")

	for {
		select {
		case <-ticker.C:
			select {
			case <-p.stopCh:
				p.logger.Info().Msg("purger stopped")
				return
			default:
			}
			if err := p.Purge(); err != nil {
				p.logger.Error().Err(err).Msg("purge pass failed")
			}
		case <-p.stopCh:
			p.logger.Info().Msg("purger stopped")
			return
		}
	}
}

// Purge runs one complete pass: hard-delete every soft-deleted vault, then
// reclaim pending uploads older than PendingAge, then VACUUM.
//
// Per-table deletes commit independently rather than under one enclosing
// transaction, since SQLite enforces no cross-table cascade here and a
// single long transaction would hold the writer lock for the whole pass.
func (p *Purger) Purge() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.PurgeDuration)
		metrics.PurgeRunsTotal.Inc()
	}()

	if err := p.purgeDeletedVaults(); err != nil {
		p.logger.Error().Err(err).Msg("purge deleted vaults failed")
	}
	if err := p.purgeStalePending(); err != nil {
		p.logger.Error().Err(err).Msg("purge stale pending uploads failed")
	}
	if err := p.store.Vacuum(); err != nil {
		p.logger.Error().Err(err).Msg("vacuum failed")
	}
	return nil
}

func (p *Purger) purgeDeletedVaults() error {
	ids, err := p.store.ListDeletedVaultsOlderThan(time.Now().Add(-p.cfg.VaultAge))
	if err != nil {
		return err
	}
	for _, vaultID := range ids {
		if err := p.purgeVault(vaultID); err != nil {
			p.logger.Error().Err(err).Int64("vault_id", vaultID).Msg("failed to purge vault")
			continue
		}
		metrics.VaultsPurgedTotal.Inc()
		p.logger.Info().Int64("vault_id", vaultID).Msg("purged deleted vault")
	}
	return nil
}

func (p *Purger) purgeVault(vaultID int64) error {
	if err := p.store.DeleteVaultPending(vaultID); err != nil {
		return err
	}
	if err := p.store.DeleteVaultShares(vaultID); err != nil {
		return err
	}
	// Best-effort: a missing blob directory is not a failure.
	if err := p.blobs.RemoveVaultDir(strconv.FormatInt(vaultID, 10)); err != nil {
		p.logger.Warn().Err(err).Int64("vault_id", vaultID).Msg("failed to remove vault blob directory")
	}
	if err := p.store.DeleteVaultRecords(vaultID); err != nil {
		return err
	}
	if err := p.store.DeleteVault(vaultID); err != nil {
		return err
	}
	return nil
}

func (p *Purger) purgeStalePending() error {
	cutoff := time.Now().Add(-p.cfg.PendingAge)
	stale, err := p.store.ListStalePending(cutoff)
	if err != nil {
		return err
	}
	for _, pf := range stale {
		vaultID := strconv.FormatInt(pf.VaultID, 10)
		if err := p.blobs.Remove(vaultID, pf.Hash); err != nil {
			p.logger.Warn().Err(err).Int64("vault_id", pf.VaultID).Str("hash", pf.Hash).
				Msg("failed to remove stale pending blob")
		}
		if err := p.store.DeletePendingByID(pf.ID); err != nil {
			p.logger.Error().Err(err).Int64("pending_id", pf.ID).Msg("failed to delete stale pending row")
			continue
		}
		metrics.PendingFilesPurgedTotal.Inc()
	}
	return nil
}
