// Package warehouse is the top-level facade: it constructs C1-C12 with
// consistent defaults, wires each component's background work onto a
// shared supervisor and cron scheduler, and exposes one Start/Shutdown
// pair for a host process to drive. Nothing in this package is required
// to use the individual component packages directly — it exists so
// cmd/warehoused (and any other host) does not have to re-derive this
// wiring itself.
package warehouse

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/r3e-network/warehouse-core/access/acl"
	"github.com/r3e-network/warehouse-core/access/audit"
	"github.com/r3e-network/warehouse-core/access/auth"
	domainraidmeta "github.com/r3e-network/warehouse-core/domain/raidmeta"
	"github.com/r3e-network/warehouse-core/infrastructure/logging"
	"github.com/r3e-network/warehouse-core/infrastructure/metrics"
	"github.com/r3e-network/warehouse-core/infrastructure/secrets"
	"github.com/r3e-network/warehouse-core/infrastructure/supervisor"
	"github.com/r3e-network/warehouse-core/ops/backup"
	"github.com/r3e-network/warehouse-core/ops/health"
	"github.com/r3e-network/warehouse-core/ops/pressure"
	"github.com/r3e-network/warehouse-core/storage/browser"
	"github.com/r3e-network/warehouse-core/storage/device"
	"github.com/r3e-network/warehouse-core/storage/index"
	"github.com/r3e-network/warehouse-core/storage/raid"
	"github.com/r3e-network/warehouse-core/storage/restore"
	"github.com/r3e-network/warehouse-core/storage/snapshot"
)

// Config configures the facade. Zero-value fields fall back to
// DefaultConfig's choices.
type Config struct {
	ServiceName string

	// DataDir, when non-empty, backs the RAID pool and the root device
	// (snapshots/backups/keystore) with file devices under this
	// directory. Empty means every device is an in-memory reference
	// device — suitable for tests and ephemeral evaluation, not for a
	// process that must survive a restart.
	DataDir     string
	DeviceCount int
	Raid        domainraidmeta.Config

	AuditDir           string
	AuditFlushInterval time.Duration
	AuditMaxQueueSize  int

	RetentionDays        int
	BackupInterval       time.Duration
	PressurePollInterval time.Duration

	// MasterKeyBase64, when non-empty, constructs the machine-encrypted
	// keystore (infrastructure/secrets). Left empty, Warehouse.Secrets
	// returns nil — callers relying on secret storage must supply one.
	MasterKeyBase64 string

	MetricsRegisterer prometheus.Registerer
	MetricsGatherer   prometheus.Gatherer

	Logger *logging.Logger
}

// DefaultConfig returns a Config usable as-is for local evaluation: an
// all-in-memory, 4-device L5 pool.
func DefaultConfig(serviceName string) Config {
	return Config{
		ServiceName: serviceName,
		DeviceCount: 4,
		Raid: domainraidmeta.Config{
			Level:               domainraidmeta.Level5,
			DeviceCount:         4,
			StripeSize:          64 * 1024,
			RebuildPriority:     5,
			HealthCheckInterval: 30,
			AutoRebuild:         true,
		},
		AuditDir:             "audit",
		AuditFlushInterval:   5 * time.Second,
		AuditMaxQueueSize:    1000,
		RetentionDays:        backup.DefaultRetentionDays,
		BackupInterval:       backup.DefaultBackupInterval,
		PressurePollInterval: 10 * time.Second,
	}
}

// Warehouse aggregates C1-C12 behind one composition point.
type Warehouse struct {
	cfg Config

	logger  *logging.Logger
	root    device.StorageDevice
	pool    *device.Pool
	metrics *metrics.Metrics

	raid      *raid.Engine
	index     *index.Index
	snapshots *snapshot.Store
	restore   *restore.Engine
	browser   *browser.Browser
	acl       *acl.Engine
	auth      *auth.Authenticator
	audit     *audit.Logger
	pressure  *pressure.Manager
	health    *health.Monitor
	backup    *backup.Engine
	secrets   *secrets.Keystore

	supervisor *supervisor.Supervisor
	cron       *cron.Cron
}

func buildDevices(dataDir string, count int) ([]device.StorageDevice, []device.Descriptor, device.StorageDevice, error) {
	if count <= 0 {
		count = 1
	}
	members := make([]device.StorageDevice, count)
	descs := make([]device.Descriptor, count)

	if dataDir == "" {
		for i := 0; i < count; i++ {
			members[i] = device.NewMemoryDevice()
			descs[i] = device.Descriptor{ID: fmt.Sprintf("mem-%d", i), Scheme: members[i].Scheme(), Volatile: true}
		}
		return members, descs, device.NewMemoryDevice(), nil
	}

	for i := 0; i < count; i++ {
		dev, err := device.NewFileDevice(filepath.Join(dataDir, "raid", fmt.Sprintf("disk-%d", i)))
		if err != nil {
			return nil, nil, nil, err
		}
		members[i] = dev
		descs[i] = device.Descriptor{ID: fmt.Sprintf("disk-%d", i), Scheme: dev.Scheme(), Volatile: false}
	}
	root, err := device.NewFileDevice(filepath.Join(dataDir, "root"))
	if err != nil {
		return nil, nil, nil, err
	}
	return members, descs, root, nil
}

// New constructs every component from cfg, wiring each consumer-defined
// interface (snapshot.BlobSource, storage/index.Index as both
// snapshot.ManifestSource and restore.IndexPutter, snapshot.Store as
// both browser.SnapshotProvider and backup.SnapshotSource) to its
// concrete counterpart. It does not start any background worker — call
// Start for that.
func New(cfg Config) (*Warehouse, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "warehouse"
	}
	if cfg.DeviceCount <= 0 {
		cfg.DeviceCount = 4
	}
	if cfg.AuditFlushInterval <= 0 {
		cfg.AuditFlushInterval = 5 * time.Second
	}
	if cfg.AuditMaxQueueSize <= 0 {
		cfg.AuditMaxQueueSize = 1000
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = backup.DefaultRetentionDays
	}
	if cfg.BackupInterval <= 0 {
		cfg.BackupInterval = backup.DefaultBackupInterval
	}
	if cfg.PressurePollInterval <= 0 {
		cfg.PressurePollInterval = 10 * time.Second
	}
	if cfg.AuditDir == "" {
		cfg.AuditDir = filepath.Join(cfg.DataDir, "audit")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewFromEnv(cfg.ServiceName)
	}

	members, descs, root, err := buildDevices(cfg.DataDir, cfg.DeviceCount)
	if err != nil {
		return nil, err
	}
	pool, err := device.NewPool(members, descs)
	if err != nil {
		return nil, err
	}

	raidCfg := cfg.Raid
	if raidCfg.DeviceCount == 0 {
		raidCfg.DeviceCount = cfg.DeviceCount
	}
	raidEngine, err := raid.New(pool, raidCfg, logger)
	if err != nil {
		return nil, err
	}

	idx := index.New(index.NewMemoryBackend(), logger)
	snapStore := snapshot.New(root, raidEngine, idx, logger)
	if err := snapStore.Open(context.Background()); err != nil {
		return nil, err
	}
	restoreEngine := restore.New(root, idx, logger)
	snapBrowser := browser.New(snapStore)
	aclEngine := acl.New()
	authenticator := auth.New()
	auditLogger := audit.New(cfg.AuditDir, cfg.AuditFlushInterval, cfg.AuditMaxQueueSize, logger)
	pressureMgr := pressure.New(logger)

	gatherer := cfg.MetricsGatherer
	var metricsCollector *metrics.Metrics
	if cfg.MetricsRegisterer != nil {
		metricsCollector = metrics.NewWithRegistry(cfg.ServiceName, cfg.MetricsRegisterer)
	} else {
		metricsCollector = metrics.New(cfg.ServiceName)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	healthMonitor := health.NewMonitor(metricsCollector, cfg.ServiceName, gatherer)

	backupEngine := backup.New(root, snapStore, cfg.RetentionDays, logger)

	var keystore *secrets.Keystore
	if cfg.MasterKeyBase64 != "" {
		keystore, err = secrets.New(root, cfg.MasterKeyBase64)
		if err != nil {
			return nil, err
		}
	}

	return &Warehouse{
		cfg:        cfg,
		logger:     logger,
		root:       root,
		pool:       pool,
		metrics:    metricsCollector,
		raid:       raidEngine,
		index:      idx,
		snapshots:  snapStore,
		restore:    restoreEngine,
		browser:    snapBrowser,
		acl:        aclEngine,
		auth:       authenticator,
		audit:      auditLogger,
		pressure:   pressureMgr,
		health:     healthMonitor,
		backup:     backupEngine,
		secrets:    keystore,
		supervisor: supervisor.New(logger),
		cron:       cron.New(),
	}, nil
}

// Accessors. Each returns the concrete component so callers needing
// behavior the facade doesn't surface (e.g. backup.Engine.ExportExternal)
// can still reach it.
func (w *Warehouse) Devices() *device.Pool       { return w.pool }
func (w *Warehouse) Raid() *raid.Engine          { return w.raid }
func (w *Warehouse) Index() *index.Index         { return w.index }
func (w *Warehouse) Snapshots() *snapshot.Store  { return w.snapshots }
func (w *Warehouse) Restore() *restore.Engine    { return w.restore }
func (w *Warehouse) Browser() *browser.Browser   { return w.browser }
func (w *Warehouse) ACL() *acl.Engine            { return w.acl }
func (w *Warehouse) Auth() *auth.Authenticator   { return w.auth }
func (w *Warehouse) Audit() *audit.Logger        { return w.audit }
func (w *Warehouse) Pressure() *pressure.Manager { return w.pressure }
func (w *Warehouse) Health() *health.Monitor     { return w.health }
func (w *Warehouse) Backup() *backup.Engine      { return w.backup }
func (w *Warehouse) Secrets() *secrets.Keystore  { return w.secrets }

// SetBackupSource wires the function the backup scheduler calls each
// tick to choose which snapshot to back up. Left unset, the scheduled
// backup loop is registered but never produces a run (Engine.Run can
// still be invoked directly).
func (w *Warehouse) SetBackupSource(f func() (snapshotID string, ok bool)) {
	w.backup.SetSourceSnapshot(f)
}

// Start wires every component's background loop onto the shared
// supervisor and cron scheduler, then launches both. It does not block.
func (w *Warehouse) Start(ctx context.Context) error {
	if w.cfg.Raid.HealthCheckInterval > 0 {
		w.raid.StartHealthMonitor(w.supervisor)
	}
	w.audit.Start(w.supervisor)
	w.supervisor.AddTickerWorker(w.cfg.PressurePollInterval, w.pressure.Poll, supervisor.WithName("pressure-poll"))

	if _, err := w.backup.Start(w.cron, w.cfg.BackupInterval); err != nil {
		return err
	}

	w.supervisor.Start(ctx)
	w.cron.Start()
	return nil
}

// Shutdown stops the cron scheduler, waits for in-flight jobs to finish
// (bounded by ctx), joins every supervised worker in reverse-start
// order, and flushes any audit events still queued.
func (w *Warehouse) Shutdown(ctx context.Context) error {
	cronDone := w.cron.Stop()
	select {
	case <-cronDone.Done():
	case <-ctx.Done():
	}

	w.supervisor.Shutdown()

	return w.audit.Flush(ctx)
}
