// Package catalog persists StoreId -> RecordingInfo rows in PostgreSQL
// via gorm, grounded on the teacher's db/postgres.go: the same
// gorm.Open(postgres.Open(dsn)) connection pattern, the same
// sqlDB.SetMaxIdleConns/SetMaxOpenConns/SetConnMaxLifetime pool tuning,
// and the same AutoMigrate-then-Create/Find repository shape, applied
// to recording metadata instead of RabbitMQ message logs.
//
// A GrpcServerSink answers ListRecordings/OpenRecording (spec.md §6) by
// querying this store rather than scanning in-memory ChunkStores, so a
// recording started by one process remains listable after that process
// exits and a new one takes over the same catalog database.
package catalog

import (
	"time"

	"github.com/rerun-go/rerun/logmsg"
	"github.com/rerun-go/rerun/rid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// recordingRow is the gorm model backing one cataloged StoreId. The
// StoreId's three fields are flattened into their own columns (rather
// than serialized as one opaque string) so ListRecordings can filter
// and order by them directly.
type recordingRow struct {
	gorm.Model
	ApplicationId string `gorm:"index"`
	RecordingId   string `gorm:"uniqueIndex"`
	Kind          string
	StoreSource   string
	RecordingName string
	StartTimeNs   int64
}

func (recordingRow) TableName() string { return "recordings" }

func toStoreInfo(r recordingRow) logmsg.StoreInfo {
	kind := rid.StoreKindRecording
	if r.Kind == rid.StoreKindBlueprint.String() {
		kind = rid.StoreKindBlueprint
	}
	return logmsg.StoreInfo{
		StoreId: rid.StoreId{
			ApplicationId: r.ApplicationId,
			RecordingId:   r.RecordingId,
			Kind:          kind,
		},
		StoreSource:   r.StoreSource,
		RecordingName: r.RecordingName,
	}
}

func fromStoreInfo(info logmsg.StoreInfo, startTime time.Time) recordingRow {
	return recordingRow{
		ApplicationId: info.StoreId.ApplicationId,
		RecordingId:   info.StoreId.RecordingId,
		Kind:          info.StoreId.Kind.String(),
		StoreSource:   info.StoreSource,
		RecordingName: info.RecordingName,
		StartTimeNs:   startTime.UnixNano(),
	}
}

// Config mirrors the connection-pool knobs the teacher's PGInfo hardcodes,
// made configurable instead (grounded on config.Config's viper-precedence
// loading of everything else in this module's ambient stack).
type Config struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
	}
}

// Catalog is a PostgreSQL-backed StoreId -> RecordingInfo directory.
type Catalog struct {
	db *gorm.DB
}

// Open connects to PostgreSQL per cfg, applies the teacher's pool
// settings, and runs AutoMigrate for the recordings table.
func Open(cfg Config) (*Catalog, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&recordingRow{}); err != nil {
		return nil, err
	}

	return &Catalog{db: db}, nil
}

// OpenWithDB wraps an already-connected *gorm.DB, letting callers (and
// tests) share one connection across multiple packages or swap in a
// different driver than postgres.Open would give them.
func OpenWithDB(db *gorm.DB) (*Catalog, error) {
	if err := db.AutoMigrate(&recordingRow{}); err != nil {
		return nil, err
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Register upserts info's catalog row, keyed by its StoreId's
// RecordingId alone (application id and kind are not part of the key). A
// GrpcServerSink calls this on every SetStoreInfo it receives, so the
// catalog always reflects the most recent name/source for a recording.
func (c *Catalog) Register(info logmsg.StoreInfo) error {
	row := fromStoreInfo(info, time.Now())
	return c.db.Where(recordingRow{RecordingId: info.StoreId.RecordingId}).
		Assign(row).
		FirstOrCreate(&recordingRow{}).Error
}

// ListRecordings returns every cataloged StoreInfo, most recently
// started first, backing the ListRecordings half of spec.md §6's gRPC
// surface.
func (c *Catalog) ListRecordings() ([]logmsg.StoreInfo, error) {
	var rows []recordingRow
	if err := c.db.Order("start_time_ns DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]logmsg.StoreInfo, len(rows))
	for i, row := range rows {
		out[i] = toStoreInfo(row)
	}
	return out, nil
}

// OpenRecording looks up one StoreInfo by its RecordingId, backing
// OpenRecording's store-location lookup (spec.md §6). The second return
// value is false when no such recording has been registered.
func (c *Catalog) OpenRecording(recordingId string) (logmsg.StoreInfo, bool, error) {
	var row recordingRow
	err := c.db.Where("recording_id = ?", recordingId).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return logmsg.StoreInfo{}, false, nil
	}
	if err != nil {
		return logmsg.StoreInfo{}, false, err
	}
	return toStoreInfo(row), true, nil
}
