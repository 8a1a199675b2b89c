// Package storage is the reference BatchPool: the only part of the
// storage backend the request-admission core needs, narrowed to batch-id
// bookkeeping. The collection and BSO tables a full Sync 1.5 storage
// engine would carry are out of scope -- only enough sqlite schema to
// create, append to, and look up a batch upload's id survives here,
// adapted from the teacher's sqlite-backed batch table.
package storage

import (
	"database/sql"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var ErrBatchNotFound = errors.New("batch not found")

// now returns milliseconds since the epoch, rounded the same way the
// teacher's syncstorage.Now() does, so batch Modified columns compare
// consistently with Sync's other timestamp fields.
func now() int64 {
	ms := time.Now().UnixNano() / 1e6
	return ms + 10 - (ms % 10)
}

// BatchPool is the admission core's view of the batch backing store: a
// handle to borrow, and a predicate to validate an already-admitted
// batch id string. web.BatchIDValidator only needs ValidateBatchID; the
// rest of this interface exists for the handlers downstream of
// admission that actually append records to and commit a batch.
type BatchPool interface {
	ValidateBatchID(id string) bool
	Borrow() (*Batch, error)
	Ping() error
}

// Batch is a transaction handle over one collection's open batch rows,
// mirroring the teacher's BatchCreate/BatchAppend/BatchLoad/BatchRemove
// split but storing only the batch id and its accumulated BSO id count,
// since the BSOs themselves are never persisted by this package.
type Batch struct {
	pool *SqlitePool
}

// SqlitePool is the reference BatchPool implementation: a single sqlite
// database holding one Batches table, guarded by a mutex the way the
// teacher's DB type guards every statement with sync.RWMutex.
type SqlitePool struct {
	sync.RWMutex
	db *sql.DB
}

// NewSqlitePool opens (and migrates) dsn as a BatchPool. ":memory:" is
// the default DSN (config.PoolConfig), suitable for tests and for
// standalone operation without a real deployment volume.
func NewSqlitePool(dsn string) (*SqlitePool, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "storage: could not open sqlite3 database")
	}

	p := &SqlitePool{db: db}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *SqlitePool) migrate() error {
	_, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS Batches (
		Id           INTEGER PRIMARY KEY AUTOINCREMENT,
		CollectionId INTEGER NOT NULL,
		Modified     INTEGER NOT NULL,
		NumIds       INTEGER NOT NULL DEFAULT 0
	)`)
	return errors.Wrap(err, "storage: could not create Batches table")
}

// Ping backs web.HealthChecker: /__heartbeat__ reports unhealthy if the
// sqlite handle can't answer a trivial round trip.
func (p *SqlitePool) Ping() error {
	return p.db.Ping()
}

// ValidateBatchID implements web.BatchIDValidator: id must parse as a
// positive integer and name a batch row that still exists. §4.10 treats
// "well-formed but not found" and "malformed" identically -- both are a
// 400, the caller never learns which.
func (p *SqlitePool) ValidateBatchID(id string) bool {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return false
	}

	p.RLock()
	defer p.RUnlock()

	var found int64
	err = p.db.QueryRow("SELECT Id FROM Batches WHERE Id = ?", n).Scan(&found)
	return err == nil
}

// Borrow checks out a transaction handle for appending to or creating
// batches. The teacher's pool.go borrows a *DB from a fixed-size pool of
// sqlite connections keyed by uid shard; this reference implementation
// has exactly one shard, so Borrow always succeeds immediately.
func (p *SqlitePool) Borrow() (*Batch, error) {
	return &Batch{pool: p}, nil
}

// Create starts a new batch for collectionID, returning its id as the
// decimal string form ValidateBatchID and the wire `batch` value share.
func (b *Batch) Create(collectionID int) (string, error) {
	b.pool.Lock()
	defer b.pool.Unlock()

	result, err := b.pool.db.Exec(
		"INSERT INTO Batches (CollectionId, Modified, NumIds) VALUES (?, ?, 0)",
		collectionID, now())
	if err != nil {
		return "", errors.Wrap(err, "storage: could not create batch")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return "", errors.Wrap(err, "storage: could not read new batch id")
	}
	return strconv.FormatInt(id, 10), nil
}

// Append records that count more ids landed in batch id, bumping its
// Modified column so Purge can reap stale batches by age.
func (b *Batch) Append(id string, count int) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ErrBatchNotFound
	}

	b.pool.Lock()
	defer b.pool.Unlock()

	result, err := b.pool.db.Exec(
		"UPDATE Batches SET Modified = ?, NumIds = NumIds + ? WHERE Id = ?",
		now(), count, n)
	if err != nil {
		return errors.Wrap(err, "storage: could not append to batch")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// Remove deletes a committed or abandoned batch.
func (b *Batch) Remove(id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ErrBatchNotFound
	}

	b.pool.Lock()
	defer b.pool.Unlock()

	_, err = b.pool.db.Exec("DELETE FROM Batches WHERE Id = ?", n)
	return errors.Wrap(err, "storage: could not remove batch")
}

// Purge deletes every batch older than ttlMillis, the same sweep the
// teacher's BatchPurge ran periodically to bound the Batches table.
func (p *SqlitePool) Purge(ttlMillis int64) (int, error) {
	p.Lock()
	defer p.Unlock()

	result, err := p.db.Exec("DELETE FROM Batches WHERE (? - Modified) >= ?", now(), ttlMillis)
	if err != nil {
		return 0, errors.Wrap(err, "storage: could not purge batches")
	}
	purged, err := result.RowsAffected()
	return int(purged), err
}

// Close releases the underlying sqlite handle.
func (p *SqlitePool) Close() error {
	return p.db.Close()
}
