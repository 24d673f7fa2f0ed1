package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dmitrymomot/jobkit/pkg/logger"
)

// DB is a badger database with an optional value log GC loop.
type DB struct {
	*badger.DB
	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
}

// Open opens the database described by cfg. A nil log silences badger.
func Open(cfg Config, log *slog.Logger) (*DB, error) {
	if cfg.GCDiscardRatio < 0 || cfg.GCDiscardRatio > 1 {
		return nil, ErrInvalidGCRatio
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, ErrPathRequired
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if log != nil {
		opts = opts.WithLogger(&badgerLogger{log: log.With(logger.Component("badger"))})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	db := &DB{DB: bdb, logger: log}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		db.stop = make(chan struct{})
		db.done = make(chan struct{})
		go db.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return db, nil
}

// Close stops the GC loop and closes the database.
func (d *DB) Close() error {
	if d.stop != nil {
		close(d.stop)
		<-d.done
	}
	return d.DB.Close()
}

func (d *DB) gcLoop(interval time.Duration, ratio float64) {
	defer close(d.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			err := d.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && d.logger != nil {
				d.logger.Warn("badger value log gc failed", logger.Error(err))
			}
		}
	}
}

type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
