package badger

import "time"

type Config struct {
	Path           string        `env:"BADGER_PATH" envDefault:"./data/jobkit"`   // Path is the database directory. Ignored when InMemory is set.
	InMemory       bool          `env:"BADGER_IN_MEMORY" envDefault:"false"`     // InMemory keeps everything in RAM; data is lost on Close.
	SyncWrites     bool          `env:"BADGER_SYNC_WRITES" envDefault:"true"`    // SyncWrites fsyncs every commit.
	GCInterval     time.Duration `env:"BADGER_GC_INTERVAL" envDefault:"5m"`      // GCInterval is the value log GC period; zero disables it.
	GCDiscardRatio float64       `env:"BADGER_GC_DISCARD_RATIO" envDefault:"0.5"` // GCDiscardRatio is passed to RunValueLogGC.
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}
