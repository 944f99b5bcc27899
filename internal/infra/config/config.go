package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. It is built once at boot and
// passed down explicitly; nothing else reads the environment.
type Config struct {
	// Env tags the deployment (development, production, ...). It suffixes
	// the database name so environments never share data.
	Env string

	Database  DatabaseConfig
	WhatsApp  WhatsAppConfig
	Process   ProcessConfig
	Cache     CacheConfig
	Identity  IdentityConfig
	Metrics   MetricsConfig
	Sync      SyncConfig
	Reconnect ReconnectConfig
	Queue     QueueConfig
	Broadcast BroadcastConfig
}

// DatabaseConfig configures the MySQL application store.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	BaseName string
	// Name is derived: BaseName + "_" + Env.
	Name      string
	PoolSize  int
	SlowQuery time.Duration
}

// WhatsAppConfig configures the provider session.
type WhatsAppConfig struct {
	AuthDir      string
	QRDir        string
	DeviceName   string
	LoginTrigger string
	LoginURL     string
}

// ProcessConfig holds process-wide identifiers.
type ProcessConfig struct {
	OwnerJID   string
	Prefix     string
	ReactEmoji string
	AppName    string
	LogLevel   string
}

// CacheConfig bounds the in-memory cache tier.
type CacheConfig struct {
	MessagesTTL time.Duration
	EventsTTL   time.Duration
	GroupsTTL   time.Duration
	ContactsTTL time.Duration
	ChatsTTL    time.Duration

	SweepInterval  time.Duration
	PerCacheMax    int
	GlobalMax      int
	KeepAfterSweep int
	CloneOnGet     bool
	AutoClean      bool
}

// IdentityConfig controls LID/JID resolution.
type IdentityConfig struct {
	ResolveTTL      time.Duration
	BackfillOnStart bool
	BackfillBatch   int
}

// MetricsConfig configures the scrape listener.
type MetricsConfig struct {
	Enabled bool
	Host    string
	Port    int
	Path    string
}

// SyncConfig bounds the connection-open syncs.
type SyncConfig struct {
	GroupSyncTimeout time.Duration
	GroupStaleness   time.Duration
	HistoryLimit     int
}

// ReconnectConfig shapes the supervisor's retry policy.
type ReconnectConfig struct {
	Base        time.Duration
	MaxAttempts int
	Window      time.Duration
}

// QueueConfig bounds the write queue.
type QueueConfig struct {
	Size         int
	DrainTimeout time.Duration
}

// BroadcastMode is one fan-out preset.
type BroadcastMode struct {
	Concurrency int
	JitterMin   time.Duration
	JitterMax   time.Duration
	Retries     int
	Backoff     time.Duration
}

// BroadcastConfig holds the three presets plus progress cadence.
type BroadcastConfig struct {
	Default BroadcastMode
	Fast    BroadcastMode
	Safe    BroadcastMode

	ProgressEvery    int
	ProgressInterval time.Duration
	Rate             float64
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".zelador")

	return &Config{
		Env: "development",
		Database: DatabaseConfig{
			Host:      "",
			Port:      3306,
			User:      "",
			Password:  "",
			BaseName:  "zelador",
			PoolSize:  10,
			SlowQuery: 500 * time.Millisecond,
		},
		WhatsApp: WhatsAppConfig{
			AuthDir:      filepath.Join(baseDir, "auth"),
			QRDir:        filepath.Join(baseDir, "qr"),
			DeviceName:   "Zelador",
			LoginTrigger: "iniciar",
			LoginURL:     "https://zelador.app/login",
		},
		Process: ProcessConfig{
			OwnerJID:   "",
			Prefix:     "/",
			ReactEmoji: "🤖",
			AppName:    "zelador",
			LogLevel:   "info",
		},
		Cache: CacheConfig{
			MessagesTTL:    time.Hour,
			EventsTTL:      30 * time.Minute,
			GroupsTTL:      time.Hour,
			ContactsTTL:    6 * time.Hour,
			ChatsTTL:       6 * time.Hour,
			SweepInterval:  5 * time.Minute,
			PerCacheMax:    5000,
			GlobalMax:      20000,
			KeepAfterSweep: 1000,
			CloneOnGet:     false,
			AutoClean:      true,
		},
		Identity: IdentityConfig{
			ResolveTTL:      10 * time.Minute,
			BackfillOnStart: false,
			BackfillBatch:   500,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9531,
			Path:    "/metrics",
		},
		Sync: SyncConfig{
			GroupSyncTimeout: 30 * time.Second,
			GroupStaleness:   30 * time.Minute,
			HistoryLimit:     50,
		},
		Reconnect: ReconnectConfig{
			Base:        3 * time.Second,
			MaxAttempts: 5,
			Window:      10 * time.Minute,
		},
		Queue: QueueConfig{
			Size:         1024,
			DrainTimeout: 10 * time.Second,
		},
		Broadcast: BroadcastConfig{
			Default: BroadcastMode{
				Concurrency: 3,
				JitterMin:   800 * time.Millisecond,
				JitterMax:   2200 * time.Millisecond,
				Retries:     3,
				Backoff:     2 * time.Second,
			},
			Fast: BroadcastMode{
				Concurrency: 8,
				JitterMin:   200 * time.Millisecond,
				JitterMax:   600 * time.Millisecond,
				Retries:     2,
				Backoff:     time.Second,
			},
			Safe: BroadcastMode{
				Concurrency: 1,
				JitterMin:   2500 * time.Millisecond,
				JitterMax:   5 * time.Second,
				Retries:     4,
				Backoff:     3 * time.Second,
			},
			ProgressEvery:    10,
			ProgressInterval: 15 * time.Second,
			Rate:             1,
		},
	}
}

// Load builds the configuration from defaults plus ZELADOR_* environment
// overrides. Call Validate afterwards; Load itself never fails.
func Load() *Config {
	cfg := Default()

	cfg.Env = envStr("ZELADOR_ENV", cfg.Env)

	cfg.Database.Host = envStr("ZELADOR_DB_HOST", cfg.Database.Host)
	cfg.Database.Port = envInt("ZELADOR_DB_PORT", cfg.Database.Port)
	cfg.Database.User = envStr("ZELADOR_DB_USER", cfg.Database.User)
	cfg.Database.Password = envStr("ZELADOR_DB_PASSWORD", cfg.Database.Password)
	cfg.Database.BaseName = envStr("ZELADOR_DB_NAME", cfg.Database.BaseName)
	cfg.Database.PoolSize = envInt("ZELADOR_DB_POOL_SIZE", cfg.Database.PoolSize)
	cfg.Database.SlowQuery = envMillis("ZELADOR_DB_SLOW_QUERY_MS", cfg.Database.SlowQuery)

	cfg.WhatsApp.AuthDir = envStr("ZELADOR_AUTH_DIR", cfg.WhatsApp.AuthDir)
	cfg.WhatsApp.QRDir = envStr("ZELADOR_QR_DIR", cfg.WhatsApp.QRDir)
	cfg.WhatsApp.DeviceName = envStr("ZELADOR_DEVICE_NAME", cfg.WhatsApp.DeviceName)
	cfg.WhatsApp.LoginTrigger = envStr("ZELADOR_LOGIN_TRIGGER", cfg.WhatsApp.LoginTrigger)
	cfg.WhatsApp.LoginURL = envStr("ZELADOR_LOGIN_URL", cfg.WhatsApp.LoginURL)

	cfg.Process.OwnerJID = envStr("ZELADOR_OWNER_JID", cfg.Process.OwnerJID)
	cfg.Process.Prefix = envStr("ZELADOR_PREFIX", cfg.Process.Prefix)
	cfg.Process.ReactEmoji = envStr("ZELADOR_REACT_EMOJI", cfg.Process.ReactEmoji)
	cfg.Process.AppName = envStr("ZELADOR_APP_NAME", cfg.Process.AppName)
	cfg.Process.LogLevel = envStr("ZELADOR_LOG_LEVEL", cfg.Process.LogLevel)

	cfg.Cache.MessagesTTL = envSeconds("ZELADOR_CACHE_MESSAGES_TTL_S", cfg.Cache.MessagesTTL)
	cfg.Cache.EventsTTL = envSeconds("ZELADOR_CACHE_EVENTS_TTL_S", cfg.Cache.EventsTTL)
	cfg.Cache.GroupsTTL = envSeconds("ZELADOR_CACHE_GROUPS_TTL_S", cfg.Cache.GroupsTTL)
	cfg.Cache.ContactsTTL = envSeconds("ZELADOR_CACHE_CONTACTS_TTL_S", cfg.Cache.ContactsTTL)
	cfg.Cache.ChatsTTL = envSeconds("ZELADOR_CACHE_CHATS_TTL_S", cfg.Cache.ChatsTTL)
	cfg.Cache.SweepInterval = envSeconds("ZELADOR_CACHE_SWEEP_S", cfg.Cache.SweepInterval)
	cfg.Cache.PerCacheMax = envInt("ZELADOR_CACHE_MAX", cfg.Cache.PerCacheMax)
	cfg.Cache.GlobalMax = envInt("ZELADOR_CACHE_GLOBAL_MAX", cfg.Cache.GlobalMax)
	cfg.Cache.KeepAfterSweep = envInt("ZELADOR_CACHE_KEEP", cfg.Cache.KeepAfterSweep)
	cfg.Cache.CloneOnGet = envBool("ZELADOR_CACHE_CLONE_ON_GET", cfg.Cache.CloneOnGet)
	cfg.Cache.AutoClean = envBool("ZELADOR_CACHE_AUTO_CLEAN", cfg.Cache.AutoClean)

	cfg.Identity.BackfillOnStart = envBool("ZELADOR_BACKFILL_ON_START", cfg.Identity.BackfillOnStart)
	cfg.Identity.BackfillBatch = envInt("ZELADOR_BACKFILL_BATCH", cfg.Identity.BackfillBatch)

	cfg.Metrics.Enabled = envBool("ZELADOR_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Host = envStr("ZELADOR_METRICS_HOST", cfg.Metrics.Host)
	cfg.Metrics.Port = envInt("ZELADOR_METRICS_PORT", cfg.Metrics.Port)
	cfg.Metrics.Path = envStr("ZELADOR_METRICS_PATH", cfg.Metrics.Path)

	cfg.Sync.GroupSyncTimeout = envSeconds("ZELADOR_SYNC_TIMEOUT_S", cfg.Sync.GroupSyncTimeout)
	cfg.Sync.GroupStaleness = envMinutes("ZELADOR_GROUP_STALENESS_MIN", cfg.Sync.GroupStaleness)
	cfg.Sync.HistoryLimit = envInt("ZELADOR_HISTORY_LIMIT", cfg.Sync.HistoryLimit)

	cfg.Reconnect.Base = envSeconds("ZELADOR_RECONNECT_BASE_S", cfg.Reconnect.Base)
	cfg.Reconnect.MaxAttempts = envInt("ZELADOR_RECONNECT_MAX_ATTEMPTS", cfg.Reconnect.MaxAttempts)
	cfg.Reconnect.Window = envMinutes("ZELADOR_RECONNECT_WINDOW_MIN", cfg.Reconnect.Window)

	cfg.Queue.Size = envInt("ZELADOR_QUEUE_SIZE", cfg.Queue.Size)
	cfg.Queue.DrainTimeout = envSeconds("ZELADOR_QUEUE_DRAIN_S", cfg.Queue.DrainTimeout)

	cfg.Broadcast.Default.Concurrency = envInt("ZELADOR_BROADCAST_DEFAULT_CONCURRENCY", cfg.Broadcast.Default.Concurrency)
	cfg.Broadcast.Fast.Concurrency = envInt("ZELADOR_BROADCAST_FAST_CONCURRENCY", cfg.Broadcast.Fast.Concurrency)
	cfg.Broadcast.Safe.Concurrency = envInt("ZELADOR_BROADCAST_SAFE_CONCURRENCY", cfg.Broadcast.Safe.Concurrency)
	cfg.Broadcast.ProgressEvery = envInt("ZELADOR_BROADCAST_PROGRESS_EVERY", cfg.Broadcast.ProgressEvery)
	cfg.Broadcast.ProgressInterval = envSeconds("ZELADOR_BROADCAST_PROGRESS_S", cfg.Broadcast.ProgressInterval)

	cfg.Database.Name = fmt.Sprintf("%s_%s", cfg.Database.BaseName, cfg.Env)

	return cfg
}

// Validate reports every missing required value at once so a broken
// deployment is fixed in one pass.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "ZELADOR_DB_HOST")
	}
	if c.Database.User == "" {
		missing = append(missing, "ZELADOR_DB_USER")
	}
	if c.Database.Password == "" {
		missing = append(missing, "ZELADOR_DB_PASSWORD")
	}
	if c.Database.BaseName == "" {
		missing = append(missing, "ZELADOR_DB_NAME")
	}
	if c.Process.OwnerJID == "" {
		missing = append(missing, "ZELADOR_OWNER_JID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Database.PoolSize < 1 {
		return fmt.Errorf("invalid pool size %d", c.Database.PoolSize)
	}
	if c.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("invalid reconnect max attempts %d", c.Reconnect.MaxAttempts)
	}
	return nil
}

// EnsureDirs creates the auth and QR directories if they don't exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.WhatsApp.AuthDir, c.WhatsApp.QRDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Mode returns the broadcast preset by name, defaulting to Default.
func (c *BroadcastConfig) Mode(name string) BroadcastMode {
	switch strings.ToLower(name) {
	case "fast":
		return c.Fast
	case "safe":
		return c.Safe
	default:
		return c.Default
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func envMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}

func envMinutes(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return def
}
