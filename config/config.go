package config

import (
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/utrading/utrading-price-insight/pkg/logger"
)

type PriceInsight struct {
	BridgeURL              string        `toml:"bridge_url"`
	HealthServerAddr       string        `toml:"health_server_addr"`
	MetadataReloadInterval time.Duration `toml:"metadata_reload_interval"`
	MessageQueueSize       int           `toml:"message_queue_size"`
}

// Lookup 价格显示与查询开关
type Lookup struct {
	ShowRegion                   bool `toml:"show_region"`
	ShowDatacenter               bool `toml:"show_datacenter"`
	ShowWorld                    bool `toml:"show_world"`
	ShowMostRecentPurchase       bool `toml:"show_most_recent_purchase"`
	ShowMostRecentPurchaseRegion bool `toml:"show_most_recent_purchase_region"`
	UseCurrentWorld              bool `toml:"use_current_world"`
	PrefetchInventory            bool `toml:"prefetch_inventory"`
	RefreshWithAlt               bool `toml:"refresh_with_alt"`
}

type Coalescer struct {
	Window               time.Duration `toml:"window"`
	MaxBatchSize         int           `toml:"max_batch_size"`
	MaxConcurrentBatches int           `toml:"max_concurrent_batches"`
	ImmediateMaxActive   int           `toml:"immediate_max_active"`
	PriceTTL             time.Duration `toml:"price_ttl"`
}

type Universalis struct {
	BaseURL           string        `toml:"base_url"`
	API               string        `toml:"api"` // aggregated | legacy
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Burst             int           `toml:"burst"`
	UserAgent         string        `toml:"user_agent"`
	ForceIPv4         bool          `toml:"force_ipv4"`
}

type Database struct {
	Driver             string   `toml:"driver"` // sqlite | mysql
	DSN                string   `toml:"dsn"`
	Replicas           []string `toml:"replicas"`
	MaxIdleConnections int      `toml:"max_idle_connections"`
	MaxOpenConnections int      `toml:"max_open_connections"`
	SetConnMaxLifetime int      `toml:"set_conn_max_lifetime"`
	SetConnMaxIdleTime int      `toml:"set_conn_max_idle_time"`
	ProxyEnabled       bool     `toml:"proxy_enabled"`
	ProxyAddr          string   `toml:"proxy_addr"`
}

type NATS struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	Subject  string `toml:"subject"`
}

type Logger struct {
	Dir        string `toml:"dir"`
	Level      string `toml:"level"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

type Config struct {
	PriceInsight PriceInsight `toml:"price_insight"`
	Lookup       Lookup       `toml:"lookup"`
	Coalescer    Coalescer    `toml:"coalescer"`
	Universalis  Universalis  `toml:"universalis"`
	Database     Database     `toml:"database"`
	NATS         NATS         `toml:"nats"`
	Logger       Logger       `toml:"log"`
}

// ChangeHook 配置重载后回调，old 为重载前的配置
type ChangeHook func(old, cur *Config)

var (
	cfg         *Config
	cfgPath     string
	cfgLock     sync.RWMutex
	lastModTime time.Time
	stopChan    chan struct{}
	stopOnce    sync.Once

	hooks   []ChangeHook
	hooksMu sync.Mutex
)

func Default() *Config {
	return &Config{
		PriceInsight: PriceInsight{
			BridgeURL:              "ws://127.0.0.1:16900/bridge",
			HealthServerAddr:       "0.0.0.0:16800",
			MetadataReloadInterval: 6 * time.Hour,
			MessageQueueSize:       4096,
		},
		Lookup: Lookup{
			ShowRegion:             false,
			ShowDatacenter:         true,
			ShowWorld:              true,
			ShowMostRecentPurchase: true,
			UseCurrentWorld:        false,
			PrefetchInventory:      true,
			RefreshWithAlt:         true,
		},
		Coalescer: Coalescer{
			Window:               500 * time.Millisecond,
			MaxBatchSize:         50,
			MaxConcurrentBatches: 8,
			ImmediateMaxActive:   1,
			PriceTTL:             90 * time.Minute,
		},
		Universalis: Universalis{
			BaseURL:           "https://universalis.app",
			API:               "aggregated",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 8,
			Burst:             4,
			UserAgent:         "utrading-price-insight",
			ForceIPv4:         true,
		},
		Database: Database{
			Driver:             "sqlite",
			DSN:                "data/metadata.db",
			Replicas:           []string{},
			MaxIdleConnections: 4,
			MaxOpenConnections: 16,
			SetConnMaxLifetime: 7200,
			SetConnMaxIdleTime: 3600,
			ProxyEnabled:       false,
			ProxyAddr:          "127.0.0.1:7890",
		},
		NATS: NATS{
			Enabled:  false,
			Endpoint: "nats://localhost:4222",
			Subject:  "price_insight.resolved",
		},
		Logger: Logger{
			Dir:        "logs",
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 30,
			MaxAge:     7,
			Compress:   false,
			Console:    false,
		},
	}
}

func Load(path string) error {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	cfgLock.Lock()
	defer cfgLock.Unlock()
	cfg = c
	cfgPath = path
	lastModTime = info.ModTime()

	return nil
}

// Get 未加载配置文件时返回默认配置
func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	if cfg == nil {
		return Default()
	}
	return cfg
}

// Set 直接替换当前配置并触发回调（测试和命令行覆盖使用）
func Set(c *Config) {
	cfgLock.Lock()
	old := cfg
	cfg = c
	cfgLock.Unlock()

	notify(old, c)
}

// OnChange 注册配置变更回调
func OnChange(hook ChangeHook) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = append(hooks, hook)
}

func notify(old, cur *Config) {
	if old == nil {
		old = Default()
	}

	hooksMu.Lock()
	list := make([]ChangeHook, len(hooks))
	copy(list, hooks)
	hooksMu.Unlock()

	for _, hook := range list {
		hook(old, cur)
	}
}

// Init 初始化配置并启动定期重载（默认10秒）
func Init(path string) error {
	return InitWithInterval(path, 10*time.Second)
}

// InitWithInterval 初始化配置并指定重载间隔
func InitWithInterval(path string, interval time.Duration) error {
	if err := Load(path); err != nil {
		return err
	}

	stopChan = make(chan struct{})
	stopOnce = sync.Once{}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reloadIfNeeded()
			case <-stopChan:
				return
			}
		}
	}()

	return nil
}

// Stop 停止配置重载
func Stop() {
	if stopChan != nil {
		stopOnce.Do(func() { close(stopChan) })
	}
}

// reloadIfNeeded 仅在文件修改时重载
func reloadIfNeeded() {
	cfgLock.RLock()
	path := cfgPath
	lastMod := lastModTime
	old := cfg
	cfgLock.RUnlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Msg("config stat failed")
		return
	}

	if !info.ModTime().After(lastMod) {
		return
	}

	if err = Load(path); err != nil {
		logger.Error().Err(err).Msg("config reload failed")
		return
	}
	logger.Info().Str("path", path).Msg("config reloaded")

	notify(old, Get())
}
