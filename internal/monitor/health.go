package monitor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utrading/utrading-price-insight/pkg/goplus"
	"github.com/utrading/utrading-price-insight/pkg/logger"
)

// LookupRef 价格查询服务引用接口
type LookupRef interface {
	CheckReady() bool
	Stats() map[string]any
}

// BridgeRef 游戏桥连接引用接口
type BridgeRef interface {
	IsConnected() bool
	IsReconnecting() bool
}

// PublisherRef NATS发布器引用接口
type PublisherRef interface {
	IsConnected() bool
}

// MetadataRef 元数据引用接口
type MetadataRef interface {
	Ready() bool
}

// HealthServer HTTP 健康检查和指标服务器
type HealthServer struct {
	addr         string
	lookup       LookupRef
	bridge       BridgeRef
	publisher    PublisherRef
	metadata     MetadataRef
	server       *http.Server
	listener     net.Listener
	mu           sync.RWMutex
	healthy      bool
	healthySince time.Time
	startTime    time.Time
}

// NewHealthServer 创建健康检查服务器，bridge / publisher / metadata 可以为 nil
func NewHealthServer(addr string, lookup LookupRef, bridge BridgeRef, publisher PublisherRef, metadata MetadataRef) *HealthServer {
	return &HealthServer{
		addr:         addr,
		lookup:       lookup,
		bridge:       bridge,
		publisher:    publisher,
		metadata:     metadata,
		healthy:      true,
		healthySince: time.Now(),
		startTime:    time.Now(),
	}
}

// Handler 路由
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/health/ready", h.readyHandler)
	mux.HandleFunc("/health/live", h.liveHandler)

	// Prometheus指标端点
	mux.Handle("/metrics", promhttp.Handler())

	// 服务状态端点
	mux.HandleFunc("/status", h.statusHandler)

	return mux
}

// Start 启动HTTP服务器
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", h.addr)
	if err != nil {
		return err
	}
	h.listener = ln

	h.server = &http.Server{
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	goplus.Go(func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("health server error")
		}
	})

	logger.Info().Str("addr", ln.Addr().String()).Msg("health server started")

	return nil
}

// Addr 实际监听地址
func (h *HealthServer) Addr() string {
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

// Stop 停止服务器
func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.healthy = false
	h.mu.Unlock()

	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthHandler 健康检查处理器
func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// readyHandler 就绪检查处理器
func (h *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isReady() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// liveHandler 存活检查处理器
func (h *HealthServer) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// statusHandler 服务状态处理器
func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// isReady 已解析主服务器即可对外提供查询
func (h *HealthServer) isReady() bool {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	if !healthy {
		return false
	}

	return h.lookup != nil && h.lookup.CheckReady()
}

// getHealthStatus 获取健康状态
func (h *HealthServer) getHealthStatus() HealthStatus {
	h.mu.RLock()
	healthy := h.healthy
	healthySince := h.healthySince
	h.mu.RUnlock()

	status := HealthStatus{
		Healthy:      healthy,
		HealthySince: healthySince.Format(time.RFC3339),
		Uptime:       time.Since(h.startTime).String(),
	}

	if h.bridge != nil {
		status.Bridge.Connected = h.bridge.IsConnected()
		status.Bridge.Reconnecting = h.bridge.IsReconnecting()
	}
	if h.publisher != nil {
		status.NATS.Enabled = true
		status.NATS.Connected = h.publisher.IsConnected()
	}
	if h.metadata != nil {
		status.Metadata.Loaded = h.metadata.Ready()
	}
	if h.lookup != nil {
		status.Lookup.Ready = h.lookup.CheckReady()
		status.Lookup.Stats = h.lookup.Stats()
	}

	return status
}

// HealthStatus 健康状态结构
type HealthStatus struct {
	Healthy      bool           `json:"healthy"`
	HealthySince string         `json:"healthy_since"`
	Uptime       string         `json:"uptime"`
	Bridge       BridgeStatus   `json:"bridge"`
	NATS         NATSStatus     `json:"nats"`
	Metadata     MetadataStatus `json:"metadata"`
	Lookup       LookupStatus   `json:"lookup"`
}

// BridgeStatus 游戏桥连接状态
type BridgeStatus struct {
	Connected    bool `json:"connected"`
	Reconnecting bool `json:"reconnecting"`
}

// NATSStatus NATS连接状态
type NATSStatus struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// MetadataStatus 元数据状态
type MetadataStatus struct {
	Loaded bool `json:"loaded"`
}

// LookupStatus 查询服务状态
type LookupStatus struct {
	Ready bool           `json:"ready"`
	Stats map[string]any `json:"stats,omitempty"`
}
