package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"

	"github.com/hashicorp/consul/api"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/config"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/discovery"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/logger"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/middleware"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/server"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/tracing"
)

var (
	configPath       = flag.String("config", "configs/api-gateway.json", "配置文件路径")
	configFromConsul = flag.String("config-from-consul", "", "从 Consul KV 加载配置的 key（留空走本地文件）")
	consulHost       = flag.String("consul-host", "localhost", "加载远端配置用的 Consul 地址")
	consulPort       = flag.Int("consul-port", 8500, "加载远端配置用的 Consul 端口")
)

func loadConfig() (*config.Config, error) {
	if *configFromConsul != "" {
		return config.LoadConfigFromConsulKV(*consulHost, *consulPort, *configFromConsul)
	}
	return config.LoadConfig(*configPath)
}

// upstreamProxy 每次转发前从 Consul 取健康实例，轮询选择。
type upstreamProxy struct {
	consul  *api.Client
	service string
	log     logger.Logger
	next    atomic.Uint64
}

func (p *upstreamProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	addrs, err := discovery.Instances(p.consul, p.service)
	if err != nil || len(addrs) == 0 {
		if p.log != nil {
			p.log.Warnf("no healthy upstream for %s: %v", p.service, err)
		}
		server.WriteError(w, http.StatusBadGateway, "no_upstream", "no healthy upstream instance")
		return
	}

	addr := addrs[p.next.Add(1)%uint64(len(addrs))]
	target := &url.URL{Scheme: "http", Host: addr}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if p.log != nil {
			p.log.Warnf("proxy to %s failed: %v", addr, err)
		}
		server.WriteError(w, http.StatusBadGateway, "upstream_error", "upstream request failed")
	}
	proxy.ServeHTTP(w, r)
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Driver, cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port)
	if err != nil {
		log.Fatalf("failed to connect to Consul: %v", err)
	}

	proxy := &upstreamProxy{
		consul:  consulClient,
		service: cfg.Gateway.UpstreamService,
		log:     log,
	}

	limiter := middleware.NewTokenBucket(cfg.Gateway.RateCapacity, cfg.Gateway.RateRefill)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		server.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/", middleware.Limit(limiter)(proxy))

	if err := server.RunHTTPServer(cfg, log, mux); err != nil {
		log.Fatalf("api-gateway exited with error: %v", err)
	}
}
