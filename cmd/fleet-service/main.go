package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/booking"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/auth"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/config"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/db"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/logger"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/metrics"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/middleware"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/server"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/tracing"
	"github.com/SwiftFleetRent/SwiftFleetRent/internal/vehicle"
)

var (
	configPath       = flag.String("config", "configs/fleet-service.json", "配置文件路径")
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

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Driver, cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
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

	// 初始化数据库
	gormDB, err := db.NewMySQL(cfg.Database)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(&vehicle.VehicleModel{}, &vehicle.Vehicle{}, &booking.Reservation{}); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	mtr := metrics.NewMetrics("swiftfleetrent")

	// 车辆域
	vehicleRepo := vehicle.NewRepo(gormDB)
	vehicleSvc := vehicle.NewService(vehicleRepo, nil, log)

	// 预约域
	ledger := booking.NewLedger(gormDB)
	extTimeout := time.Duration(cfg.External.TimeoutSeconds) * time.Second
	breakerReset := time.Duration(cfg.External.BreakerResetSeconds) * time.Second
	bookingOpts := []booking.Option{
		booking.WithLogger(log),
		booking.WithMetrics(mtr),
		booking.WithHoldTTL(time.Duration(cfg.Booking.HoldTTLMinutes) * time.Minute),
	}
	if cfg.External.IdentityBaseURL != "" {
		bookingOpts = append(bookingOpts, booking.WithIdentityVerifier(booking.NewHTTPIdentityVerifier(
			cfg.External.IdentityBaseURL, extTimeout,
			middleware.NewCircuitBreaker("identity", cfg.External.BreakerMaxFailures, breakerReset),
		)))
	}
	if cfg.External.PaymentBaseURL != "" {
		bookingOpts = append(bookingOpts, booking.WithPaymentProvider(booking.NewHTTPPaymentProvider(
			cfg.External.PaymentBaseURL, extTimeout,
			middleware.NewCircuitBreaker("payment", cfg.External.BreakerMaxFailures, breakerReset),
		)))
	}
	bookingSvc := booking.NewService(ledger, vehicleRepo, bookingOpts...)

	// 过期 hold 清扫
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	sweeper := booking.NewSweeper(ledger, nil,
		time.Duration(cfg.Booking.SweepIntervalSeconds)*time.Second, log, mtr)
	go sweeper.Run(sweepCtx)

	// 路由
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		server.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/ops/tokens", mintOpsToken(cfg))

	// 还车成功后由 booking 侧完结已开始的预约
	vehicle.NewHTTPServer(vehicleSvc, log,
		vehicle.WithReturnHook(func(ctx context.Context, vehicleID string) error {
			return bookingSvc.CompleteForVehicle(ctx, vehicleID)
		}),
		vehicle.WithHTTPMetrics(mtr),
	).Register(mux)
	booking.NewHTTPServer(bookingSvc, log, booking.WithHTTPMetrics(mtr)).Register(mux)

	if err := server.RunHTTPServer(cfg, log, mux); err != nil {
		log.Fatalf("fleet-service exited with error: %v", err)
	}
}

// mintOpsToken 给运维工具签发 access token。
// 鉴权开启时要求调用方已持有 fleet_admin 角色的 token。
func mintOpsToken(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Subject    string   `json:"subject"`
			Roles      []string `json:"roles"`
			TTLMinutes int      `json:"ttl_minutes"`
		}
		if err := server.ReadJSON(r, &req); err != nil {
			server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if cfg.Auth.Enabled {
			ai, ok := server.AuthFromContext(r.Context())
			if !ok || !hasRole(ai.Roles, "fleet_admin") {
				server.WriteError(w, http.StatusForbidden, "forbidden", "fleet_admin role required")
				return
			}
		}
		token, expiresAt, err := auth.GenerateAccessToken(cfg.Auth, req.Subject, req.Roles,
			time.Duration(req.TTLMinutes)*time.Minute)
		if err != nil {
			server.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		server.WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"access_token": token,
			"expires_at":   expiresAt.Format(time.RFC3339),
		})
	}
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
