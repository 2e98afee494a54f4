package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatcore/global/config"
	"chatcore/logger"
	mid "chatcore/middleware"
	"chatcore/middleware/security"
	"chatcore/module/chat/service"
	"chatcore/service/api"
	"chatcore/service/chat"
	"chatcore/service/events"
	"chatcore/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init(cfg.LogLevel)
	defer logger.Sync()

	ids.SetNodeID(cfg.NodeID)
	node := fmt.Sprintf("chat-gw-%d", cfg.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) store
	store, storeCloser, err := openStore(ctx, cfg, log.Named("store"))
	if err != nil {
		return err
	}
	defer storeCloser.Close()

	// 2) events
	pub, err := openPublisher(cfg, log.Named("events"))
	if err != nil {
		return err
	}
	emitter := events.NewEmitter(pub, cfg.EventsTopic, cfg.StoreTimeout, log.Named("events"))
	// 提前返回时也要关掉 publisher；正常退出在下面按顺序关闭，Close 可重入
	defer emitter.Close()

	// 3) registry + presence mirror
	registry := chat.NewRegistry(log.Named("registry"))
	presence, presenceCloser, err := openPresence(ctx, cfg, node, log.Named("presence"))
	if err != nil {
		return err
	}
	defer presenceCloser.Close()
	if presence != nil {
		registry.OnChange(presence.Observe)
	}

	rooms := service.NewRoomService(store, nil, log.Named("rooms"))
	disp := chat.NewDispatcher(rooms, store, registry, emitter, chat.DispatcherOptions{
		StoreTimeout:     cfg.StoreTimeout,
		MaxContentLength: cfg.MaxContentLength,
	}, log.Named("dispatcher"))

	resolver := security.NewResolver(security.Options{
		Secret:      []byte(cfg.JWTSecret),
		TrustHeader: cfg.TrustGatewayHeader,
	})
	ws := chat.NewServer(registry, disp, resolver, chat.ServerOptions{
		WriteTimeout: cfg.WriteTimeout,
		PingInterval: cfg.PingInterval,
		PongWait:     cfg.PongWait,
		ReadLimit:    cfg.ReadLimit,
	}, log.Named("ws"))
	if presence != nil {
		ws.OnHeartbeat(presence.Heartbeat)
	}

	var lookup api.PresenceLookup
	if presence != nil {
		lookup = presence
	}
	handler := api.NewHandler(rooms, disp, registry, lookup, api.Options{
		Node:            node,
		PageSizeDefault: cfg.PageSizeDefault,
		PageSizeMax:     cfg.PageSizeMax,
		Timeout:         cfg.StoreTimeout,
	}, log.Named("api"))

	// 4) HTTP + WebSocket
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(mid.Recovery(log), mid.AccessLog(log.Named("http")))
	r.GET("/ws", ws.HandleWS)
	handler.Register(r, resolver.Middleware())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("node", node))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 5) optional gRPC health
	var gs *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		gs = grpc.NewServer()
		hs := health.NewServer()
		healthpb.RegisterHealthServer(gs, hs)
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
		go func() {
			log.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
			if err := gs.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	// 6) graceful shutdown: stop accepting, drop sockets, flush events
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if gs != nil {
		gs.GracefulStop()
	}
	registry.CloseAll(websocket.CloseGoingAway, "server shutdown")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := emitter.Close(); err != nil {
		log.Warn("close events", zap.Error(err))
	}
	return nil
}
