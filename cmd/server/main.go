package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/helixhq/registry/internal/cache"
	"github.com/helixhq/registry/internal/clients"
	"github.com/helixhq/registry/internal/config"
	grpcserver "github.com/helixhq/registry/internal/grpc"
	"github.com/helixhq/registry/internal/logger"
	"github.com/helixhq/registry/internal/service"
	"github.com/helixhq/registry/internal/storage"
	"github.com/helixhq/registry/internal/workflows"
	"github.com/helixhq/registry/pkg/monitoring"
)

func main() {
	cfg := config.Load()
	logg := logger.New(cfg.LogLevel, cfg.LogFormat)
	logg.Info("Starting registry service",
		"grpc_port", cfg.GRPCPort, "http_port", cfg.HTTPPort, "temporal", cfg.TemporalHost)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.PprofPort != "" {
		monitoring.EnablePprof(cfg.PprofPort)
		logg.Info("pprof enabled", "port", cfg.PprofPort)
	}

	// Cache backend: Redis when configured, in-process otherwise.
	var cacheManager cache.Manager
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		cacheManager = redisCache
		logg.Info("Connected to Redis", "addr", cfg.RedisAddr)
	} else {
		cacheManager = cache.NewMemoryCache(time.Minute)
		logg.Info("Using in-process cache")
	}
	defer cacheManager.Close()

	// Workflow orchestration is optional: without it, only inline validation
	// and no artifact generation.
	var workflowClient service.WorkflowClient
	temporalClient, err := clients.NewTemporalClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TaskQueue, logg)
	if err != nil {
		logg.Warn("Could not connect to Temporal, asynchronous jobs are disabled", "error", err)
		workflowClient = clients.DisabledWorkflowClient{}
	} else {
		defer temporalClient.Close()
		workflowClient = temporalClient
		logg.Info("Connected to Temporal")
	}

	storageClient, err := clients.NewStorageClient(
		cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey,
		cfg.StorageBucket, cfg.StorageUseSSL, logg)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		logg.Warn("Could not ensure artifact bucket, downloads may fail", "error", err)
	}

	store := storage.NewCatalogStore()
	schemaService := service.NewSchemaService(store, cacheManager, workflowClient, logg)
	schemaService.SetJobTimeout(cfg.JobTimeout)
	queryService := service.NewCatalogQueryService(store, cacheManager, logg)
	consumerService := service.NewConsumerService(store, logg)
	artifactService := service.NewArtifactService(store, storageClient, workflowClient, logg)

	registryServer := grpcserver.NewRegistryServer(schemaService, queryService, consumerService, artifactService, logg)

	grpcSrv := grpc.NewServer()
	grpcserver.RegisterRegistryServiceServer(grpcSrv, registryServer)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcSrv, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	logg.Info("Health check service registered")

	reflection.Register(grpcSrv)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("Failed to listen on port %d: %v", cfg.GRPCPort, err)
	}

	go startHTTPServer(cfg.HTTPPort, schemaService, artifactService, logg)
	go runSweeper(ctx, cfg.SweepInterval, schemaService, artifactService, logg)

	go func() {
		logg.Info("gRPC server listening", "port", cfg.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("Shutting down server")
	cancel()
	grpcSrv.GracefulStop()
	logg.Info("Server stopped")
}

// runSweeper periodically fails jobs stuck in pending beyond their timeout
// window.
func runSweeper(ctx context.Context, interval time.Duration, schemaService *service.SchemaService, artifactService *service.ArtifactService, logg *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := schemaService.ExpirePendingValidations(ctx); err != nil {
				logg.Error("Validation sweep failed", "error", err)
			}
			if _, err := artifactService.ExpirePendingJobs(ctx); err != nil {
				logg.Error("Generation sweep failed", "error", err)
			}
		}
	}
}

// startHTTPServer serves liveness probes plus the internal endpoints workers
// use to report job outcomes.
func startHTTPServer(port int, schemaService *service.SchemaService, artifactService *service.ArtifactService, logg *slog.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	})

	mux.HandleFunc("/internal/v1/validation-results", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var result struct {
			WorkflowID string `json:"workflow_id"`
			workflows.ValidationResult
		}
		if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if err := schemaService.CompleteValidation(r.Context(), result.WorkflowID, result.ValidationResult); err != nil {
			logg.Error("Failed to apply validation result", "workflow_id", result.WorkflowID, "error", err)
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/internal/v1/generation-results", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var result struct {
			WorkflowID string `json:"workflow_id"`
			workflows.GenerationResult
		}
		if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if err := artifactService.CompleteGeneration(r.Context(), result.WorkflowID, result.GenerationResult); err != nil {
			logg.Error("Failed to apply generation result", "workflow_id", result.WorkflowID, "error", err)
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	logg.Info("HTTP server listening", "port", port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Fatalf("Failed to start HTTP server: %v", err)
	}
}
