// Package main (in api-subfolder) provides launch of the image operations API
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/ImageOps/internal/appcfg"
	"github.com/UnendingLoop/ImageOps/internal/imageproc"
	"github.com/UnendingLoop/ImageOps/internal/metrics"
	"github.com/UnendingLoop/ImageOps/internal/mwlogger"
	"github.com/UnendingLoop/ImageOps/internal/ratelimit"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/UnendingLoop/ImageOps/internal/repository"
	"github.com/UnendingLoop/ImageOps/internal/service"
	"github.com/UnendingLoop/ImageOps/internal/telemetry"
	"github.com/UnendingLoop/ImageOps/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

const serviceName = "imageops-api"

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}
	cfg := appcfg.Load(appConfig)

	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// трейсинг
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  serviceName,
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}

	// реестр операций - каскад для detect_faces грузится лениво при первом запросе
	faces := newFaceDetector(ctx, cfg)
	reg, err := registry.New(imageproc.Operations(faces, imageproc.WithMaxOutputPixels(cfg.MaxOutputPixels))...)
	if err != nil {
		log.Fatalf("Failed to build operation registry: %v", err)
	}
	log.Printf("Registered %d operations", len(reg.Names()))

	mtr := metrics.New()

	// статистика использования - только если задан POSTGRES_DSN
	var repo repository.UsageRepo
	var dbConn *dbpg.DB
	if cfg.Postgres != "" {
		dbConn = repository.ConnectWithRetries(cfg.Postgres, 5, 10*time.Second)
		repository.MigrateWithRetries(dbConn.Master, "./migrations", 10, 15*time.Second)
		repo = repository.NewPostgresUsageRepo(dbConn)
	} else {
		log.Println("POSTGRES_DSN is not set, /api/stats is disabled")
	}

	// публикация событий в кафку - только если задан KAFKA_BROKER
	var pub service.UsagePublisher
	producer := newUsageProducer(ctx, cfg.Kafka)
	if producer != nil {
		pub = producer
	}

	// создаем экземпляр сервиса
	processSvc := service.NewProcessService(reg, pub, repo, mtr)
	processSvc.SetMaxInputPixels(cfg.MaxInputPixels)
	var svc ProcessAPIService = processSvc
	go svc.RunUsagePublisher(ctx)

	// cоздаем экземпляр хендлера HTTP
	handlers := transport.NewProcessHandler(svc)
	// сетапим сервер
	engine := ginext.New(cfg.GinMode)
	engine.Use(
		telemetry.Middleware(telemetry.Tracer()),
		mtr.Middleware(),
		transport.CORS(cfg.CORSOrigins),
	)

	processChain := []gin.HandlerFunc{transport.BodyLimit(cfg.MaxBodyBytes)}
	rdb := newRedisClient(cfg.RateLimit)
	if limiter := newRateLimiter(rdb, cfg.RateLimit); limiter != nil {
		processChain = append(processChain, ratelimit.Middleware(limiter, mtr.RateLimited))
	}
	processChain = append(processChain, handlers.Process)

	engine.GET("/ping", handlers.SimplePinger)
	engine.GET("/metrics", gin.WrapH(mtr.Handler()))

	api := engine.Group("/api")
	api.GET("/health", handlers.Health)
	api.GET("/operations", handlers.Operations) // список операций со схемами параметров
	api.GET("/stats", handlers.Stats)           // агрегаты использования по операциям
	api.POST("/process", processChain...)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mwlogger.NewMWLogger(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Server launch
	go func() {
		log.Printf("Server running on http://localhost%s\n", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil {
			switch {
			case errors.Is(err, http.ErrServerClosed):
				log.Println("Server gracefully stopping...")
			default:
				log.Printf("Server stopped: %v", err)
				stop()
			}
		}
	}()

	// ждем отмены контекста для запуска грейсфул закрытия соединений
	<-ctx.Done()

	shutdown(srv, producer, dbConn, rdb, shutdownTracing)
	log.Println("Exiting API...")
}

func shutdown(srv *http.Server, prod *wbfkafka.Producer, dbConn *dbpg.DB, rdb *redis.Client, shutdownTracing func(context.Context) error) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Println("Failed to shutdown HTTP-server correctly:", err)
	}
	log.Println("HTTP-server stopped.")

	// Closing Kafka connection:
	if prod != nil {
		if err := prod.Close(); err != nil {
			log.Println("Failed to close Kafka-writer:", err)
		}
		log.Println("Kafka-producer connection closed.")
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Println("Failed to close Redis-client:", err)
		}
		log.Println("Redis connection closed.")
	}

	if err := shutdownTracing(ctx); err != nil {
		log.Println("Failed to flush traces:", err)
	}

	// Closing DB connection
	if dbConn != nil {
		if err := dbConn.Master.Close(); err != nil {
			log.Println("Failed to close DB-conn correctly:", err)
			return
		}
		log.Println("DBconn closed")
	}
}
