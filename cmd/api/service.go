package main

import (
	"context"
	"log"
	"time"

	"github.com/UnendingLoop/ImageOps/internal/appcfg"
	"github.com/UnendingLoop/ImageOps/internal/facedetect"
	"github.com/UnendingLoop/ImageOps/internal/kafka"
	"github.com/UnendingLoop/ImageOps/internal/model"
	"github.com/UnendingLoop/ImageOps/internal/ratelimit"
	"github.com/UnendingLoop/ImageOps/internal/registry"
	"github.com/UnendingLoop/ImageOps/internal/storage"
	"github.com/redis/go-redis/v9"
	wbfkafka "github.com/wb-go/wbf/kafka"
)

type ProcessAPIService interface {
	Process(ctx context.Context, req *model.ProcessRequest) (*model.ProcessResponse, error)
	Operations() []registry.Descriptor
	Stats(ctx context.Context, req *model.StatsRequest) ([]model.OperationStats, error)
	RunUsagePublisher(ctx context.Context)
}

// newFaceDetector prefers the cascade in MinIO when it is configured, the local file otherwise.
// The asset itself is loaded on the first detect_faces call.
func newFaceDetector(ctx context.Context, cfg appcfg.Config) facedetect.Detector {
	opts := facedetect.DefaultOptions()
	local := facedetect.FileSource{Path: cfg.Cascade.Path}

	if !cfg.CascadeFromMinio() {
		log.Printf("Face cascade source: %s (native detector: %v)", local, facedetect.Native())
		return facedetect.New(local, opts)
	}

	initCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	// подключиться к хранилищу
	strg, err := storage.NewAssetStorage(initCtx, cfg, 5, 5*time.Second)
	if err != nil {
		log.Printf("Asset-storage unavailable, falling back to local cascade %s: %v", local, err)
		return facedetect.New(local, opts)
	}

	// заливаем локальный каскад, если в бакете его ещё нет
	seeded, err := storage.SeedObject(initCtx, strg, cfg.Cascade.Object, cfg.Cascade.Path)
	switch {
	case err != nil:
		log.Println("Failed to seed face cascade into asset-storage:", err)
	case seeded:
		log.Printf("Face cascade uploaded to %s/%s", strg.Bucket(), cfg.Cascade.Object)
	}

	src := storage.NewCascadeSource(strg, strg.Bucket(), cfg.Cascade.Object)
	log.Printf("Face cascade source: %s", src)
	return facedetect.New(src, opts)
}

// newUsageProducer returns nil when Kafka is not configured or not reachable in time.
func newUsageProducer(ctx context.Context, cfg appcfg.KafkaConfig) *wbfkafka.Producer {
	if cfg.Broker == "" {
		log.Println("KAFKA_BROKER is not set, usage events are not published")
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	// ждем пока кафка раздуплится
	if err := kafka.WaitKafkaReady(initCtx, cfg.Broker, 5*time.Second); err != nil {
		log.Printf("Usage publishing disabled: %v", err)
		return nil
	}
	if err := kafka.InitKafkaTopics(initCtx, cfg.Broker, 5*time.Second, cfg.Topic); err != nil {
		log.Printf("Usage publishing disabled: %v", err)
		return nil
	}

	// подключиться к кафке как продюсер
	return wbfkafka.NewProducer([]string{cfg.Broker}, cfg.Topic)
}

func newRedisClient(cfg appcfg.RateLimitConfig) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Println("REDIS_ADDR is not set, rate limiting is disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
}

func newRateLimiter(rdb *redis.Client, cfg appcfg.RateLimitConfig) *ratelimit.RedisTokenBucket {
	if rdb == nil {
		return nil
	}
	limiter, err := ratelimit.NewRedisTokenBucket(rdb, cfg.PerMinute, cfg.Window, "")
	if err != nil {
		log.Printf("Rate limiting disabled: %v", err)
		return nil
	}
	log.Printf("Rate limit: %d requests per %v per client", cfg.PerMinute, cfg.Window)
	return limiter
}
