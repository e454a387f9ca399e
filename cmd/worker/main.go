// Package main (in worker-subfolder) provides launch of the usage-ledger worker
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/ImageOps/internal/appcfg"
	"github.com/UnendingLoop/ImageOps/internal/kafka"
	"github.com/UnendingLoop/ImageOps/internal/repository"
	"github.com/UnendingLoop/ImageOps/internal/service"
	"github.com/UnendingLoop/ImageOps/internal/worker"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}
	cfg := appcfg.Load(appConfig)

	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	if cfg.Postgres == "" || cfg.Kafka.Broker == "" {
		log.Fatal("Worker needs both POSTGRES_DSN and KAFKA_BROKER. Exiting worker...")
	}

	// Listening to interruptions through context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключитсья к базе
	dbConn := repository.ConnectWithRetries(cfg.Postgres, 5, 10*time.Second)
	// миграцию накатывает api, но воркер может стартовать первым
	repository.MigrateWithRetries(dbConn.Master, "./migrations", 10, 15*time.Second)
	// создаем экземпляр репо
	repo := repository.NewPostgresUsageRepo(dbConn)
	// создаем экземпляр сервиса - реестр и паблишер воркеру не нужны
	var svc UsageWorkerService = service.NewProcessService(nil, nil, repo, nil)

	// ждем пока кафка раздуплится
	if err := kafka.WaitKafkaReady(ctx, cfg.Kafka.Broker, 5*time.Second); err != nil {
		log.Fatalf("Kafka is unavailable: %v", err)
	}
	if err := kafka.InitKafkaTopics(ctx, cfg.Kafka.Broker, 5*time.Second, cfg.Kafka.Topic); err != nil {
		log.Fatalf("Failed to init kafka topics: %v", err)
	}

	// подключиться к кафке как читатель
	queue := make(chan kafkago.Message)
	retryStrategy := retry.Strategy{
		Attempts: 5,
		Delay:    2 * time.Second,
		Backoff:  1.5,
	}
	cons := wbfkafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	cons.StartConsuming(ctx, queue, retryStrategy)

	// Собираем воедино все что нужно воркеру и запускаем его
	usageWorker := worker.NewWorkerInstance(svc, queue, cons)
	go usageWorker.StartWorker(ctx)
	log.Printf("Worker is consuming %q as group %q", cfg.Kafka.Topic, cfg.Kafka.GroupID)

	// Waiting for interruption to stop context to start Graceful shutdown
	<-ctx.Done()

	shutdown(cons, dbConn)
	log.Println("Exiting worker...")
}

func shutdown(cons *wbfkafka.Consumer, dbConn *dbpg.DB) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	// Closing Kafka connection:
	if err := cons.Close(); err != nil {
		log.Println("Failed to close Kafka-reader:", err)
	}
	log.Println("Kafka-consumer connection closed.")

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		log.Println("Failed to close DB-conn correctly:", err)
		return
	}
	log.Println("DBconn closed")
}
