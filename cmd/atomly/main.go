package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/atomly/atomly/caption"
	"github.com/atomly/atomly/engine"
	"github.com/atomly/atomly/events"
	"github.com/atomly/atomly/server"
	"github.com/atomly/atomly/storage/cache"
	"github.com/atomly/atomly/storage/memory"
	storage "github.com/atomly/atomly/storage/persistent"
)

const eventQueueName = "atomly.events"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atomly",
		Short: "Atomly - habit engagement and scoring engine",
	}
	cmd.AddCommand(newServeCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "serve",
		Short:         "Start the API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	figure.NewFigure("Atomly", "", true).Print()

	serverURL := envOr("SERVER_URL", "http://localhost:8080")
	signingKey := envOr("JWT_SIGNING_KEY", "")
	if signingKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY must be set")
	}

	store, err := buildStore()
	if err != nil {
		return err
	}
	defer store.Disconnect()

	opts := []engine.Option{}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c, err := cache.NewCache(redisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer c.Disconnect()
		opts = append(opts, engine.WithCache(c))
	}

	publisher := events.Publisher(events.NopPublisher{})
	if amqpURL := os.Getenv("RABBITMQ_URL"); amqpURL != "" {
		p, err := events.NewAMQPPublisher(amqpURL, eventQueueName)
		if err != nil {
			return fmt.Errorf("connecting to rabbitmq: %w", err)
		}
		defer p.Close()
		publisher = p
	}
	opts = append(opts, engine.WithPublisher(publisher))

	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		timeout := time.Duration(envInt("CAPTION_TIMEOUT", 10)) * time.Second
		opts = append(opts, engine.WithCaptionGenerator(caption.NewGeminiGenerator(apiKey, timeout)))
	}

	eng := engine.New(store, opts...)

	broadcaster := events.NewBroadcaster(publisher, func(ctx context.Context) (interface{}, error) {
		return eng.TopByTotalKarma(ctx, 10)
	})
	interval := time.Duration(envInt("BROADCAST_INTERVAL", 30)) * time.Second
	if err := broadcaster.Start(interval); err != nil {
		return fmt.Errorf("starting leaderboard broadcaster: %w", err)
	}
	defer broadcaster.Stop()

	return server.Start(serverURL, signingKey, eng)
}

// buildStore connects to MongoDB when a URI is configured and falls back to
// the in-memory store otherwise, which is enough for local development.
func buildStore() (storage.StorageInterface, error) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		log.Println("MONGODB_URI not set, using in-memory storage")
		return memory.NewStore(), nil
	}
	dbName := envOr("DB_NAME", "atomly")
	store, err := storage.NewStorage(dbName, uri)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	return store, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, raw, def)
		return def
	}
	return n
}
