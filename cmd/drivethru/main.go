// Command drivethru runs an interactive drive-thru ordering session against
// the conversation pipeline. Utterances are read from stdin, one per line, and
// each reply is printed with the conversation state and running order total.
//
// # Configuration
//
// A YAML file selected with -config tunes the pipeline; connection settings
// can be overridden through the environment:
//
//	REDIS_ADDR      - Redis address for sessions, orders and the menu cache
//	                  (empty: in-memory backends)
//	REDIS_PASSWORD  - Redis password (optional)
//	MONGO_URI       - MongoDB URI for the menu repository (empty: in-memory
//	                  demo menu)
//	MONGO_DATABASE  - MongoDB database name (default: "drivethru")
//	MODEL_PROVIDER  - "anthropic" or "openai"
//	MODEL_ID        - provider model identifier
//
// The model API key is read from the environment variable named by the
// config's api_key_env (default: ANTHROPIC_API_KEY).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"goa.design/clue/log"

	menumongo "github.com/curbvoice/curbvoice/features/menu/mongo"
	menuredis "github.com/curbvoice/curbvoice/features/menu/redis"
	"github.com/curbvoice/curbvoice/features/model/anthropic"
	"github.com/curbvoice/curbvoice/features/model/middleware"
	"github.com/curbvoice/curbvoice/features/model/openai"
	orderredis "github.com/curbvoice/curbvoice/features/order/redis"
	sessredis "github.com/curbvoice/curbvoice/features/session/redis"
	"github.com/curbvoice/curbvoice/runtime/convo/audio"
	audioinmem "github.com/curbvoice/curbvoice/runtime/convo/audio/inmem"
	"github.com/curbvoice/curbvoice/runtime/convo/clock"
	"github.com/curbvoice/curbvoice/runtime/convo/command"
	"github.com/curbvoice/curbvoice/runtime/convo/intent"
	"github.com/curbvoice/curbvoice/runtime/convo/menu"
	menuinmem "github.com/curbvoice/curbvoice/runtime/convo/menu/inmem"
	"github.com/curbvoice/curbvoice/runtime/convo/model"
	"github.com/curbvoice/curbvoice/runtime/convo/order"
	orderinmem "github.com/curbvoice/curbvoice/runtime/convo/order/inmem"
	"github.com/curbvoice/curbvoice/runtime/convo/parser"
	"github.com/curbvoice/curbvoice/runtime/convo/respond"
	"github.com/curbvoice/curbvoice/runtime/convo/session"
	sessinmem "github.com/curbvoice/curbvoice/runtime/convo/session/inmem"
	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
	"github.com/curbvoice/curbvoice/runtime/convo/turn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "drivethru:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx := log.Context(context.Background(), log.WithFormat(log.FormatTerminal))
	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()

	client, err := buildModelClient(cfg.Model)
	if err != nil {
		return err
	}

	sessions, orders, locker, cache, closeRedis, err := buildStores(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeRedis()

	repo, closeMongo, err := buildMenuRepository(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer closeMongo()
	if cache != nil {
		cached, err := menu.NewCachedRepository(cache, repo, menu.CachedRepositoryOptions{
			Logger: logger, Metrics: metrics,
		})
		if err != nil {
			return err
		}
		repo = cached
	}
	src, err := menu.NewReadModel(repo, menu.ReadModelOptions{Logger: logger})
	if err != nil {
		return err
	}

	bus, err := command.NewBus(src, orders, command.BusOptions{
		EnableOrderLimits:             true,
		EnableCustomizationValidation: true,
		Logger:                        logger,
		Metrics:                       metrics,
	})
	if err != nil {
		return err
	}
	classifier, err := intent.NewClassifier(client, intent.ClassifierOptions{
		Model: cfg.Model.Model, Logger: logger, Metrics: metrics,
	})
	if err != nil {
		return err
	}
	parsers, err := parser.NewRegistry(parser.Config{
		Client: client, Menu: src, ModelID: cfg.Model.Model, Logger: logger, Metrics: metrics,
	})
	if err != nil {
		return err
	}

	var dispatcher *audio.Dispatcher
	if cfg.Audio.Enabled {
		dispatcher, err = audio.NewDispatcher(silentTTS{}, audioinmem.New(), audio.DispatcherOptions{
			Voice: cfg.Audio.Voice, Language: cfg.Audio.Language, Logger: logger, Metrics: metrics,
		})
		if err != nil {
			return err
		}
	}

	orch, err := turn.New(turn.Config{
		ConfidenceThreshold: cfg.Turn.ConfidenceThreshold,
		SessionTTL:          time.Duration(cfg.Turn.SessionTTL),
		TurnDeadline:        time.Duration(cfg.Turn.TurnDeadline),
	}, turn.Options{
		Classifier: classifier,
		Parsers:    parsers,
		Bus:        bus,
		Responder:  respond.NewAggregator(nil),
		Audio:      dispatcher,
		Sessions:   sessions,
		Orders:     orders,
		Locker:     locker,
		Clock:      clock.System{},
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	})
	if err != nil {
		return err
	}

	return repl(ctx, orch, cfg.RestaurantID)
}

func repl(ctx context.Context, orch *turn.Orchestrator, restaurantID int64) error {
	sessionID := uuid.NewString()
	fmt.Printf("session %s at restaurant %d. Type your order; \"quit\" exits.\n", sessionID, restaurantID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "quit" || line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}
		res := orch.ProcessTurn(ctx, turn.Request{
			SessionID:    sessionID,
			RestaurantID: restaurantID,
			UserInput:    line,
		})
		fmt.Println(res.ResponseText)
		status := fmt.Sprintf("[state=%s intent=%s", res.State, res.Intent)
		if res.Order != nil {
			status += " total=$" + res.Order.Total.StringFixed(2)
		}
		fmt.Println(status + "]")
		if res.State == session.StateClosing {
			return nil
		}
	}
}

func buildModelClient(cfg ModelConfig) (model.Client, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is empty", cfg.APIKeyEnv)
	}
	var (
		client model.Client
		err    error
	)
	switch cfg.Provider {
	case "anthropic":
		client, err = anthropic.NewFromAPIKey(apiKey, cfg.Model)
	case "openai":
		client, err = openai.NewFromAPIKey(apiKey, cfg.Model)
	default:
		err = fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitTPM > 0 {
		maxTPM := cfg.MaxTPM
		if maxTPM <= 0 {
			maxTPM = cfg.RateLimitTPM * 2
		}
		client = middleware.NewAdaptiveRateLimiter(cfg.RateLimitTPM, maxTPM).Middleware()(client)
	}
	return client, nil
}

func buildStores(ctx context.Context, cfg RedisConfig) (
	session.Store, order.Store, session.Locker, menu.Cache, func(), error) {
	if cfg.Addr == "" {
		sessions, err := sessinmem.NewStore(clock.System{})
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		orders, err := orderinmem.New(clock.System{})
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		return sessions, orders, sessinmem.NewLocker(), nil, func() {}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	closeRedis := func() {
		if err := rdb.Close(); err != nil {
			log.Errorf(ctx, err, "close redis")
		}
	}
	sessions, err := sessredis.NewStore(sessredis.StoreOptions{Client: rdb})
	if err != nil {
		closeRedis()
		return nil, nil, nil, nil, nil, err
	}
	orders, err := orderredis.New(orderredis.Options{Client: rdb})
	if err != nil {
		closeRedis()
		return nil, nil, nil, nil, nil, err
	}
	locker, err := sessredis.NewLocker(sessredis.LockerOptions{Client: rdb})
	if err != nil {
		closeRedis()
		return nil, nil, nil, nil, nil, err
	}
	cache, err := menuredis.New(menuredis.Options{Client: rdb})
	if err != nil {
		closeRedis()
		return nil, nil, nil, nil, nil, err
	}
	return sessions, orders, locker, cache, closeRedis, nil
}

func buildMenuRepository(ctx context.Context, cfg MongoConfig) (menu.Repository, func(), error) {
	if cfg.URI == "" {
		return seedDemoMenu(), func() {}, nil
	}
	mcl, err := mongodriver.Connect(ctx, mongooptions.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongo: %w", err)
	}
	closeMongo := func() {
		if err := mcl.Disconnect(context.Background()); err != nil {
			log.Errorf(ctx, err, "disconnect mongo")
		}
	}
	repo, err := menumongo.New(menumongo.Options{Client: mcl, Database: cfg.Database})
	if err != nil {
		closeMongo()
		return nil, nil, err
	}
	return repo, closeMongo, nil
}

// seedDemoMenu builds the in-memory menu used when no MongoDB is configured.
func seedDemoMenu() menu.Repository {
	repo := menuinmem.NewRepository()
	repo.SeedItems(1,
		menu.Item{ID: "itm-classic", RestaurantID: 1, Name: "Classic Burger",
			Category: "burgers", Price: decimal.RequireFromString("5.00"), IsAvailable: true},
		menu.Item{ID: "itm-veggie", RestaurantID: 1, Name: "Veggie Burger",
			Category: "burgers", Price: decimal.RequireFromString("5.50"), IsAvailable: true},
		menu.Item{ID: "itm-fries", RestaurantID: 1, Name: "French Fries",
			Category: "sides", Price: decimal.RequireFromString("2.50"), IsAvailable: true},
		menu.Item{ID: "itm-cola", RestaurantID: 1, Name: "Cola",
			Category: "drinks", Price: decimal.RequireFromString("1.95"), IsAvailable: true},
	)
	repo.SeedIngredients(1,
		menu.Ingredient{ID: "ing-cheese", RestaurantID: 1, Name: "Cheese",
			UnitCost: decimal.RequireFromString("0.50")},
		menu.Ingredient{ID: "ing-pickles", RestaurantID: 1, Name: "Pickles",
			UnitCost: decimal.RequireFromString("0.10")},
	)
	repo.SeedItemIngredients("itm-classic",
		menu.ItemIngredient{MenuItemID: "itm-classic", IngredientID: "ing-cheese",
			Quantity: decimal.NewFromInt(1), Unit: "slice", IsOptional: true,
			AdditionalCost: decimal.RequireFromString("0.50")},
		menu.ItemIngredient{MenuItemID: "itm-classic", IngredientID: "ing-pickles",
			Quantity: decimal.NewFromInt(2), Unit: "slice", IsOptional: true,
			AdditionalCost: decimal.Zero},
	)
	return repo
}

// silentTTS is a placeholder synthesis engine for local runs without a real
// TTS provider. It renders every phrase to the same short silent MP3 frame.
type silentTTS struct{}

var silentFrame = []byte{0xFF, 0xFB, 0x90, 0x64, 0x00}

func (silentTTS) Synthesize(_ context.Context, text, _, _ string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}
	return silentFrame, nil
}
