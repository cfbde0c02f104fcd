package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/clipquiz/api/internal/auth"
	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/config"
	"github.com/clipquiz/api/internal/handler"
	"github.com/clipquiz/api/internal/middleware"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/internal/progress"
	"github.com/clipquiz/api/internal/redirect"
	"github.com/clipquiz/api/internal/service"
	"github.com/clipquiz/api/internal/websocket"
	"github.com/clipquiz/api/internal/writeback"
	"github.com/clipquiz/api/pkg/logger"
)

const (
	testJWTSecret     = "test-secret-for-e2e"
	testPipelineToken = "test-pipeline-token"
	testUserID        = "test-user-123"
)

// testApp holds all components needed for testing
type testApp struct {
	app           *fiber.App
	hub           *websocket.Hub
	store         *client.MemoryStore
	progressStore *progress.Store
	queue         *writeback.Queue
	redis         *redis.Client
}

// setupApp creates a Fiber app identical to main.go but with unconfigured
// external clients. The quiz store is in-memory and processing jobs run
// against the mock extractor.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost; must be running for process endpoints)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	// Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	validate := validator.New()
	log := logger.NewNop()

	// WebSocket hub with snapshot replay
	hub := websocket.NewHub(log)
	progressStore := progress.NewStore()
	hub.SetReplay(func(jobID string) (model.ProgressEvent, bool) {
		snap, ok := progressStore.Get(jobID)
		return snap.Event, ok
	})

	// In-memory quiz store and write-back layer
	memStore := client.NewMemoryStore()
	queueCfg := config.QueueConfig{SweepInterval: time.Hour, MaxAttempts: 5, MaxAge: time.Hour, MaxSize: 100}
	retryCfg := config.RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
	queue := writeback.NewQueue(&queueCfg, log)
	saver := writeback.NewSaver(memStore, queue, validate, &retryCfg, log)

	// Short redirect delay so completion routing fires quickly in tests
	planner := redirect.NewPlanner(hub, &config.RedirectConfig{Delay: 10 * time.Millisecond}, log)
	t.Cleanup(planner.Stop)

	// Services: nil extractor and storage trigger mock fallbacks
	processService := service.NewProcessService(redisClient, asynqClient, nil, log)
	progressService := service.NewProgressService(progressStore, hub, planner, log)
	gameService := service.NewGameService(memStore, saver, log)
	songService := service.NewSongService(memStore, nil, log)

	// Handlers
	processHandler := handler.NewProcessHandler(processService, validate)
	progressHandler := handler.NewProgressHandler(progressService)
	gameHandler := handler.NewGameHandler(gameService, validate)
	songHandler := handler.NewSongHandler(songService)

	// Auth handler (for /auth/verify)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	// Auth middleware, legacy HMAC only
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"store":    false,
				"pipeline": false,
				"r2":       false,
				"auth":     true,
			},
			"queueDepth": queue.Len(),
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	// Progress ingress (pipeline token auth)
	app.Post("/internal/progress", middleware.PipelineAuthMiddleware(testPipelineToken), progressHandler.Ingest)

	// API routes (authenticated)
	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	process := api.Group("/process")
	process.Post("/start", rateLimiter.ProcessLimit(10000), processHandler.Start)
	process.Get("/status/:jobId", processHandler.Status)
	process.Get("/result/:jobId", processHandler.Result)
	process.Post("/cancel/:jobId", processHandler.Cancel)

	api.Get("/progress/:jobId", progressHandler.Snapshot)
	api.Delete("/progress/:jobId", progressHandler.Clear)

	games := api.Group("/games", rateLimiter.GamesLimit(10000))
	games.Post("/", gameHandler.Create)
	games.Get("/:gameId", gameHandler.Get)
	games.Delete("/:gameId", gameHandler.Delete)

	songs := api.Group("/songs", rateLimiter.SongsLimit(10000))
	songs.Get("/", songHandler.List)
	songs.Delete("/:songId", songHandler.Delete)

	return &testApp{
		app:           app,
		hub:           hub,
		store:         memStore,
		progressStore: progressStore,
		queue:         queue,
		redis:         redisClient,
	}
}

// requireRedis skips the test when no local redis is reachable. Process
// endpoints store job records in redis; everything else runs in memory.
func requireRedis(t *testing.T, ta *testApp) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ta.redis.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: redis not available: %v", err)
	}
}

// seedSong inserts a song row owned by the test user directly into the
// in-memory store.
func seedSong(t *testing.T, ta *testApp, title, videoID string) *model.SongRecord {
	t.Helper()
	rec, err := ta.store.InsertSong(context.Background(), &model.SongInsert{
		Title:   title,
		VideoID: videoID,
		UserID:  testUserID,
	})
	if err != nil {
		t.Fatalf("failed to seed song: %v", err)
	}
	return rec
}

// observeJob registers a WebSocket observer for jobID and returns it with
// the connection acknowledgement already drained.
func observeJob(t *testing.T, ta *testApp, jobID string) *websocket.Client {
	t.Helper()
	cl := &websocket.Client{
		JobID: jobID,
		Send:  make(chan []byte, 16),
	}
	if err := ta.hub.Register(cl); err != nil {
		t.Fatalf("failed to register observer: %v", err)
	}
	t.Cleanup(func() { ta.hub.Unregister(cl) })

	select {
	case <-cl.Send: // connection_established
	case <-time.After(time.Second):
		t.Fatal("no connection acknowledgement received")
	}
	return cl
}

// nextMessage reads one queued WebSocket message as a map.
func nextMessage(t *testing.T, cl *websocket.Client, within time.Duration) map[string]interface{} {
	t.Helper()
	select {
	case data := <-cl.Send:
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to parse websocket message: %v\nraw: %s", err, data)
		}
		return msg
	case <-time.After(within):
		t.Fatal("timed out waiting for websocket message")
		return nil
	}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: testUserID,
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "clipquiz-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// doPipelineRequest performs a request authenticated with the pipeline token.
func doPipelineRequest(app *fiber.App, method, path, body string) (*http.Response, error) {
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + testPipelineToken,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
