package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tasksync-api/api"
	"tasksync-api/calendar"
	"tasksync-api/storage"
	"tasksync-api/sync"
)

const defaultCalendarEventsURL = "https://www.googleapis.com/calendar/v3/calendars/primary/events"

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTableName := os.Getenv("TASKS_TABLE")
	importsTableName := os.Getenv("IMPORTS_TABLE")
	importQueueName := os.Getenv("IMPORT_QUEUE")
	if connStr == "" || tasksTableName == "" || importsTableName == "" || importQueueName == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tasksTableName, importsTableName, importQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisOptions(redisConn))

	cached := storage.NewCache(store, rc, envDur("TASKS_CACHE_TTL", 5*time.Minute))
	locker := api.NewRedisSyncLocker(rc, envDur("SYNC_LOCK_TTL", 2*time.Minute))

	eventsURL := os.Getenv("CALENDAR_EVENTS_URL")
	if eventsURL == "" {
		eventsURL = defaultCalendarEventsURL
	}
	maxResults := envInt("CALENDAR_MAX_RESULTS", 100)
	if maxResults < 0 {
		log.Fatal("invalid CALENDAR_MAX_RESULTS: must not be negative")
	}
	source := calendar.New(eventsURL, maxResults, envDur("CALENDAR_TIMEOUT", 15*time.Second))

	logger := log.New()
	engine := sync.New(source, cached, logger)

	testMode := os.Getenv("AUTH0_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, cached, engine, auth, locker, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// redisOptions parses either a redis URL or an Azure-style comma separated
// connection string.
func redisOptions(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return n
}

func envDur(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}
