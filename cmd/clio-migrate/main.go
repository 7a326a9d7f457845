package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/casefront/clio-migrate/pkg/clio"
	"github.com/casefront/clio-migrate/pkg/connstore"
	"github.com/casefront/clio-migrate/pkg/importer"
	"github.com/casefront/clio-migrate/pkg/logging"
	"github.com/casefront/clio-migrate/pkg/migration"
	"github.com/casefront/clio-migrate/pkg/progress"
	"github.com/casefront/clio-migrate/pkg/ratelimit"
	"github.com/casefront/clio-migrate/pkg/store"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	port := getEnv("PORT", "8080")
	databaseURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	clioBaseURL := getEnv("CLIO_BASE_URL", clio.DefaultBaseURL)
	userAgent := getEnv("USER_AGENT", "clio-migrate/0.1.0")
	retention := getDurationEnv("SESSION_RETENTION", progress.DefaultRetention)
	connTTL := getDurationEnv("CONNECTION_TTL", connstore.DefaultTTL)

	if databaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}

	ctx := context.Background()

	pg, err := store.Open(ctx, databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open postgres store")
	}
	defer pg.Close()
	logger.Info().Msg("Connected to Postgres, schema applied")

	// Redis is optional: without it the rate budget is process-local and
	// credentials live in memory, which is fine for a single instance.
	var (
		pacer clio.Pacer
		creds connstore.Store
	)
	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
		}
		pacer = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))
		creds = connstore.NewRedis(redisClient, connTTL)
		logger.Info().Str("addr", redisURL).Msg("Connected to Redis")
	} else {
		mem := connstore.NewMemory(connTTL)
		defer mem.Close()
		creds = mem
		logger.Warn().Msg("REDIS_URL not set, using in-memory credential store")
	}

	tracker := progress.NewTracker(retention)
	defer tracker.Close()

	clioCfg := clio.DefaultConfig(userAgent)
	clioCfg.BaseURL = clioBaseURL
	svc := migration.NewService(migration.Config{
		Credentials: creds,
		Store:       pg,
		Tracker:     tracker,
		Retention:   retention,
		NewFetcher: func(tokens clio.TokenSource) importer.Fetcher {
			c, err := clio.New(clioCfg, tokens, pacer)
			if err != nil {
				logger.Fatal().Err(err).Msg("Failed to create API client")
			}
			return importer.NewClioFetcher(c)
		},
	})
	defer svc.Close()

	api := &apiServer{svc: svc, creds: creds}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", api.health)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/connections", api.connections)
	mux.HandleFunc("/connections/", api.connectionByID)
	mux.HandleFunc("/sessions", api.sessions)
	mux.HandleFunc("/sessions/", api.sessionByID)

	addr := ":" + port
	logger.Info().Str("addr", addr).Msg("Starting migration server")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

type apiServer struct {
	svc   *migration.Service
	creds connstore.Store
}

func (s *apiServer) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type connectRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// connections registers the OAuth tokens obtained by the caller's
// authorization-code exchange and hands back a connection id.
func (s *apiServer) connections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		http.Error(w, "access_token is required", http.StatusBadRequest)
		return
	}

	creds := connstore.Credentials{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		CreatedAt:    time.Now(),
	}
	if req.ExpiresIn > 0 {
		creds.ExpiresAt = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	connectionID := uuid.NewString()
	if err := s.creds.Put(r.Context(), connectionID, creds); err != nil {
		http.Error(w, "failed to store credentials", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"connection_id": connectionID})
}

func (s *apiServer) connectionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	connectionID := strings.TrimPrefix(r.URL.Path, "/connections/")
	if connectionID == "" {
		http.Error(w, "connection id is required", http.StatusBadRequest)
		return
	}
	if err := s.svc.Disconnect(r.Context(), connectionID); err != nil {
		http.Error(w, "disconnect failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req migration.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sessionID, err := s.svc.StartSession(r.Context(), req)
	if err != nil {
		if errors.Is(err, connstore.ErrNotFound) {
			http.Error(w, "unknown connection", http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

// sessionByID serves /sessions/{id}/progress and /sessions/{id}/result.
func (s *apiServer) sessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	sessionID, action, _ := strings.Cut(rest, "/")

	switch action {
	case "progress":
		snap, err := s.svc.GetProgress(sessionID)
		if err != nil {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case "result":
		result, err := s.svc.GetResult(sessionID)
		switch {
		case errors.Is(err, migration.ErrUnknownSession):
			http.Error(w, "unknown session", http.StatusNotFound)
		case errors.Is(err, migration.ErrSessionRunning):
			http.Error(w, "session still running", http.StatusConflict)
		case err != nil:
			// Failed session: surface the partial result with the error.
			writeJSON(w, http.StatusOK, map[string]any{
				"error":  err.Error(),
				"result": result,
			})
		default:
			writeJSON(w, http.StatusOK, result)
		}
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
