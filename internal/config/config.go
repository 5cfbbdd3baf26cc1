package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config application-wide settings
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Presence  PresenceConfig
	Cache     CacheConfig
	Archive   ArchiveConfig
	Auth      AuthConfig
	Rooms     RoomsConfig
	CORS      CORSConfig
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WebSocketConfig websocket edge settings
type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// PresenceConfig presence throttling
type PresenceConfig struct {
	// BroadcastWindow coalesces outbound presence updates; 0 disables
	// throttling and publishes every update.
	BroadcastWindow time.Duration
}

// CacheConfig local room cache settings. Backend selects the
// implementation: "memory", "redis" or "sqlite".
type CacheConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	TTL           time.Duration
}

// ArchiveConfig durable chat archive settings
type ArchiveConfig struct {
	Enabled bool
}

// AuthConfig room join token settings
type AuthConfig struct {
	RoomTokenSecret string
	RoomTokenExpiry time.Duration
}

// RoomsConfig authority housekeeping
type RoomsConfig struct {
	CleanupInterval time.Duration
	EmptyRoomMaxAge time.Duration
}

// CORSConfig CORS settings
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// Load reads settings from the environment.
func Load() *Config {
	// .env is optional; absence is not an error
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	tokenSecret := getRequiredEnv("ROOM_TOKEN_SECRET")
	if tokenSecret == "change-this-secret-in-production" {
		log.Fatal("🚨 CRITICAL: ROOM_TOKEN_SECRET must be changed from default value in production!")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize:  getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			HandshakeTimeout: getDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
			WriteTimeout:     getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		},
		Presence: PresenceConfig{
			BroadcastWindow: getDuration("PRESENCE_BROADCAST_WINDOW", 40*time.Millisecond),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getInt("REDIS_DB", 0),
			SQLitePath:    getEnv("CACHE_SQLITE_PATH", "collab-cache.db"),
			TTL:           getDuration("CACHE_TTL", 24*time.Hour),
		},
		Archive: ArchiveConfig{
			Enabled: getBool("ARCHIVE_ENABLED", false),
		},
		Auth: AuthConfig{
			RoomTokenSecret: tokenSecret,
			RoomTokenExpiry: getDuration("ROOM_TOKEN_EXPIRY", 4*time.Hour),
		},
		Rooms: RoomsConfig{
			CleanupInterval: getDuration("ROOM_CLEANUP_INTERVAL", 5*time.Minute),
			EmptyRoomMaxAge: getDuration("EMPTY_ROOM_MAX_AGE", 30*time.Minute),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
	}
}

// getRequiredEnv fetches a required variable or exits.
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("🚨 CRITICAL: Required environment variable %s is not set!", key)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration reads a duration; a bare number is taken as seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
