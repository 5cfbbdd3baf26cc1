package main

import (
	"log"
	"time"

	"collab-backend/internal/archive"
	"collab-backend/internal/authority"
	"collab-backend/internal/cache"
	"collab-backend/internal/config"
	"collab-backend/internal/database"
	"collab-backend/internal/server"
)

func main() {
	cfg := config.Load()

	store := buildCache(&cfg.Cache)

	// Archive database is optional; realtime collaboration runs
	// without it, the history API just stays dark.
	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		db, err := database.Connect()
		if err != nil {
			log.Fatalf("❌ Database connection failed: %v", err)
		}
		archiver = archive.New(db)
		log.Printf("✅ Chat archive enabled")
	} else {
		log.Println("ℹ️ Chat archive disabled (ARCHIVE_ENABLED=false)")
	}

	// A nil *Archiver must not become a non-nil interface value.
	var hubArchiver authority.MessageArchiver
	if archiver != nil {
		hubArchiver = archiver
	}
	hub := authority.NewHub(hubArchiver, store, cfg.Cache.TTL)

	// Periodically reap rooms nobody has rejoined.
	go func() {
		ticker := time.NewTicker(cfg.Rooms.CleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			hub.CleanupInactiveRooms(cfg.Rooms.EmptyRoomMaxAge)
		}
	}()

	srv := server.New(cfg, hub, archiver)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// buildCache selects the room state store. Every backend failure is
// fatal here: a half-configured store silently losing classrooms is
// worse than refusing to start.
func buildCache(cfg *config.CacheConfig) cache.Store {
	switch cfg.Backend {
	case "redis":
		store, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("❌ Redis cache failed: %v", err)
		}
		return store
	case "sqlite":
		store, err := cache.NewSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("❌ SQLite cache failed: %v", err)
		}
		log.Printf("✅ SQLite cache at %s", cfg.SQLitePath)
		return store
	case "memory":
		return cache.NewMemory()
	default:
		log.Fatalf("❌ Unknown CACHE_BACKEND %q (want memory, redis or sqlite)", cfg.Backend)
		return nil
	}
}
