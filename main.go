package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"epgcacher/api"
	"epgcacher/config"
	"epgcacher/handlers"
	"epgcacher/internal/database"
	"epgcacher/services/cache"
	"epgcacher/services/mapping"
	"epgcacher/services/query"
	"epgcacher/services/refresher"
	"epgcacher/services/source"
	"epgcacher/utils"
)

func main() {
	fs := afero.NewOsFs()

	manager := config.NewManager(fs, "config.json")
	settings, err := manager.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := settings.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	setupLogging(settings)
	log.Printf("[main] starting epg-cacher: %d sources, interval %s", len(settings.Sources), settings.Interval())

	db, err := database.NewDB(database.Config{DatabasePath: settings.DatabasePath})
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	historyRepo := database.NewRefreshRepository(db.Connection())

	mappingStore := mapping.NewStore(fs, filepath.Join(settings.OutputDir, "channel_mapping.csv"))
	if err := mappingStore.Load(); err != nil {
		log.Fatalf("load channel mapping: %v", err)
	}

	httpClient := &http.Client{}
	guides, err := buildAdapters(settings.GuideSources(), httpClient, fs)
	if err != nil {
		log.Fatalf("configure guide sources: %v", err)
	}
	icons, err := buildAdapters(settings.IconSources(), httpClient, fs)
	if err != nil {
		log.Fatalf("configure icon sources: %v", err)
	}

	store := cache.NewStore()
	store.SetPersister(cache.NewPersister(fs, settings.OutputDir))

	refreshSvc := refresher.New(settings, store, guides, icons, mappingStore, historyRepo)
	if last, err := historyRepo.LastSuccess(); err != nil {
		log.Printf("[main] reading last successful refresh: %v", err)
	} else if last != nil {
		refreshSvc.SeedLastSuccess(last.FinishedAt)
	}
	querySvc := query.NewService(settings, store, refreshSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	refreshSvc.Start(ctx)

	router := utils.NewRouter()
	router.Use(api.RequestIDMiddleware())
	router.Use(api.LoggingMiddleware())

	epgHandler := handlers.NewEPGHandler(querySvc, refreshSvc, historyRepo)
	mappingsHandler := handlers.NewMappingsHandler(mappingStore, querySvc, refreshSvc)
	logsHandler := handlers.NewLogsHandler(settings.LogFile)
	versionHandler := handlers.NewVersionHandler()

	router.HandleFunc("/epg.xml", epgHandler.GetGuideXML).Methods(http.MethodGet)
	router.HandleFunc("/api/epg/status", epgHandler.GetStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/epg/snapshot", epgHandler.GetSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/api/epg/channels", epgHandler.GetChannels).Methods(http.MethodGet)
	router.HandleFunc("/api/epg/channels/{channelID}/programmes", epgHandler.GetProgrammes).Methods(http.MethodGet)
	router.HandleFunc("/api/epg/history", epgHandler.GetHistory).Methods(http.MethodGet)

	// Manual refresh can hammer the upstreams, so it gets its own limiter.
	refreshLimiter := api.NewIPRateLimiter(rate.Every(12*time.Second), 5)
	router.Handle("/api/epg/refresh",
		api.RateLimitHandler(refreshLimiter, http.HandlerFunc(epgHandler.TriggerRefresh))).Methods(http.MethodPost)

	router.HandleFunc("/api/mappings", mappingsHandler.ListMappings).Methods(http.MethodGet)
	router.HandleFunc("/api/mappings", mappingsHandler.AddMapping).Methods(http.MethodPost)
	router.HandleFunc("/api/mappings/stats", mappingsHandler.GetStats).Methods(http.MethodGet)
	router.HandleFunc("/api/mappings/suggestions", mappingsHandler.GetSuggestions).Methods(http.MethodGet)
	router.HandleFunc("/api/mappings/{guideChannel}", mappingsHandler.DeleteMapping).Methods(http.MethodDelete)

	router.HandleFunc("/api/logs", logsHandler.GetLogs).Methods(http.MethodGet)
	router.HandleFunc("/api/version", versionHandler.GetVersion).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         settings.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("[main] listening on %s", settings.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[main] shutting down")

	refreshSvc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] http shutdown: %v", err)
	}
	log.Println("[main] bye")
}

// setupLogging mirrors log output to stdout and a size-rotated file.
func setupLogging(settings *config.Settings) {
	if settings.LogFile == "" {
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   settings.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotated))
}

func buildAdapters(configs []config.SourceConfig, client *http.Client, fs afero.Fs) ([]source.Adapter, error) {
	adapters := make([]source.Adapter, 0, len(configs))
	for _, cfg := range configs {
		adapter, err := source.New(cfg, client, fs)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}
