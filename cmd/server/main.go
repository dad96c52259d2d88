package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/spksound/syncroom/internal/api"
	"github.com/spksound/syncroom/internal/clock"
	"github.com/spksound/syncroom/internal/config"
	"github.com/spksound/syncroom/internal/server"
	"github.com/spksound/syncroom/internal/stats"
	"github.com/spksound/syncroom/internal/store"
	"github.com/spksound/syncroom/internal/transcode"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr              string
	redisAddr         string
	redisPassword     string
	redisDB           int
	ntpHost           string
	transcodeEndpoint string
	allowedOrigins    stringSliceFlag
	gainFloor         float64
	gainExponent      float64
	spatialRadius     float64
	tickInterval      time.Duration
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; flags override it
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("SYNCROOM_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&redisAddr, "redis-addr", envOr("SYNCROOM_REDIS_ADDR", ""), "redis address; empty uses the in-memory store")
	flag.StringVar(&redisPassword, "redis-password", envOr("SYNCROOM_REDIS_PASSWORD", ""), "redis password")
	flag.IntVar(&redisDB, "redis-db", 0, "redis database number")
	flag.StringVar(&ntpHost, "ntp-host", envOr("SYNCROOM_NTP_HOST", "pool.ntp.org"), "NTP reference time host; empty trusts the local clock")
	flag.StringVar(&transcodeEndpoint, "transcode-endpoint", envOr("SYNCROOM_TRANSCODE_ENDPOINT", ""), "transcoding pipeline URL; empty streams media URLs directly")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Float64Var(&gainFloor, "gain-floor", 0.1, "minimum spatial gain")
	flag.Float64Var(&gainExponent, "gain-exponent", 1, "spatial falloff exponent (1 linear, 2 quadratic)")
	flag.Float64Var(&spatialRadius, "spatial-radius", 5, "listener circle radius")
	flag.DurationVar(&tickInterval, "spatial-tick", 100*time.Millisecond, "spatial motion tick interval")
	flag.Parse()

	logger := log.New(os.Stderr, "[syncroom] ", log.LstdFlags)

	spatialCfg := config.DefaultSpatial()
	spatialCfg.GainFloor = gainFloor
	spatialCfg.GainExponent = gainExponent
	spatialCfg.Radius = spatialRadius
	spatialCfg.TickInterval = tickInterval

	cfg, err := config.NewConfig(addr, redisAddr, ntpHost, transcodeEndpoint, allowedOrigins, spatialCfg)
	if err != nil {
		logger.Fatal("config:", err)
	}

	var roomStore store.RoomStore
	if cfg.RedisAddr != "" {
		roomStore = store.NewRedisRoomStore(cfg.RedisAddr, redisPassword, redisDB)
	} else {
		logger.Println("no redis address configured, using in-memory room store")
		roomStore = store.NewMemoryRoomStore()
	}
	defer func() {
		if err := roomStore.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	var source clock.ReferenceSource = clock.LocalSource{}
	if cfg.NTPHost != "" {
		source = clock.NewNTPSource(cfg.NTPHost)
	}
	clk := clock.NewClock(source, cfg.ResyncInterval, logger)
	clk.Run()
	defer clk.Stop()

	var transcoder transcode.Transcoder = transcode.PassthroughTranscoder{}
	if cfg.TranscodeEndpoint != "" {
		transcoder = transcode.NewHTTPTranscoder(cfg.TranscodeEndpoint)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	roomServer, err := server.NewRoomServer(logger, roomStore, clk, transcoder, statsUpdater, cfg.Spatial)
	if err != nil {
		logger.Fatal("new room server:", err)
	}

	srv := api.NewSyncRoomApp(mux, logger, roomServer, roomStore, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go roomServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down room server...")
	if err := roomServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("room server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
