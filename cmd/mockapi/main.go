package main

// Local stand-in for the BridgeIQ API:
//   BRIDGEIQ_CLIENT_ID=dev BRIDGEIQ_CLIENT_SECRET=dev go run ./cmd/mockapi

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bridgeiq-client/internal/fakeapi"
	"bridgeiq-client/internal/shared/config"
	"bridgeiq-client/internal/shared/server/middleware"
	"bridgeiq-client/internal/shared/telemetry"
)

const (
	defaultPollRate    = 5
	defaultSubmitRate  = 1
	defaultRateBurst   = 10
	defaultPollsNeeded = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		log.Fatal("BRIDGEIQ_CLIENT_ID and BRIDGEIQ_CLIENT_SECRET are required")
	}
	telemetry.Configure(telemetry.ParseLevel(cfg.LogLevel), os.Stderr)
	gin.SetMode(gin.ReleaseMode)

	fakeCfg := fakeapi.Config{
		Credentials:     middleware.Credentials{cfg.ClientID: cfg.ClientSecret},
		Tokens:          envInt("MOCK_TOKENS", 0),
		TokenCost:       envInt("MOCK_TOKEN_COST", 1),
		PollsToComplete: envInt("MOCK_POLLS_TO_COMPLETE", defaultPollsNeeded),
	}
	if envBool("MOCK_RATE_LIMIT") {
		burst := envInt("MOCK_RATE_BURST", defaultRateBurst)
		fakeCfg.RateLimit = &middleware.RateLimitConfig{
			Rules: map[middleware.RateGroup]middleware.RateLimitRule{
				middleware.RateGroupPolling: {Rate: float64(envInt("MOCK_POLL_RATE", defaultPollRate)), Burst: burst},
				middleware.RateGroupDefault: {Rate: float64(envInt("MOCK_SUBMIT_RATE", defaultSubmitRate)), Burst: burst},
			},
		}
	}

	r := fakeapi.New(fakeCfg).Router()
	addr := listenAddr(cfg.Port)
	log.Printf("mock BridgeIQ API on %s (client_id=%s polls_to_complete=%d)", addr, cfg.ClientID, fakeCfg.PollsToComplete)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func listenAddr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func envBool(key string) bool {
	val, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return val
}
