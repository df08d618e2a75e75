// Package fakeapi is an in-process stand-in for the BridgeIQ HTTP API. It
// accepts submissions, advances each analysis one state per poll and serves
// placeholder PDF reports.
package fakeapi

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"bridgeiq-client/internal/shared/server/middleware"
	"bridgeiq-client/internal/shared/server/respond"
)

const (
	defaultTokenCost       = 1
	defaultPollsToComplete = 2
	defaultRadiography     = "panoramic_adult"
)

var radiographyTypes = map[string]struct{}{
	"panoramic_adult": {},
	"panoramic_child": {},
	"bitewing":        {},
	"periapical":      {},
	"cephalometric":   {},
}

var reportTypes = map[string]struct{}{
	"standard": {},
	"detailed": {},
}

// Config controls the fake service.
type Config struct {
	Credentials middleware.Credentials
	// Tokens is the starting balance per client id. Zero means unlimited.
	Tokens    int
	TokenCost int
	// PollsToComplete is how many status checks an analysis spends before
	// completing. The first is PENDING, the rest PROCESSING.
	PollsToComplete int
	// RateLimit enables request throttling when set.
	RateLimit *middleware.RateLimitConfig
	Now       func() time.Time
}

// Server holds the fake service state. It is safe for concurrent use.
type Server struct {
	cfg Config

	mu       sync.Mutex
	analyses map[string]*analysis
	tokens   map[string]int
}

type analysis struct {
	AnalysisID      string
	RequestID       string
	ClientID        string
	DevicePath      string
	RadiographyType string
	ReportType      string
	PatientID       string
	Status          string
	ErrorMessage    string
	ReportID        string
	Polls           int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New builds a Server. Zero values in cfg select the defaults.
func New(cfg Config) *Server {
	if cfg.TokenCost <= 0 {
		cfg.TokenCost = defaultTokenCost
	}
	if cfg.PollsToComplete <= 0 {
		cfg.PollsToComplete = defaultPollsToComplete
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tokens <= 0 {
		cfg.Tokens = -1
	}
	return &Server{
		cfg:      cfg,
		analyses: make(map[string]*analysis),
		tokens:   make(map[string]int),
	}
}

// Router constructs the Gin engine with middleware and routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
	)
	if s.cfg.RateLimit != nil {
		rl := *s.cfg.RateLimit
		if rl.GroupFor == nil {
			rl.GroupFor = rateGroup
		}
		r.Use(middleware.RateLimit(rl))
	}

	api := r.Group("/api/v1")
	api.GET("/utils/health-check/", s.health)

	devices := api.Group("/webhooks/devices/:device")
	devices.Use(middleware.DeviceAuth(s.cfg.Credentials))
	devices.POST("/requests", s.submit)
	devices.GET("/requests/:id", s.status)

	r.GET("/reports/:file", s.report)
	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "Route not found", nil)
	})
	return r
}

// Balance returns the remaining tokens of a client id, or -1 when unlimited.
func (s *Server) Balance(clientID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(clientID)
}

func (s *Server) balanceLocked(clientID string) int {
	if bal, ok := s.tokens[clientID]; ok {
		return bal
	}
	return s.cfg.Tokens
}

func (s *Server) health(c *gin.Context) {
	respond.JSON(c, http.StatusOK, gin.H{"status": true})
}

func rateGroup(c *gin.Context) middleware.RateGroup {
	if c.Request.Method == http.MethodGet {
		return middleware.RateGroupPolling
	}
	return middleware.RateGroupDefault
}

func reportFile(reportID string) string {
	return fmt.Sprintf("%s.pdf", reportID)
}

func reportIDFromFile(file string) string {
	return strings.TrimSuffix(file, ".pdf")
}
