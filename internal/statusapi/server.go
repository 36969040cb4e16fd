package statusapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/ledger"
	"github.com/betbot/crossarb/pkg/logger"
)

// PairStatus is the live view of one symbol's tracked window pair.
type PairStatus struct {
	Symbol        string    `json:"symbol"`
	Slug15m       string    `json:"slug_15m"`
	Slug5m        string    `json:"slug_5m"`
	InOverlap     bool      `json:"in_overlap"`
	RefCaptured   bool      `json:"ref_captured"`
	SumUpDown     string    `json:"sum_up_down"`
	SumDownUp     string    `json:"sum_down_up"`
	BookUpdated   time.Time `json:"book_updated"`
	TradeInFlight bool      `json:"trade_in_flight"`
}

// StatusSource is implemented by the engine; every method is a read-only
// snapshot.
type StatusSource interface {
	Pairs() []PairStatus
}

// Server exposes read-only operational state over HTTP. It never mutates
// anything; control stays with the process owner.
type Server struct {
	src StatusSource
	lgr *ledger.Ledger
	log *logrus.Entry

	http *http.Server
}

func New(src StatusSource, lgr *ledger.Ledger) *Server {
	s := &Server{
		src: src,
		lgr: lgr,
		log: logger.Logger.WithField("component", "statusapi"),
	}
	return s
}

func (s *Server) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/pairs", s.handlePairs)
	api.GET("/trades", s.handleTrades)
	api.GET("/positions", s.handlePositions)
	api.GET("/stats", s.handleStats)
	return r
}

// Start listens on addr without blocking and shuts down on ctx cancel.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.http = &http.Server{Addr: addr, Handler: s.router()}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("status server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	s.log.Infof("status API listening on %s", addr)
	return nil
}

func (s *Server) handlePairs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pairs": s.src.Pairs()})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	trades, err := s.lgr.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.lgr.OpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.lgr.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"completed":           stats.Completed,
		"aborted":             stats.Aborted,
		"manual_intervention": stats.ManualIntervention,
	})
}
