package service

import (
	"context"
	"log/slog"
	"time"
)

// SessionSweeper handles background expiry of idle sessions
type SessionSweeper struct {
	bookingService *BookingService
	interval       time.Duration
	ttl            time.Duration
	stopChan       chan struct{}
}

// NewSessionSweeper creates a new session sweeper
func NewSessionSweeper(bookingService *BookingService, interval, ttl time.Duration) *SessionSweeper {
	return &SessionSweeper{
		bookingService: bookingService,
		interval:       interval,
		ttl:            ttl,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (ss *SessionSweeper) Start() {
	go ss.sweepLoop()
	slog.Info("Session sweeper started", "interval", ss.interval, "ttl", ss.ttl)
}

// Stop stops the background sweep loop
func (ss *SessionSweeper) Stop() {
	close(ss.stopChan)
	slog.Info("Session sweeper stopped")
}

func (ss *SessionSweeper) sweepLoop() {
	ticker := time.NewTicker(ss.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ss.sweepIdleSessions()
		case <-ss.stopChan:
			return
		}
	}
}

func (ss *SessionSweeper) sweepIdleSessions() {
	removed := ss.bookingService.Sweep(context.Background(), ss.ttl)
	if removed > 0 {
		slog.Info("Swept idle sessions", "removed", removed, "remaining", ss.bookingService.ActiveSessionCount())
	}
}
