package requestlog

import (
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/log"
	"github.com/juniorsir/stream-dl/internal/metrics"
	"github.com/juniorsir/stream-dl/internal/model"
	"github.com/juniorsir/stream-dl/internal/netutil"
)

// CountryLookup maps a client address to an ISO country code ("" if unknown).
type CountryLookup interface {
	Lookup(ip netip.Addr) string
}

// Writer persists a batch of request logs.
type Writer interface {
	InsertBatch(entries []model.RequestLog) (int, error)
}

// Record is the caller-facing input for one resolution request.
type Record struct {
	URL      string
	ClientIP netip.Addr
	Source   model.RequestLogSource
	Caller   string
}

// Service provides an async request log writer.
// Emit performs a non-blocking channel send (drops on overflow).
// A background goroutine flushes batches to the Writer.
type Service struct {
	writer    Writer
	geo       CountryLookup
	now       func() time.Time
	queue     chan model.RequestLog
	batchSize int
	interval  time.Duration
	logger    zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// ServiceConfig configures the request log service.
type ServiceConfig struct {
	Writer        Writer
	Geo           CountryLookup // optional
	QueueSize     int
	FlushBatch    int
	FlushInterval time.Duration
	Now           func() time.Time // optional, defaults to time.Now
}

// NewService creates a new request log service.
func NewService(cfg ServiceConfig) *Service {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 4096
	}
	batchSize := cfg.FlushBatch
	if batchSize <= 0 {
		batchSize = 256
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		writer:    cfg.Writer,
		geo:       cfg.Geo,
		now:       now,
		queue:     make(chan model.RequestLog, queueSize),
		batchSize: batchSize,
		interval:  interval,
		logger:    log.WithComponent("requestlog"),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background flush goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.flushLoop()
}

// Stop signals the flush loop to stop, drains remaining entries, and returns.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Log builds a RequestLog from rec (id, domain, day and country are derived)
// and enqueues it.
func (s *Service) Log(rec Record) {
	entry := model.RequestLog{
		ID:        uuid.NewString(),
		URL:       rec.URL,
		Domain:    netutil.ExtractDomain(rec.URL),
		Timestamp: s.now().UTC(),
		Source:    rec.Source,
		Caller:    rec.Caller,
	}
	if entry.Source == "" {
		entry.Source = model.RequestLogSourceWeb
	}
	if s.geo != nil && rec.ClientIP.IsValid() {
		entry.CountryCode = s.geo.Lookup(rec.ClientIP)
	}
	s.Emit(entry)
}

// Emit enqueues a log entry. Non-blocking; drops on overflow.
func (s *Service) Emit(entry model.RequestLog) {
	select {
	case s.queue <- entry:
	default:
		metrics.RequestLogDroppedTotal.Inc()
	}
}

// flushLoop runs until stopCh is closed, flushing on batch-size or timer.
func (s *Service) flushLoop() {
	defer s.wg.Done()

	batch := make([]model.RequestLog, 0, s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-s.queue:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-s.stopCh:
			s.drainAndFlush(batch)
			return
		}
	}
}

func (s *Service) drainAndFlush(batch []model.RequestLog) {
	for {
		select {
		case entry := <-s.queue:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *Service) flush(entries []model.RequestLog) {
	n, err := s.writer.InsertBatch(entries)
	if err != nil {
		s.logger.Error().Err(err).Int("entries", len(entries)).Msg("flush failed")
		return
	}
	if n > 0 {
		metrics.RequestLogFlushedTotal.Add(float64(n))
		s.logger.Debug().Int("entries", n).Msg("flushed")
	}
}
