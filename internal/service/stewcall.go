package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"renaissance-stewcall/internal/alerts"
	"renaissance-stewcall/internal/config"
	"renaissance-stewcall/internal/consumer"
	"renaissance-stewcall/internal/ledger"
	"renaissance-stewcall/internal/models"
	"renaissance-stewcall/internal/notifier"
	"renaissance-stewcall/internal/parser"
	"renaissance-stewcall/internal/reconciler"
	"renaissance-stewcall/internal/repository"

	"go.uber.org/zap"
)

// DefaultActor recorded as ack/clear author when the UI names nobody
const DefaultActor = "Dashboard User"

// ServiceCallService wires ingestion, reconciliation, alerts and the ledger.
// One mutex serialises payload application, the flash sweep and every
// UI command; notification delivery happens outside it.
type ServiceCallService struct {
	cfg       *config.Config
	logger    *zap.Logger
	ledger    *ledger.Ledger
	fetcher   *consumer.Fetcher
	notifier  notifier.Notifier
	directory repository.GuestDirectory
	now       func() time.Time

	mu         sync.Mutex
	projection *alerts.Projection
	reconciler *reconciler.Reconciler
	lastReport reconciler.CycleReport

	stream *consumer.StreamClient
	poller *consumer.PollScheduler

	polling atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServiceCallService creates the service. directory may be nil.
func NewServiceCallService(
	cfg *config.Config,
	l *ledger.Ledger,
	fetcher *consumer.Fetcher,
	n notifier.Notifier,
	directory repository.GuestDirectory,
	logger *zap.Logger,
) *ServiceCallService {
	s := &ServiceCallService{
		cfg:       cfg,
		logger:    logger,
		ledger:    l,
		fetcher:   fetcher,
		notifier:  n,
		directory: directory,
		now:       time.Now,
	}

	s.projection = alerts.NewProjection(l, logger, alerts.WithGreenFlash(cfg.Alerts.GreenFlash))
	mode := parser.XMLTypeOnly
	if s.xmlOnly() {
		mode = parser.XMLServiceLike
	}
	s.reconciler = reconciler.New(
		parser.NewParser(mode, logger),
		l,
		s.projection,
		logger,
		reconciler.WithCaps(cfg.Alerts.NotifyCap, cfg.Alerts.AckAttributionCap),
	)
	s.poller = consumer.NewPollScheduler(cfg.Poll.MinInterval, cfg.Poll.Interval, cfg.Poll.MaxBackoff, s.pollOnce, logger)
	if s.streaming() {
		s.stream = consumer.NewStreamClient(cfg.Stream.URL, cfg.Stream.ReconnectDelay, s, logger)
	}
	return s
}

func (s *ServiceCallService) streaming() bool {
	return s.cfg.Stream.Enabled && s.cfg.Stream.URL != ""
}

// xmlOnly polling deployments that read the XML feed with the wider filter
func (s *ServiceCallService) xmlOnly() bool {
	return s.cfg.Poll.XMLOnly && !s.streaming()
}

// Start runs the ingestion channel and the flash sweep until Stop
func (s *ServiceCallService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.ledger.ScheduleCleanup(ctx, s.cfg.Ledger.CleanupDelay)

	channel := "poll"
	if s.stream != nil {
		channel = "stream"
	}
	s.logger.Info("Starting service call service",
		zap.String("channel", channel),
		zap.String("stream_url", s.cfg.Stream.URL),
		zap.Duration("poll_interval", s.cfg.Poll.Interval),
	)

	if s.stream == nil {
		s.polling.Store(true)
	}
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if s.stream != nil {
			s.stream.Run(ctx)
			return
		}
		defer s.polling.Store(false)
		s.poller.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.sweepLoop(ctx)
	}()
	return nil
}

// Stop cancels the channel and the sweep and waits for both
func (s *ServiceCallService) Stop() {
	s.logger.Info("Stopping service call service")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *ServiceCallService) sweepLoop(ctx context.Context) {
	interval := s.cfg.Alerts.SweepInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep applies flash decay once
func (s *ServiceCallService) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projection.Sweep(s.now())
}

// OnReset clears in-memory state before a fresh stream connection
func (s *ServiceCallService) OnReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciler.Reset()
}

// OnEvent handles one stream event
func (s *ServiceCallService) OnEvent(ctx context.Context, ev models.StreamEvent) {
	switch ev.Type {
	case models.EventLogData:
		s.apply(ctx, models.Payload{
			Kind:      parser.Detect("", ev.Data),
			Body:      ev.Data,
			Source:    ev.Source,
			FetchedAt: time.UnixMilli(ev.Timestamp),
		})
	case models.EventAlarmData:
		s.apply(ctx, models.Payload{
			Kind:      models.SourceXML,
			Body:      ev.Data,
			Source:    ev.Source,
			FetchedAt: time.UnixMilli(ev.Timestamp),
		})
	case models.EventError:
		s.logger.Warn("Aggregator reported upstream error", zap.String("message", ev.Message))
	case models.EventConnected, models.EventHeartbeat:
	default:
		s.logger.Debug("Ignoring unknown stream event", zap.String("type", ev.Type))
	}
}

// pollOnce pull-channel cycle
func (s *ServiceCallService) pollOnce(ctx context.Context) error {
	fetch := s.fetcher.Fetch
	if s.xmlOnly() {
		fetch = s.fetcher.FetchXML
	}
	p, err := fetch(ctx)
	if err != nil {
		return err
	}
	s.apply(ctx, p)
	return nil
}

// apply reconciles one payload and delivers its notifications
func (s *ServiceCallService) apply(ctx context.Context, p models.Payload) reconciler.CycleReport {
	s.mu.Lock()
	report := s.reconciler.Apply(p)
	s.lastReport = report
	s.mu.Unlock()

	s.deliver(ctx, report.Notifications)
	return report
}

// deliver resolves guest names and fans out; failures never reach the loop
func (s *ServiceCallService) deliver(ctx context.Context, notes []models.Notification) {
	if len(notes) == 0 || s.notifier == nil {
		return
	}
	var codes []string
	for _, n := range notes {
		codes = append(codes, n.WristbandIDs...)
	}
	guests := s.lookupGuests(ctx, codes)

	for _, n := range notes {
		for _, w := range n.WristbandIDs {
			if g, ok := guests[strings.ToUpper(w)]; ok && g.GuestName != "" {
				n.GuestNames = append(n.GuestNames, g.GuestName)
			}
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("Failed to deliver notification",
				zap.String("notification_id", n.ID),
				zap.Int64("alarm_id", n.CallID),
				zap.Error(err),
			)
		}
	}
}

func (s *ServiceCallService) lookupGuests(ctx context.Context, codes []string) map[string]models.Guest {
	if s.directory == nil || len(codes) == 0 {
		return nil
	}
	guests, err := s.directory.LookupWristbands(ctx, codes)
	if err != nil {
		s.logger.Warn("Guest directory lookup failed", zap.Int("codes", len(codes)), zap.Error(err))
		return nil
	}
	return guests
}

// Refresh asks for an immediate fetch, subject to the minimum poll interval.
// While the poll loop runs the request goes through it; before Start the
// cycle runs inline. The stream channel ignores it.
func (s *ServiceCallService) Refresh(ctx context.Context) error {
	if s.stream != nil {
		return consumer.ErrStreaming
	}
	if s.polling.Load() {
		return s.poller.Trigger()
	}
	return s.poller.RunOnce(ctx)
}

// AcceptServiceCall accepts the open alerts of a wristband, or only callID
func (s *ServiceCallService) AcceptServiceCall(ctx context.Context, wristbandID string, callID *int64, by string) int {
	s.mu.Lock()
	flipped := s.reconciler.AcceptWristband(wristbandID, callID, actor(by))
	notes := s.reconciler.AcceptedNotifications(flipped)
	s.mu.Unlock()

	s.deliver(ctx, notes)
	return len(flipped)
}

// AcceptAllServiceCalls accepts every open alert
func (s *ServiceCallService) AcceptAllServiceCalls(ctx context.Context, by string) int {
	s.mu.Lock()
	flipped := s.reconciler.AcceptAll(actor(by))
	notes := s.reconciler.AcceptedNotifications(flipped)
	s.mu.Unlock()

	s.deliver(ctx, notes)
	return len(flipped)
}

// ClearServiceCalls clears everything from display for good
func (s *ServiceCallService) ClearServiceCalls(by string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.ClearAll(actor(by))
}

// ClearActiveServiceCalls clears the calls nobody has accepted yet
func (s *ServiceCallService) ClearActiveServiceCalls(by string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.ClearActive(actor(by))
}

// HideServiceCall hides one call; ledger.ErrNotFound for unknown ids
func (s *ServiceCallService) HideServiceCall(callID int64, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Hide(callID, actor(by))
}

// GetWristbandAlerts alerts for one wristband with guest details
func (s *ServiceCallService) GetWristbandAlerts(ctx context.Context, wristbandID string) []models.ServiceCallAlert {
	s.mu.Lock()
	out := s.projection.ForWristband(wristbandID)
	s.mu.Unlock()
	return s.annotate(ctx, out)
}

// Alerts every alert with guest details
func (s *ServiceCallService) Alerts(ctx context.Context) []models.ServiceCallAlert {
	s.mu.Lock()
	out := s.projection.All()
	s.mu.Unlock()
	return s.annotate(ctx, out)
}

// GetServiceCallCount open calls for one wristband
func (s *ServiceCallService) GetServiceCallCount(wristbandID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projection.Count(wristbandID)
}

// Records displayed service calls, newest first
func (s *ServiceCallService) Records() []models.ServiceCallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciler.Records()
}

// LastReport outcome of the latest payload
func (s *ServiceCallService) LastReport() reconciler.CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// ConnectionStatus state of the active ingestion channel
func (s *ServiceCallService) ConnectionStatus() consumer.ConnectionStatus {
	if s.stream != nil {
		return s.stream.Status()
	}
	return s.poller.Status()
}

// LedgerStats entry counts per ledger status
func (s *ServiceCallService) LedgerStats() map[models.LedgerStatus]int {
	return s.ledger.Stats()
}

// LedgerEntries every ledger entry, oldest first
func (s *ServiceCallService) LedgerEntries() []models.LedgerEntry {
	return s.ledger.Entries()
}

func (s *ServiceCallService) annotate(ctx context.Context, list []models.ServiceCallAlert) []models.ServiceCallAlert {
	if len(list) == 0 {
		return list
	}
	codes := make([]string, 0, len(list))
	for _, a := range list {
		codes = append(codes, a.WristbandID)
	}
	guests := s.lookupGuests(ctx, codes)
	for i := range list {
		if g, ok := guests[strings.ToUpper(list[i].WristbandID)]; ok {
			list[i].GuestName = g.GuestName
			list[i].CabinCode = g.CabinCode
		}
	}
	return list
}

func actor(by string) string {
	if strings.TrimSpace(by) == "" {
		return DefaultActor
	}
	return strings.TrimSpace(by)
}
