package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"botkit/pkg/agent"
	"botkit/pkg/bot"
	"botkit/pkg/bus"
	"botkit/pkg/channel"
	"botkit/pkg/config"
	"botkit/pkg/middleware"
	"botkit/pkg/provider"
	"botkit/pkg/schema"
	"botkit/pkg/store"

	"go.opentelemetry.io/otel/trace"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	providerHealthInterval = 30 * time.Second
)

// Dependencies are the collaborators of a Service. Nil fields are built from
// the config; those the service builds itself are closed when Run returns.
type Dependencies struct {
	Responder provider.Responder
	Store     store.Store
	Bus       *bus.MessageBus
	Reminders *agent.Reminders
	Tracer    trace.Tracer
}

// Service hosts every enabled channel behind its own bot adapter, runs the
// reminder scheduler and serves the HTTP control surface.
type Service struct {
	cfg       *config.Config
	log       *slog.Logger
	responder provider.Responder
	store     store.Store
	bus       *bus.MessageBus
	reminders *agent.Reminders
	bot       *agent.Instance
	channels  []channel.Channel
	adapters  map[string]*bot.Adapter
	closers   []func() error

	mu               sync.RWMutex
	startedAt        time.Time
	providerLastOKAt time.Time
	providerLastErr  string
	channelStates    map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status           string                  `json:"status"`
	UptimeSeconds    int64                   `json:"uptime_seconds"`
	ProviderLastOKAt string                  `json:"provider_last_ok_at,omitempty"`
	ProviderLastErr  string                  `json:"provider_last_error,omitempty"`
	PendingReminders int                     `json:"pending_reminders"`
	Channels         map[string]channelState `json:"channels"`
}

func NewService(cfg *config.Config, channels []channel.Channel, deps Dependencies, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		responder:     deps.Responder,
		store:         deps.Store,
		bus:           deps.Bus,
		reminders:     deps.Reminders,
		channels:      channels,
		adapters:      make(map[string]*bot.Adapter, len(channels)),
		channelStates: make(map[string]channelState, len(channels)),
	}

	if s.responder == nil {
		responder, err := provider.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize provider: %w", err)
		}
		s.responder = responder
	}

	if s.store == nil {
		st, err := store.Open(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.store = st
		s.closers = append(s.closers, st.Close)
	}

	if s.bus == nil {
		s.bus = bus.NewMessageBus()
		s.closers = append(s.closers, func() error {
			s.bus.Close()
			return nil
		})
	}

	if s.reminders == nil && cfg.Scheduler.Enabled {
		s.reminders = agent.NewReminders()
	}

	s.bot = agent.New(s.responder, cfg.Bot, s.reminders, log)

	for _, ch := range channels {
		name := ch.Name()
		if _, exists := s.adapters[name]; exists {
			s.Close()
			return nil, fmt.Errorf("channel %q is configured twice", name)
		}

		adapter, err := s.newAdapter(ch, deps.Tracer)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("configure %s adapter: %w", name, err)
		}
		s.adapters[name] = adapter
		s.channelStates[name] = channelState{}
	}

	return s, nil
}

// newAdapter wires the middleware chain every channel shares. Senders outside
// a channel's allow_from list are stopped before their reference is saved.
func (s *Service) newAdapter(ch channel.Channel, tracer trace.Tracer) (*bot.Adapter, error) {
	chain := []bot.Middleware{
		middleware.Recover(s.log),
		middleware.Tracing(tracer),
		middleware.Logging(s.log),
		middleware.Events(s.bus),
	}
	if allowFrom := s.allowFrom(ch.Name()); len(allowFrom) > 0 {
		chain = append(chain, middleware.NewAllowList(allowFrom, s.log))
	}
	chain = append(chain, middleware.References(s.store, s.log))

	return bot.NewAdapter(ch, bot.WithLogger(s.log), bot.WithMiddleware(chain...))
}

func (s *Service) allowFrom(channelName string) []string {
	switch channelName {
	case "telegram":
		return s.cfg.Channels.Telegram.AllowFrom
	case "discord":
		return s.cfg.Channels.Discord.AllowFrom
	default:
		return nil
	}
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkProviderHealth(ctx); err != nil {
		return err
	}

	go bus.LogEvents(ctx, s.bus, s.log)
	go s.dispatchOutbound(ctx)
	if s.reminders != nil {
		go s.runScheduler(ctx)
	}

	ticker := time.NewTicker(providerHealthInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.checkProviderHealth(ctx)
			}
		}
	}()

	errCh := make(chan error, len(s.channels))
	for _, ch := range s.channels {
		adapter := s.adapters[ch.Name()]
		s.setChannelState(ch.Name(), channelState{Running: true})

		go func() {
			err := ch.Run(ctx, s.processor(adapter))
			s.setChannelState(ch.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", ch.Name(), err)
			}
		}()
	}

	serverErrors := make(chan error, 1)
	go s.runHTTPServer(ctx, serverErrors)

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// processor runs each inbound activity of a channel as a reactive turn.
func (s *Service) processor(adapter *bot.Adapter) channel.Processor {
	return func(ctx context.Context, activity *schema.Activity) error {
		return adapter.ProcessActivity(ctx, activity, s.bot.OnTurn)
	}
}

// Close releases the dependencies the service built itself. Run calls it on
// return.
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("Failed to close gateway dependency", "error", err)
		}
	}
	s.closers = nil
}

func (s *Service) runHTTPServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway HTTP server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start http server: %w", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	providerLastOK := ""
	if !s.providerLastOKAt.IsZero() {
		providerLastOK = s.providerLastOKAt.Format(time.RFC3339)
	}

	pending := 0
	if s.reminders != nil {
		pending = len(s.reminders.Pending())
	}

	return statusResponse{
		Status:           status,
		UptimeSeconds:    uptime,
		ProviderLastOKAt: providerLastOK,
		ProviderLastErr:  s.providerLastErr,
		PendingReminders: pending,
		Channels:         channels,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.channelStates) == 0 {
		return false
	}

	anyRunning := false
	for _, state := range s.channelStates {
		if state.Running {
			anyRunning = true
			break
		}
	}

	if !anyRunning {
		return false
	}

	if s.providerLastOKAt.IsZero() {
		return false
	}

	if s.providerLastErr != "" {
		return false
	}

	return true
}

func (s *Service) checkProviderHealth(ctx context.Context) error {
	if err := s.responder.Health(ctx); err != nil {
		s.mu.Lock()
		s.providerLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("provider health check failed: %w", err)
	}

	s.mu.Lock()
	s.providerLastErr = ""
	s.providerLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
