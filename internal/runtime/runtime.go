// Package runtime wires the podforge components together and serves the
// HTTP API over them.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/podforge/podforge/internal/audio"
	"github.com/podforge/podforge/internal/bus"
	"github.com/podforge/podforge/internal/config"
	"github.com/podforge/podforge/internal/journal"
	"github.com/podforge/podforge/internal/natsserver"
	"github.com/podforge/podforge/internal/protocol"
	"github.com/podforge/podforge/internal/script"
	"github.com/podforge/podforge/internal/tts"
	"github.com/podforge/podforge/internal/voice"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	registry  *voice.Registry
	ingestor  *voice.Ingestor
	renderer  *script.Renderer
	generator script.Generator
	journal   *journal.Journal
	busClient *bus.Client
	embedded  *natsserver.EmbeddedServer

	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error

	ingestCounter metric.Int64Counter
	renderCounter metric.Int64Counter

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up telemetry, storage, collaborators, and the HTTP servers,
// then blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.initMeters(); err != nil {
		return fmt.Errorf("failed to create meters: %w", err)
	}

	jrnl, err := journal.Open(ctx, r.cfg.Journal, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	r.journal = jrnl
	defer r.journal.Close()

	if err := r.startBus(ctx); err != nil {
		return err
	}
	defer r.busClient.Close()
	defer r.embedded.Shutdown()

	registry, err := voice.Open(r.cfg.Voices.Dir, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open voice registry: %w", err)
	}
	r.registry = registry

	r.ingestor = voice.NewIngestor(registry, audio.Options{
		MinSeconds: r.cfg.Voices.MinSeconds,
		MaxSeconds: r.cfg.Voices.MaxSeconds,
		TargetRate: r.cfg.Voices.SampleRate,
	}, r.logger)
	r.ingestor.Progress = func(name string, n audio.Note) {
		r.busClient.PublishJSON(protocol.SubjectIngestProgress, protocol.IngestProgress{
			Voice: name, Tag: n.Tag, Message: n.Message, Timestamp: time.Now().UTC(),
		})
	}

	synth, err := tts.New(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("failed to create tts synthesizer: %w", err)
	}
	r.renderer = script.NewRenderer(synth, registry, r.cfg.TTS.SampleRate, r.logger)

	generator, err := script.NewGenerator(r.cfg.Generator)
	if err != nil {
		return fmt.Errorf("failed to create script generator: %w", err)
	}
	r.generator = generator

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.buildMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http server")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	r.metricsServer = &http.Server{
		Addr:              r.cfg.Telemetry.PrometheusBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.metricsServer, "metrics server")

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("voices_dir", r.cfg.Voices.Dir),
		slog.String("tts_mode", r.cfg.TTS.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("metrics shutdown error", slogError(err))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}

	return nil
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error(name+" failed", slogError(err))
		}
	}()
}

func (r *Runtime) startBus(ctx context.Context) error {
	if !r.cfg.Bus.Enabled {
		return nil
	}

	servers := r.cfg.Bus.Servers
	if r.cfg.Bus.Embedded {
		embedded, err := natsserver.Start(r.cfg.Bus.Port, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded NATS: %w", err)
		}
		r.embedded = embedded
		servers = []string{embedded.ClientURL()}
	}

	client, err := bus.Connect(ctx, bus.Options{
		Servers:        servers,
		Username:       r.cfg.Bus.Username,
		Password:       r.cfg.Bus.Password,
		Token:          r.cfg.Bus.Token,
		TLSInsecure:    r.cfg.Bus.TLSInsecure,
		ConnectTimeout: time.Duration(r.cfg.Bus.ConnectTimeout) * time.Millisecond,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r.busClient = client
	return nil
}

func (r *Runtime) initMeters() error {
	meter := otel.Meter("podforge")

	ingest, err := meter.Int64Counter("podforge.voice.ingests",
		metric.WithDescription("Voice sample ingestion attempts by outcome"))
	if err != nil {
		return err
	}
	r.ingestCounter = ingest

	render, err := meter.Int64Counter("podforge.episode.renders",
		metric.WithDescription("Episode render attempts by outcome"))
	if err != nil {
		return err
	}
	r.renderCounter = render
	return nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
