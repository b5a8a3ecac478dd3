package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/evm-controller/internal/config"
	"github.com/sweeney/evm-controller/internal/controller"
	"github.com/sweeney/evm-controller/internal/debounce"
	"github.com/sweeney/evm-controller/internal/display"
	"github.com/sweeney/evm-controller/internal/gpio"
	"github.com/sweeney/evm-controller/internal/logic"
	"github.com/sweeney/evm-controller/internal/meter"
	"github.com/sweeney/evm-controller/internal/metering"
	"github.com/sweeney/evm-controller/internal/metrics"
	"github.com/sweeney/evm-controller/internal/mqtt"
	"github.com/sweeney/evm-controller/internal/queue"
	"github.com/sweeney/evm-controller/internal/sched"
	"github.com/sweeney/evm-controller/internal/status"
	"github.com/sweeney/evm-controller/internal/web"
)

const (
	shutdownTimeout    = 5 * time.Second
	connectionInterval = time.Second
)

// app is the wired controller: two execution contexts sharing one event
// queue, plus the optional display bus and status server.
type app struct {
	cfg *config.Config
	log *zap.Logger

	board    gpio.Board
	queue    *queue.Queue
	primary  *sched.Loop
	metering *sched.Loop

	edges    *debounce.Edges
	ctrl     *controller.Controller
	pipeline *metering.Pipeline

	tracker *status.Tracker
	pub     mqtt.Publisher // nil when the display bus is disabled
	display *mqtt.Display
	server  *web.Server
}

func newApp(cfg *config.Config, pricing logic.Pricing, board gpio.Board, meters meter.Meter, pub mqtt.Publisher, log *zap.Logger) *app {
	a := &app{
		cfg:      cfg,
		log:      log,
		board:    board,
		queue:    queue.New(queue.WithCapacity(cfg.Machine.QueueCapacity)),
		primary:  sched.NewLoop("primary", sched.WithLogger(log.Named("primary"))),
		metering: sched.NewLoop("metering", sched.WithLogger(log.Named("metering"))),
		pub:      pub,
	}

	a.tracker = status.NewTracker(time.Now(), status.Config{
		Version:      version,
		PriceCents:   pricing.PriceCents(),
		UnitsPerCent: pricing.UnitsPerCent(),
		UpdateMs:     cfg.Machine.UpdateInterval.Milliseconds(),
		InactivityMs: cfg.Machine.InactivityTimeout.Milliseconds(),
		PollMs:       cfg.Metering.PollInterval.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
	})

	renderers := []display.Renderer{a.tracker}
	if cfg.HTTP.Addr != "" {
		hub := web.NewHub(log.Named("web"))
		renderers = append(renderers, hub)
		a.server = web.New(cfg.HTTP.Addr, a.tracker, hub, metrics.Handler())
	}
	if pub != nil {
		a.display = mqtt.NewDisplay(pub, log.Named("mqtt"))
		renderers = append(renderers, a.display)
	}
	renderer := display.NewOnChange(display.Multi(renderers...))

	a.ctrl = controller.New(a.primary, a.queue, board, renderer, pricing,
		cfg.ControllerConfig(), log.Named("controller"))
	a.edges = debounce.New(a.primary, board, a.queue, cfg.DebounceConfig(), log.Named("debounce"))
	a.pipeline = metering.New(a.metering, meters, a.queue, pricing, cfg.MeteringConfig(),
		metering.WithObserver(metering.ObserverFunc(a.meterUpdated)),
		metering.WithLogger(log.Named("metering")))
	return a
}

// meterUpdated runs on the metering context.
func (a *app) meterUpdated(r metering.Reading) {
	a.tracker.SetMeter(r.Side, status.MeterStatus{
		Addr:     r.Addr,
		OK:       r.OK,
		Err:      r.Err,
		Register: r.Register,
		TotalWh:  r.TotalWh,
		CarryWh:  r.CarryWh,
		At:       r.At,
	})
}

// run starts both execution contexts and blocks until a signal arrives
// or a component fails. Outputs are driven safe before it returns.
func (a *app) run(sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Posted work runs first once each loop starts, so the controller and
	// pipeline are started on their own contexts.
	a.primary.Post(func(time.Time) { a.ctrl.Start() })
	a.metering.Post(func(time.Time) { a.pipeline.Start(ctx) })
	a.board.SetEdgeHandler(a.edges.Handle)

	a.publishSystem("STARTUP", "")

	reason := ""
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.primary.Run(gctx) })
	g.Go(func() error { return a.metering.Run(gctx) })
	if a.display != nil {
		g.Go(func() error { return a.display.Run(gctx) })
		g.Go(func() error { return a.watchMQTT(gctx) })
	}
	if a.server != nil {
		g.Go(func() error {
			a.log.Info("http status server listening", zap.String("addr", a.cfg.HTTP.Addr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				// The status page is optional; vending continues without it.
				a.log.Error("http server error", zap.Error(err))
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return a.server.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		select {
		case s := <-sig:
			reason = signalName(s)
			a.log.Info("shutting down", zap.String("signal", reason))
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	err := g.Wait()

	// Both loops have returned; the controller is no longer running.
	a.board.SetEdgeHandler(nil)
	if serr := a.ctrl.Shutdown(); serr != nil {
		a.log.Error("drive outputs safe", zap.Error(serr))
	}
	a.queue.Close()
	a.tracker.Render(a.ctrl.Frame())
	a.publishSystem("SHUTDOWN", reason)
	a.log.Info("shutdown complete",
		zap.Uint64("lost_edges", a.edges.Lost()),
		zap.Int("buttons_accepted", a.edges.Buttons().Accepted()),
		zap.Int("buttons_dropped", a.edges.Buttons().Dropped()),
		zap.Uint64("dropped_posts", a.primary.Dropped()))
	return err
}

// watchMQTT mirrors the broker connection into the status tracker and
// publishes heartbeats.
func (a *app) watchMQTT(ctx context.Context) error {
	conn, _ := a.pub.(mqtt.ConnectionStatus)

	ticker := time.NewTicker(connectionInterval)
	defer ticker.Stop()

	var heartbeat <-chan time.Time
	if a.cfg.MQTT.Heartbeat > 0 {
		hb := time.NewTicker(a.cfg.MQTT.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if conn != nil {
				a.tracker.SetMQTTConnected(conn.IsConnected())
			}
		case <-heartbeat:
			a.publishSystem("HEARTBEAT", "")
		}
	}
}

func (a *app) publishSystem(event, reason string) {
	if a.pub == nil {
		return
	}
	if conn, ok := a.pub.(mqtt.ConnectionStatus); ok {
		a.tracker.SetMQTTConnected(conn.IsConnected())
	}
	snap := a.tracker.Snapshot()
	e := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := a.pub.PublishSystem(e); err != nil {
		a.log.Warn("failed to publish system event", zap.String("event", event), zap.Error(err))
		return
	}
	a.log.Info("published system event", zap.String("event", event))
}
