package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"collab-chat/internal/ai"
	"collab-chat/internal/config"
	"collab-chat/internal/db"
	grpcserver "collab-chat/internal/grpc"
	"collab-chat/internal/handlers"
	"collab-chat/internal/middleware"
	"collab-chat/internal/observability"
	"collab-chat/internal/rabbitmq"
	"collab-chat/internal/repositories"
	"collab-chat/internal/telemetry"
	"collab-chat/internal/ws"
)

const shutdownTimeout = 10 * time.Second

type ServeFlags struct {
	Port        string
	GRPCPort    string
	DebugRoutes bool
}

func (f *ServeFlags) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Port, "port", f.Port, "HTTP port for the relay, pages and AI proxy")
	flagSet.StringVar(&f.GRPCPort, "grpc-port", f.GRPCPort, "gRPC health port, disabled when empty")
	flagSet.BoolVar(&f.DebugRoutes, "debug-routes", f.DebugRoutes, "Expose /debug routes")
}

func NewServeCommand(cfg *config.Config) *cobra.Command {
	f := &ServeFlags{Port: cfg.Port, GRPCPort: cfg.GRPCPort, DebugRoutes: cfg.DebugRoutes}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay, the chat pages and the AI proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Port, cfg.GRPCPort, cfg.DebugRoutes = f.Port, f.GRPCPort, f.DebugRoutes
			return serve(cmd.Context(), cfg)
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return errors.WithMessage(err, "couldn't init tracer")
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	var repo repositories.UpdateRepository
	if cfg.DBDSN != "" {
		database, err := db.Connect(cfg.DBDSN)
		if err != nil {
			return errors.WithMessage(err, "couldn't connect to db")
		}
		defer database.Close()
		repo = repositories.NewUpdateRepo(database)
	} else {
		log.Info("DB_DSN not set, rooms are kept in memory only")
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.WithFields(log.Fields{
		"mode":   rabbitmq.PublisherMode(publisher),
		"reason": rabbitmq.PublisherNoopReason(publisher),
	}).Info("event publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, observability.RoutingAudit, cfg.ServiceName, cfg.Environment)

	hub := ws.NewHub(repo)
	generator := ai.NewOpenAIGenerator(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel)

	router := newRouter(cfg, hub, generator, audit)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	errc := make(chan error, 2)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Wrap(err, "http serve")
		}
	}()

	var health *grpcserver.HealthServer
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return errors.Wrap(err, "grpc listen")
		}
		health = grpcserver.NewHealthServer()
		go func() {
			if err := health.Serve(lis); err != nil {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errc:
		log.WithError(err).Error("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if health != nil {
		health.Stop()
	}
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("http shutdown failed")
	}
	return err
}

func newRouter(cfg *config.Config, hub *ws.Hub, generator ai.Generator, audit *telemetry.AuditEmitter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.RequestID())
	router.SetHTMLTemplate(handlers.Templates())

	pages := handlers.NewPagesHandler(hub, cfg.Room)
	aiHandler := handlers.NewAIHandler(generator, audit)
	relay := ws.NewRelayHandler(hub)

	router.GET("/", pages.Home)
	router.GET("/chat", pages.Chat)
	router.POST("/api/ai", aiHandler.Reply)
	router.GET("/ws/rooms/:room", middleware.RelayAuth(cfg.RelayToken), relay.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)
	return router
}
