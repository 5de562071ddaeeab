package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/urfave/negroni"

	"github.com/emozilla/ethereum-validator-stack/handlers"
	"github.com/emozilla/ethereum-validator-stack/handlers/middleware"
	"github.com/emozilla/ethereum-validator-stack/metrics"
	"github.com/emozilla/ethereum-validator-stack/services"
	"github.com/emozilla/ethereum-validator-stack/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /health and /metrics, running a fresh health cycle per request",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().String("port", "", "Listen port (overrides server.port)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetString("port")
	}

	healthService, err := services.NewHealthService(cfg, logger)
	if err != nil {
		return err
	}

	retryConfig := healthService.GetRunner().GetConfig()
	writeTimeout := retryConfig.WorstCase() + 5*time.Second
	if retryConfig.CycleTimeout > 0 {
		writeTimeout = retryConfig.CycleTimeout + 5*time.Second
	}

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		WriteTimeout: writeTimeout,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
		Handler:      newRouter(healthService, middleware.NewRateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.RateBurst, logger), logger),
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	logger.Infof("http server listening on %v", srv.Addr)
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Error serving health endpoints")
		}
	}()

	utils.WaitForCtrlC()
	logger.Infof("exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(ctx)
}

func newRouter(healthService handlers.CycleRunner, rateLimiter *middleware.RateLimitMiddleware, logger logrus.FieldLogger) http.Handler {
	healthHandler := handlers.NewHealthHandler(healthService, logger)

	healthMetrics := metrics.NewMetrics()
	healthMetrics.AddPreCollectFn(func(r *http.Request) {
		report, err := healthService.RunCycle(r.Context())
		if err != nil {
			logger.Errorf("health cycle for metrics scrape failed: %v", err)
			return
		}
		healthMetrics.Update(report)
	})

	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.Handle("/metrics", healthMetrics.GetMetricsHandler()).Methods("GET")

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	if rateLimiter != nil {
		n.Use(rateLimiter)
	}
	n.UseHandler(router)

	return n
}
