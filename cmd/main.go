package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "modbus_console/docs"
	"modbus_console/internal/app"
	"modbus_console/internal/config"
	"modbus_console/internal/handlers"
	"modbus_console/internal/logger"
	"modbus_console/internal/loop"
	"modbus_console/internal/metrics"
	"modbus_console/internal/mirror"
	"modbus_console/internal/presentation"
	"modbus_console/internal/repository"
	"modbus_console/internal/repository/db"
	"modbus_console/internal/server"
	"modbus_console/internal/service"
	"modbus_console/internal/transport"
	"modbus_console/internal/tui"
	"modbus_console/internal/view"
)

const shutdownTimeout = 10 * time.Second

// @title                       Modbus Console API
// @version                     1.0
// @description                 Operator API for the Modbus simulator console.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (default configs/config.yml)")
	hashPassword := pflag.Bool("hash-password", false, "read a password from stdin, print its bcrypt hash and exit")
	pflag.Parse()

	if *hashPassword {
		if err := printPasswordHash(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// load config.yml
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// init logger
	log, closeLog, err := logger.New(cfg.Log.Level, cfg.Log.Output)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// open DB
	sqlDB, err := openDB(cfg.DB.Path, log)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("sqlite_close_failed", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	services := service.NewService(repos, service.AuthConfig{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	}, log.Named("service"), m)
	ensureOperator(cfg, services, log)

	catalog := presentation.Default()
	if cfg.Display.Catalog != "" {
		if catalog, err = presentation.LoadFile(cfg.Display.Catalog); err != nil {
			return err
		}
	}

	runner := loop.NewRunner(log.Named("loop"))
	var views []view.View

	var bridge *tui.Bridge
	if cfg.UI.Enabled {
		bridge = tui.NewBridge()
		views = append(views, bridge)
	}

	if cfg.Mirror.Enabled {
		client, err := mirror.Connect(mirror.Options{
			Broker:   cfg.Mirror.Broker,
			ClientID: cfg.Mirror.ClientID,
			Username: cfg.Mirror.Username,
			Password: cfg.Mirror.Password,
			Prefix:   cfg.Mirror.Prefix,
			QoS:      cfg.Mirror.QoS,
		}, log)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		views = append(views, mirror.New(client, cfg.Mirror.Prefix, nil, log))
	}

	core := app.New(app.Options{
		Config:  cfg,
		Loop:    runner,
		Dialer:  transport.NewWebsocketDialer(cfg.Backend.HandshakeTimeout, cfg.Backend.WriteTimeout),
		Catalog: catalog,
		Views:   views,
		Audit:   services.Record,
		Logger:  log.Named("console"),
		Metrics: m,
	})
	services.AttachConsole(core)

	// The loop and the recorder outlive the signal context so shutdown can still use them.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = runner.Run(loopCtx)
	}()

	recCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()
	recDone := make(chan struct{})
	go func() {
		defer close(recDone)
		_ = services.Recorder.Run(recCtx)
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	core.Start()

	// start HTTP server
	srv := &server.Server{}
	if cfg.HTTP.Enabled {
		apiHandler := handlers.NewHandler(services, log.Named("http"),
			handlers.WithMetrics(reg),
			handlers.WithStreamInterval(cfg.HTTP.StreamInterval))
		runHTTPServer(g, srv, cfg.HTTP.Port, apiHandler, log)
	}

	if bridge != nil {
		g.Go(func() error {
			// Quitting the UI stops the whole console.
			defer cancel()
			return tui.Run(gctx, tui.NewModel(catalog, catalog, core), bridge)
		})
	}

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(core, srv, log)
	})

	err = g.Wait()

	stopLoop()
	<-loopDone
	stopRecorder()
	<-recDone
	log.Infow("console_exited")
	return err
}

// openDB initializes the SQLite database using configuration.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db_path_not_set", "default", "console.db")
		path = "console.db"
	}
	return db.InitDB(path)
}

// ensureOperator seeds the configured operator account. Without a hash the API has no user.
func ensureOperator(cfg *config.Config, services *service.Service, log *logger.Logger) {
	if !cfg.HTTP.Enabled {
		return
	}
	if cfg.Auth.PasswordHash == "" {
		log.Warnw("operator_not_configured", "hint", "set auth.password_hash; generate one with --hash-password")
		return
	}
	id, err := services.EnsureOperator(cfg.Auth.Username, cfg.Auth.PasswordHash)
	if err != nil {
		log.Errorw("operator_seed_failed", "username", cfg.Auth.Username, "err", err)
		return
	}
	log.Infow("operator_ready", "username", cfg.Auth.Username, "user_id", id)
}

// runHTTPServer runs the HTTP server inside the group.
func runHTTPServer(g *errgroup.Group, srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	g.Go(func() error {
		log.Infow("http_listening", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Errorw("http_server_failed", "err", err)
			return err
		}
		return nil
	})
}

// shutdown closes the channels first, then lets in-flight requests complete.
func shutdown(core *app.App, srv *server.Server, log *logger.Logger) error {
	log.Infow("shutting_down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := core.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("console shutdown: %w", err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	return errors.Join(errs...)
}

func printPasswordHash() error {
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	hash, err := service.HashPassword(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
