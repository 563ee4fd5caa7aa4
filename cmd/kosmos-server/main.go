// Command kosmos-server runs the MO ingress TCP listener, the MT
// submission HTTP endpoint, and the operations surface in one process.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/rorsat-ltd/kosmos/internal/config"
	"github.com/rorsat-ltd/kosmos/internal/ingress"
	"github.com/rorsat-ltd/kosmos/internal/logging"
	"github.com/rorsat-ltd/kosmos/internal/mq"
	"github.com/rorsat-ltd/kosmos/internal/ops"
	"github.com/rorsat-ltd/kosmos/internal/store"
	"github.com/rorsat-ltd/kosmos/internal/submit"
)

func main() {
	app := kingpin.New("kosmos-server", "Satellite SBD gateway ingress and submission server.")

	listenAddress := app.Flag("listen-address", "MO ingress TCP bind address.").
		Envar("LISTEN_ADDRESS").Default(":10800").String()
	submitAddress := app.Flag("submit-address", "MT submission HTTP bind address.").
		Envar("SUBMIT_ADDRESS").Default(":8080").String()
	queueURL := app.Flag("queue-url", "AMQP broker URL.").Envar("QUEUE_URL").Required().String()
	dbURL := app.Flag("db-url", "Postgres connection URL.").Envar("DB_URL").Required().String()
	nat64Prefix := app.Flag("nat64-prefix", "NAT64 /96 prefix MO peers may arrive through, e.g. 64:ff9b::/96.").
		Envar("NAT64_PREFIX").String()
	upstreamIP := app.Flag("upstream-ip", "Source IP the operator's SBD gateway connects from; all other MO peers are rejected.").
		Envar("UPSTREAM_IP").Required().String()
	configPath := app.Flag("config", "Path to the ambient YAML config file.").Envar("CONFIG").String()
	opsListenAddress := app.Flag("ops-listen-address", "Operations surface bind address.").
		Envar("OPS_LISTEN_ADDRESS").String()
	operatorTokenHash := app.Flag("ops-operator-token-hash", "Bcrypt hash of the operator secret.").
		Envar("OPS_OPERATOR_TOKEN_HASH").String()
	jwtSecret := app.Flag("ops-jwt-secret", "HMAC signing key for operator bearer tokens.").
		Envar("OPS_JWT_SECRET").String()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		kingpin.Fatalf("%s", err)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		kingpin.Fatalf("%s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, store.Config{
		URL:         *dbURL,
		MaxOpenConn: cfg.Database.MaxOpenConn,
		MaxIdleConn: cfg.Database.MaxIdleConn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	queue, err := mq.Dial(ctx, *queueURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to dial queue")
	}
	defer queue.Close()

	var nat64 *net.IPNet
	if *nat64Prefix != "" {
		_, parsed, err := net.ParseCIDR(*nat64Prefix)
		if err != nil {
			log.Fatal().Err(err).Str("prefix", *nat64Prefix).Msg("invalid nat64 prefix")
		}
		nat64 = parsed
	}

	peerIP := net.ParseIP(*upstreamIP)
	if peerIP == nil {
		log.Fatal().Str("upstream_ip", *upstreamIP).Msg("invalid upstream ip")
	}

	ingressServer := ingress.New(ingress.Config{
		ListenAddress: *listenAddress,
		NAT64Prefix:   nat64,
		UpstreamIP:    peerIP,
	}, db, queue, log.With().Str("component", "ingress").Logger())

	submitHandler := &submit.Handler{
		Targets: db,
		Store:   db,
		Queue:   queue,
		Log:     log.With().Str("component", "submit").Logger(),
	}
	submitServer := &http.Server{
		Addr:        *submitAddress,
		Handler:     submitHandler,
		ReadTimeout: 30 * time.Second,
	}

	opsAddr := orDefault(*opsListenAddress, cfg.Ops.ListenAddress)
	opsServer := ops.New(
		ops.Config{ListenAddress: opsAddr},
		ops.NewAuthenticator(
			[]byte(orDefault(*operatorTokenHash, cfg.Ops.OperatorTokenHash)),
			[]byte(orDefault(*jwtSecret, cfg.Ops.JWTSecret)),
			cfg.Ops.TokenTTL,
		),
		ops.NewStats(),
		db, queue, log.With().Str("component", "ops").Logger(),
	)

	errCh := make(chan error, 3)
	go func() { errCh <- labelErr("ingress", ingressServer.Run(ctx)) }()
	go func() { errCh <- labelErr("submit", runHTTP(ctx, submitServer)) }()
	go func() { errCh <- labelErr("ops", opsServer.Run(ctx)) }()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining listeners")

	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil {
			log.Warn().Err(err).Msg("component exited")
		}
	}
}

func runHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func labelErr(component string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", component, err)
}
