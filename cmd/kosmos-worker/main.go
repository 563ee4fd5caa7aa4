// Command kosmos-worker consumes process_mo, deliver_mt, and
// send_mt_status jobs and runs the operations surface scoped to
// worker-side metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/rorsat-ltd/kosmos/internal/config"
	"github.com/rorsat-ltd/kosmos/internal/jobs"
	"github.com/rorsat-ltd/kosmos/internal/logging"
	"github.com/rorsat-ltd/kosmos/internal/mq"
	"github.com/rorsat-ltd/kosmos/internal/ops"
	"github.com/rorsat-ltd/kosmos/internal/store"
	"github.com/rorsat-ltd/kosmos/internal/webhook"
	"github.com/rorsat-ltd/kosmos/internal/worker"
)

func main() {
	app := kingpin.New("kosmos-worker", "Satellite SBD gateway job consumer.")

	queueURL := app.Flag("queue-url", "AMQP broker URL.").Envar("QUEUE_URL").Required().String()
	dbURL := app.Flag("db-url", "Postgres connection URL.").Envar("DB_URL").Required().String()
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

	webhookClient := webhook.New(webhook.Config{
		Timeout:        cfg.Webhook.Timeout,
		ConnectTimeout: cfg.Webhook.ConnectTimeout,
	})

	runner := jobs.NewRunner(queue, log.With().Str("component", "worker").Logger())
	w := worker.New(db, webhookClient, queue, "", log.With().Str("component", "worker").Logger())
	w.Register(runner)

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
	runner.OnResult = opsServer.OnJobResult

	errCh := make(chan error, 2)
	go func() { errCh <- labelErr("runner", runner.Run(ctx)) }()
	go func() { errCh <- labelErr("ops", opsServer.Run(ctx)) }()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining in-flight jobs")

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			log.Warn().Err(err).Msg("component exited")
		}
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
