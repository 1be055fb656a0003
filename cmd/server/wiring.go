package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	jwttoken "attest/internal/jwt_token"
	"attest/internal/platform/config"
	"attest/internal/platform/database"
	"attest/internal/platform/kafka"
	platformmetrics "attest/internal/platform/metrics"
	platformredis "attest/internal/platform/redis"
	"attest/internal/proof/adapters"
	"attest/internal/proof/commitment"
	"attest/internal/proof/handler"
	proofmetrics "attest/internal/proof/metrics"
	"attest/internal/proof/ports"
	"attest/internal/proof/service"
	"attest/internal/proof/store/inventory"
	"attest/internal/proof/store/sessions"
	"attest/internal/proof/tracer"
	"attest/migrations"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/circuit"
	"attest/pkg/platform/httputil"
	"attest/pkg/platform/middleware/auth"
	"attest/pkg/platform/middleware/metadata"
	"attest/pkg/platform/middleware/request"
	"attest/pkg/platform/middleware/requesttime"
	"attest/pkg/requestcontext"
)

const globalContextCacheTTL = time.Hour

// infra holds the optional backends. Nil fields mean the in-process fallback
// is in use.
type infra struct {
	db       *database.Pool
	redis    *platformredis.Client
	producer *kafka.Producer
}

func connect(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	var err error
	if in.db, err = database.New(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if in.db != nil {
		if err := migrations.Apply(ctx, in.db.DB()); err != nil {
			in.close(log)
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	if in.redis, err = platformredis.New(ctx, cfg.Redis); err != nil {
		in.close(log)
		return nil, err
	}
	if cfg.Kafka.Brokers != "" {
		if in.producer, err = kafka.NewProducer(cfg.Kafka, log); err != nil {
			in.close(log)
			return nil, err
		}
		err = kafka.EnsureTopics(ctx, in.producer.Client(), cfg.Kafka.Partitions, cfg.Kafka.Replication,
			cfg.Kafka.AuditTopic, cfg.Kafka.ResultTopic)
		if err != nil {
			in.close(log)
			return nil, err
		}
	}
	log.Info("backends connected",
		"postgres", in.db != nil,
		"redis", in.redis != nil,
		"kafka", in.producer != nil,
	)
	return in, nil
}

func (in *infra) close(log *slog.Logger) {
	if in.producer != nil {
		if err := in.producer.Close(); err != nil {
			log.Error("failed to close kafka producer", "error", err)
		}
	}
	if err := in.redis.Close(); err != nil {
		log.Error("failed to close redis", "error", err)
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}
}

func buildInventory(ctx context.Context, cfg *config.Config, in *infra, log *slog.Logger) (ports.InventoryReader, error) {
	var store interface {
		ports.InventoryReader
		inventoryWriter
	}
	if in.db != nil {
		store = inventory.NewPostgres(in.db.DB())
	} else {
		store = inventory.NewInMemory()
	}
	if cfg.Database.SeedFile != "" {
		n, err := seedInventory(ctx, store, cfg.Database.SeedFile, 0)
		if err != nil {
			return nil, fmt.Errorf("seed inventory: %w", err)
		}
		log.Info("inventory seeded", "wallets", n, "file", cfg.Database.SeedFile)
	}
	return store, nil
}

func buildService(ctx context.Context, cfg *config.Config, in *infra, auditor ports.AuditPort, log *slog.Logger) (*service.Service, error) {
	inv, err := buildInventory(ctx, cfg, in, log)
	if err != nil {
		return nil, err
	}

	var ledger ports.Ledger = adapters.NewGuardedLedger(
		adapters.NewHTTPLedger(cfg.Collaborators.LedgerURL, cfg.Collaborators.Timeout, adapters.WithLedgerLogger(log)),
		circuit.New("ledger"),
		log,
	)
	var store service.Store = sessions.NewInMemory()
	if in.redis != nil {
		ledger = adapters.NewCachedLedger(ledger, in.redis.Client, globalContextCacheTTL, log)
		store = sessions.NewRedis(in.redis.Client)
	}

	var sink ports.ResultSink = adapters.NewLogSink(log)
	if in.producer != nil {
		sink = adapters.NewKafkaSink(in.producer, cfg.Kafka.ResultTopic)
	}

	trc := tracer.NewOTel()
	keys := adapters.NewHTTPKeyDerivation(cfg.Collaborators.KeyDerivationURL, cfg.Collaborators.Timeout, nil)
	prover := adapters.NewHTTPProver(cfg.Collaborators.ProverURL, cfg.Collaborators.ProveTimeout, nil)

	return service.New(service.Deps{
		Store:     store,
		Inventory: inv,
		Ledger:    ledger,
		Builder:   commitment.New(keys, commitment.WithTracer(trc), commitment.WithLogger(log)),
		Prover:    prover,
		Sink:      sink,
	}, cfg.NetworkName(),
		service.WithAuditor(auditor),
		service.WithMetrics(proofmetrics.New()),
		service.WithTracer(trc),
		service.WithLogger(log),
		service.WithSessionTTL(cfg.Redis.SessionTTL),
		service.WithProveTimeout(cfg.Collaborators.ProveTimeout),
	), nil
}

func buildAuditor(cfg *config.Config, in *infra, log *slog.Logger) ports.AuditPort {
	if in.producer != nil {
		return audit.NewPublisher(in.producer, cfg.Kafka.AuditTopic, audit.WithLogger(log))
	}
	return audit.NewLogPublisher(log)
}

func newRouter(cfg *config.Config, in *infra, svc *service.Service, auditor ports.AuditPort, log *slog.Logger) http.Handler {
	httpMetrics := platformmetrics.New(prometheus.DefaultRegisterer)
	tokens := jwttoken.NewService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(log, httpMetrics))

	r.Get("/health", healthHandler(in))
	r.Handle("/metrics", platformmetrics.Handler(prometheus.DefaultGatherer))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireWallet(tokens, log, auditAuthFailure(auditor, log)))
		handler.New(svc, log).Register(r)
	})
	return r
}

func auditAuthFailure(auditor ports.AuditPort, log *slog.Logger) auth.FailureFunc {
	return func(ctx context.Context, reason string) {
		err := auditor.Emit(ctx, audit.Event{
			Action:    audit.EventAuthFailed,
			RequestID: requestcontext.RequestID(ctx),
			Reason:    reason,
		})
		if err != nil {
			log.WarnContext(ctx, "failed to audit auth failure", "error", err)
		}
	}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends,omitempty"`
}

func healthHandler(in *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := healthResponse{Status: "ok", Backends: map[string]string{}}
		check := func(name string, err error) {
			if err != nil {
				resp.Status = "degraded"
				resp.Backends[name] = err.Error()
				return
			}
			resp.Backends[name] = "ok"
		}
		if in.db != nil {
			check("postgres", in.db.Health(ctx))
		}
		if in.redis != nil {
			check("redis", in.redis.Health(ctx))
		}
		if in.producer != nil {
			var err error
			if !in.producer.Healthy(ctx) {
				err = fmt.Errorf("brokers unreachable")
			}
			check("kafka", err)
		}
		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
