package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	audithandler "gestionale/internal/audit/handler"
	auditservice "gestionale/internal/audit/service"
	"gestionale/internal/audit/stream"
	customerhandler "gestionale/internal/customer/handler"
	customerservice "gestionale/internal/customer/service"
	httpapi "gestionale/internal/http"
	identityhandler "gestionale/internal/identity/handler"
	identityservice "gestionale/internal/identity/service"
	"gestionale/internal/mutation"
	"gestionale/internal/notify"
	"gestionale/internal/platform/config"
	"gestionale/internal/platform/httpserver"
	"gestionale/internal/platform/kafka"
	"gestionale/internal/platform/logger"
	"gestionale/internal/platform/metrics"
	"gestionale/internal/platform/postgres"
	redisclient "gestionale/internal/platform/redis"
	"gestionale/internal/policy"
	producthandler "gestionale/internal/product/handler"
	productservice "gestionale/internal/product/service"
	reporthandler "gestionale/internal/report/handler"
	reportservice "gestionale/internal/report/service"
	salehandler "gestionale/internal/sale/handler"
	saleservice "gestionale/internal/sale/service"
	"gestionale/internal/storage/memory"
	pgstore "gestionale/internal/storage/postgres"
	redisstore "gestionale/internal/storage/redis"
	tickethandler "gestionale/internal/ticket/handler"
	ticketservice "gestionale/internal/ticket/service"
	"gestionale/pkg/platform/middleware/metadata"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML configuration file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// stores groups the persistence backends selected by configuration.
type stores struct {
	users     identityservice.UserStore
	sessions  identityservice.SessionStore
	customers customerservice.Store
	products  productservice.Store
	sales     saleservice.Store
	tickets   ticketservice.Store
	audit     auditservice.Store
	reports   reportservice.Store
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ready := map[string]httpapi.Pinger{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	var st stores
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		st = postgresStores(db)
		ready["postgres"] = db.PingContext
		log.Info("using postgres storage")
	} else {
		st = memoryStores(memory.New())
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		st.sessions = redisstore.NewSessionStore(rdb)
		ready["redis"] = rdb.Health
	}

	var workers []worker

	auditOpts := []auditservice.Option{auditservice.WithLogger(log)}
	kc, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	if kc != nil {
		defer kc.Close()
		if err := kafka.EnsureTopic(ctx, kc, cfg.Kafka.AuditTopic); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
		publisher := stream.NewPublisher(kc, cfg.Kafka.AuditTopic, stream.WithLogger(log), stream.WithMetrics(m))
		workers = append(workers, publisher.Run)
		auditOpts = append(auditOpts, auditservice.WithPublisher(publisher))
		ready["kafka"] = kc.Ping
	}

	mailer, err := notify.New(cfg.SMTP, log)
	if err != nil {
		return fmt.Errorf("configure mailer: %w", err)
	}

	guard := policy.NewGuard(log)
	audits := auditservice.New(st.audit, guard, auditOpts...)
	pipeline := mutation.New(guard, audits, mutation.WithLogger(log), mutation.WithMetrics(m))

	identity := identityservice.New(st.users, st.sessions, identityservice.NewTokenSigner(cfg.Session.Secret), guard, pipeline,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(m),
		identityservice.WithSessionTTL(cfg.Session.TTL),
		identityservice.WithLoginLimiter(identityservice.NewLoginLimiter(cfg.Session.LoginRatePerMinute)),
	)
	customers := customerservice.New(st.customers, guard, pipeline,
		customerservice.WithLogger(log),
		customerservice.WithLeadNotification(mailer, cfg.Teams.SalesEmail),
	)
	products := productservice.New(st.products, guard, pipeline, productservice.WithLogger(log))
	sales := saleservice.New(st.sales, st.customers, st.products, guard, pipeline, saleservice.WithLogger(log))
	tickets := ticketservice.New(st.tickets, st.customers, st.users, guard, pipeline,
		ticketservice.WithLogger(log),
		ticketservice.WithTicketNotification(mailer, cfg.Teams.SupportEmail),
	)
	reports := reportservice.New(st.reports, guard, cfg.Reports.MRRGoal, reportservice.WithLogger(log))

	if err := identity.Bootstrap(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap administrator: %w", err)
	}

	clientIP, err := metadata.NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:        log,
		ClientIP:      clientIP,
		Metrics:       m,
		Sessions:      identity,
		WebhookSecret: cfg.Webhook.Secret,
		Ready:         ready,
		Identity:      identityhandler.New(identity, log, cfg.Session.CookieSecure),
		Customers:     customerhandler.New(customers, log),
		Products:      producthandler.New(products, log),
		Sales:         salehandler.New(sales, log),
		Tickets:       tickethandler.New(tickets, log),
		Reports:       reporthandler.New(reports, log),
		Audit:         audithandler.New(audits, log),
	})
	srv := httpserver.New(cfg.Server, router)

	log.Info("starting server", "addr", cfg.Server.Addr, "environment", cfg.Environment)
	return serve(ctx, log, srv, cfg.Shutdown, workers...)
}

func postgresStores(db *sql.DB) stores {
	return stores{
		users:     pgstore.NewUserStore(db),
		sessions:  memory.NewSessionStore(),
		customers: pgstore.NewCustomerStore(db),
		products:  pgstore.NewProductStore(db),
		sales:     pgstore.NewSaleStore(db),
		tickets:   pgstore.NewTicketStore(db),
		audit:     pgstore.NewAuditStore(db),
		reports:   pgstore.NewReportStore(db),
	}
}

func memoryStores(db *memory.DB) stores {
	return stores{
		users:     db.Users(),
		sessions:  memory.NewSessionStore(),
		customers: db.Customers(),
		products:  db.Products(),
		sales:     db.Sales(),
		tickets:   db.Tickets(),
		audit:     db.Audit(),
		reports:   db.Reports(),
	}
}
