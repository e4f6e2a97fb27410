package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/audit"
	"gitlab.ozon.dev/qwestard/possync/internal/backend"
	"gitlab.ozon.dev/qwestard/possync/internal/broker"
	"gitlab.ozon.dev/qwestard/possync/internal/cache"
	"gitlab.ozon.dev/qwestard/possync/internal/catalog"
	"gitlab.ozon.dev/qwestard/possync/internal/config"
	"gitlab.ozon.dev/qwestard/possync/internal/db"
	"gitlab.ozon.dev/qwestard/possync/internal/grpcapi"
	"gitlab.ozon.dev/qwestard/possync/internal/handler"
	"gitlab.ozon.dev/qwestard/possync/internal/history"
	"gitlab.ozon.dev/qwestard/possync/internal/kafka"
	"gitlab.ozon.dev/qwestard/possync/internal/logger"
	"gitlab.ozon.dev/qwestard/possync/internal/notify"
	"gitlab.ozon.dev/qwestard/possync/internal/processor"
	"gitlab.ozon.dev/qwestard/possync/internal/render"
	"gitlab.ozon.dev/qwestard/possync/internal/repository"
	"gitlab.ozon.dev/qwestard/possync/internal/server"
	"gitlab.ozon.dev/qwestard/possync/internal/session"
	"gitlab.ozon.dev/qwestard/possync/internal/view"
)

func main() {
	mode := flag.String("mode", "kitchen", "ops, kitchen, menu, history or audit-tail")
	date := flag.String("date", "", "day for -mode=history, YYYY-MM-DD")
	category := flag.String("category", "", "menu category for -mode=menu")
	search := flag.String("search", "", "menu search text for -mode=menu")
	interactive := flag.Bool("console", true, "read commands from stdin")
	flag.Parse()

	cfg := config.LoadConfig()
	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := backend.NewClient(cfg.BaseURL, cfg.HTTPTimeout)
	text := render.NewText(os.Stdout)

	var err error
	switch *mode {
	case "ops":
		err = runBoard(ctx, cfg, log, client, view.KindOperations, cfg.OpsInterval, *interactive)
	case "kitchen":
		err = runBoard(ctx, cfg, log, client, view.KindKitchen, cfg.KitchenInterval, *interactive)
	case "menu":
		_, err = catalog.New(client, text, notify.Log{Logger: log}, log).Load(ctx, catalog.Filter{Category: *category, Search: *search})
	case "history":
		_, err = history.New(client, text, notify.Log{Logger: log}, log).ByDate(ctx, *date)
	case "audit-tail":
		err = tailAudit(ctx, cfg, log)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.WithError(err).Fatal("stopped")
	}
}

func runBoard(ctx context.Context, cfg *config.Config, log *logrus.Logger, client *backend.Client, kind view.Kind, interval time.Duration, interactive bool) error {
	auditCtx, auditCancel := context.WithCancel(context.WithoutCancel(ctx))
	processors := []audit.Processor{&audit.LogProcessor{Logger: log.WithField("component", "audit")}}

	if cfg.DSN != "" {
		database, err := db.NewDB(ctx, cfg.DSN)
		if err != nil {
			auditCancel()
			return fmt.Errorf("connect db: %w", err)
		}
		defer database.Close()
		if err := db.Migrate(ctx, database); err != nil {
			auditCancel()
			return fmt.Errorf("migrate: %w", err)
		}
		repo := repository.NewPostgresTaskRepository(database)
		processors = append(processors, &audit.OutboxProcessor{Outbox: repo})
		startRelay(ctx, cfg, log, repo)
	}

	pool := audit.NewWorkerPool(audit.PoolConfig{
		BatchSize:   cfg.AuditBatchSize,
		Timeout:     cfg.AuditTimeout,
		ChannelSize: cfg.AuditChannelSize,
	}, log, processors...)
	pool.Start(auditCtx, 2)
	defer pool.Shutdown(auditCancel)

	notices := notify.NewChannel(64, 50)
	notifiers := notify.Multi{notices, notify.Log{Logger: log}}
	if cfg.RabbitURL != "" {
		pub, err := broker.Dial(cfg.RabbitURL, string(kind), log)
		if err != nil {
			log.WithError(err).Warn("notice broker unavailable")
		} else {
			defer pub.Close()
			notifiers = append(notifiers, pub)
		}
	}

	views := cache.NewViewCache()
	text := render.NewText(os.Stdout)
	late := &lateConsole{}
	confirmer := notify.Prompted{}
	if interactive {
		confirmer.Fallback = late
	}

	sess, err := session.New(client, session.Config{
		Kind:      kind,
		Interval:  interval,
		Renderer:  view.Multi{views, text},
		Notifier:  notifiers,
		Confirmer: confirmer,
		Navigator: late,
		Alerter:   notify.Bell{W: os.Stdout},
		Auditor:   pool,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	menu := catalog.New(client, text, notifiers, log)
	hist := history.New(client, text, notifiers, log)

	if interactive {
		late.h = handler.New(sess, menu, hist, os.Stdin, os.Stdout)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Close()

	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.WithError(err).WithField("component", name).Error("stopped")
				cancel()
			}
		}()
	}

	httpSrv := server.NewServer(cfg.Addr(), server.Deps{
		Board:   sess,
		Views:   views,
		Menu:    menu,
		History: hist,
		Notices: notices,
		Auditor: pool,
		Logger:  log,
	})
	run("http", func() error { return httpSrv.Run(ctx) })
	grpcSrv := grpcapi.NewServer(views, sess, log)
	run("grpc", func() error { return grpcSrv.Run(ctx, cfg.GRPCAddr()) })
	run("notices", func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case n := <-notices.C():
				fmt.Fprintf(os.Stdout, "[%s] %s\n", n.Level, n.Message)
			}
		}
	})

	if interactive {
		go func() {
			if err := late.h.Run(ctx); err != nil {
				log.WithError(err).Error("console stopped")
			}
			cancel()
		}()
	}

	wg.Wait()
	return nil
}

// startRelay moves outbox rows to Kafka when brokers are configured.
func startRelay(ctx context.Context, cfg *config.Config, log *logrus.Logger, repo *repository.PostgresTaskRepository) {
	if len(cfg.KafkaBrokers) == 0 {
		return
	}
	producer, err := kafka.NewSaramaProducer(cfg.KafkaBrokers, log)
	if err != nil {
		log.WithError(err).Warn("kafka unavailable, audit stays in the outbox")
		return
	}
	relay := processor.NewTaskProcessor(repo, producer, cfg.KafkaTopic, time.Second, 100, log)
	go func() {
		defer producer.Close()
		relay.Start(ctx)
	}()
}

func tailAudit(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("audit-tail needs KAFKA_BROKERS")
	}
	sc := sarama.NewConfig()
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	h := kafka.ConsumerGroupHandler{
		Log: log,
		Handle: func(msg *sarama.ConsumerMessage) error {
			fmt.Fprintf(os.Stdout, "%s %s\n", msg.Key, msg.Value)
			return nil
		},
	}
	return kafka.StartSaramaConsumer(ctx, sc, cfg.KafkaBrokers, cfg.KafkaGroupID, []string{cfg.KafkaTopic}, h)
}

// lateConsole forwards to the console once it exists; the console needs the
// session, and the session needs these hooks.
type lateConsole struct {
	h *handler.Handler
}

func (l *lateConsole) Confirm(ctx context.Context, prompt string) bool {
	return l.h != nil && l.h.Confirm(ctx, prompt)
}

func (l *lateConsole) ShowReceipt(orderID int64) {
	if l.h != nil {
		l.h.ShowReceipt(orderID)
	}
}

func (l *lateConsole) CloseInput() {
	if l.h != nil {
		l.h.CloseInput()
	}
}
