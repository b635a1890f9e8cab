package app

import (
	"context"
	"fmt"
	"net/http"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/rpa-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/rpa-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/rpa-crawler/internal/hash/sha256"
	notifylog "github.com/JakeFAU/rpa-crawler/internal/notify/log"
	notifypubsub "github.com/JakeFAU/rpa-crawler/internal/notify/pubsub"
	"github.com/JakeFAU/rpa-crawler/internal/policy/ratelimit"
	queueMemory "github.com/JakeFAU/rpa-crawler/internal/queue/memory"
	queuePubSub "github.com/JakeFAU/rpa-crawler/internal/queue/pubsub"
	"github.com/JakeFAU/rpa-crawler/internal/queue/rabbitmq"
	"github.com/JakeFAU/rpa-crawler/internal/sources"
	"github.com/JakeFAU/rpa-crawler/internal/sources/hockey"
	"github.com/JakeFAU/rpa-crawler/internal/sources/oscar"
	gcsstorage "github.com/JakeFAU/rpa-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/rpa-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/rpa-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/rpa-crawler/internal/storage/postgres"
	"github.com/JakeFAU/rpa-crawler/internal/traversal"
)

func (a *App) setupStores(ctx context.Context) error {
	switch a.cfg.Database.Backend {
	case "postgres":
		pg, err := pgstore.New(ctx, pgstore.Config{
			DSN:             a.cfg.Database.URL,
			MaxConns:        a.cfg.Database.MaxConns,
			MinConns:        a.cfg.Database.MinConns,
			MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.onClose(func(context.Context) error {
			pg.Close()
			return nil
		})
		a.pg, a.jobs, a.sink, a.results = pg, pg, pg, pg
		if a.cfg.Database.AutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("schema migration failed: %w", err)
			}
			a.logger.Info("database schema ensured")
		}
		a.logger.Info("using postgres stores")
	default:
		results := memoryStorage.NewResultStore()
		a.jobs, a.sink, a.results = memoryStorage.NewJobStore(), results, results
		a.logger.Warn("using in-memory stores, data is lost on exit")
	}
	return nil
}

func (a *App) setupBroker(ctx context.Context) error {
	q := a.cfg.Queue
	switch q.Backend {
	case "rabbitmq":
		b, err := rabbitmq.New(rabbitmq.Config{
			URL:            q.RabbitMQ.URL,
			Queue:          q.Name,
			ConnectTimeout: q.RabbitMQ.ConnectTimeout,
			PublishTimeout: q.RabbitMQ.PublishTimeout,
			ConsumerTag:    q.RabbitMQ.ConsumerTag,
		}, a.logger.Named("rabbitmq"))
		if err != nil {
			return fmt.Errorf("rabbitmq broker init failed: %w", err)
		}
		a.broker = b
		a.logger.Info("using rabbitmq broker", zap.String("queue", q.Name))
	case "pubsub":
		client, err := a.pubsubClient(ctx, q.PubSub.ProjectID)
		if err != nil {
			return err
		}
		b, err := queuePubSub.New(client, queuePubSub.Config{
			Topic:          q.PubSub.Topic,
			Subscription:   q.PubSub.Subscription,
			PublishTimeout: q.PubSub.PublishTimeout,
		}, a.logger.Named("pubsub"))
		if err != nil {
			return fmt.Errorf("pubsub broker init failed: %w", err)
		}
		a.broker = b
		a.logger.Info("using pubsub broker",
			zap.String("topic", q.PubSub.Topic),
			zap.String("subscription", q.PubSub.Subscription),
		)
	default:
		a.broker = queueMemory.New(q.MemoryCapacity)
		a.logger.Warn("using in-memory broker, only an embedded worker will see jobs")
	}
	a.onClose(func(context.Context) error { return a.broker.Close() })
	return nil
}

func (a *App) setupNotifier(ctx context.Context) error {
	switch a.cfg.Notify.Backend {
	case "pubsub":
		client, err := a.pubsubClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return err
		}
		n, err := notifypubsub.New(client, notifypubsub.Config{
			Topic:          a.cfg.Notify.Topic,
			PublishTimeout: a.cfg.Notify.PublishTimeout,
		})
		if err != nil {
			return fmt.Errorf("pubsub notifier init failed: %w", err)
		}
		a.onClose(func(context.Context) error {
			n.Close()
			return nil
		})
		a.notifier = n
		a.logger.Info("publishing job events", zap.String("topic", a.cfg.Notify.Topic))
	case "log":
		a.notifier = notifylog.New(a.logger)
	default:
		a.logger.Info("job events disabled")
	}
	return nil
}

// pubsubClient returns one shared client per project.
func (a *App) pubsubClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	if c, ok := a.pubsubClients[projectID]; ok {
		return c, nil
	}
	c, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClients[projectID] = c
	a.onClose(func(context.Context) error { return c.Close() })
	return c, nil
}

func (a *App) setupArchive(ctx context.Context) (*traversal.Archiver, error) {
	var store crawler.BlobStore
	switch a.cfg.Archive.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.onClose(func(context.Context) error { return client.Close() })
		store, err = gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving pages to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case "local":
		local, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		store = local
		a.logger.Info("archiving pages locally", zap.String("path", a.cfg.Archive.LocalDir))
	case "memory":
		store = memoryStorage.NewBlobStore()
		a.logger.Debug("archiving pages in memory")
	default:
		return nil, nil
	}
	return traversal.NewArchiver(store, sha256.New(), a.cfg.Archive.Prefix, a.logger.Named("archive")), nil
}

func (a *App) setupCollectors(ctx context.Context) error {
	archive, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}

	h := a.cfg.Headless
	browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		ExecPath:          h.ExecPath,
		Headless:          h.Headless,
		UserAgent:         h.UserAgent,
		NavigationTimeout: h.NavigationTimeout,
		ReadTimeout:       h.ReadTimeout,
		WindowWidth:       h.WindowWidth,
		WindowHeight:      h.WindowHeight,
	})
	if err != nil {
		return fmt.Errorf("headless browser init failed: %w", err)
	}
	a.onClose(func(context.Context) error {
		browser.Close()
		return nil
	})
	a.logger.Info("headless browser configured",
		zap.Bool("headless", h.Headless),
		zap.String("exec_path", h.ExecPath),
	)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.HTTP.Timeout,
		Headers:   http.Header{"Accept": []string{"application/json, text/html;q=0.9"}},
	})
	pacer := ratelimit.New(ratelimit.Config{
		Interval: a.cfg.Sources.Oscar.Interval,
		Burst:    a.cfg.Sources.Oscar.Burst,
	})

	hc := a.cfg.Sources.Hockey
	oc := a.cfg.Sources.Oscar
	a.registry = sources.NewRegistry(
		hockey.New(hockey.Config{
			EntryURL:           hc.URL,
			TableID:            hc.TableID,
			PaginationSelector: hc.PaginationSelector,
			PageParam:          hc.PageParam,
			WaitTimeout:        hc.WaitTimeout,
			SavePerPage:        hc.SavePerPage,
		}, browser, a.sink, archive, a.logger),
		oscar.New(oscar.Config{
			URL:          oc.URL,
			IndexFailure: traversal.IndexFailure(oc.IndexFailure),
		}, fetcher, pacer, a.sink, archive, a.logger),
	)
	return nil
}
