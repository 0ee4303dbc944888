package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/tourbooking/config"
	"github.com/Domenick1991/tourbooking/internal/cache"
	"github.com/Domenick1991/tourbooking/internal/kafka"
	"github.com/Domenick1991/tourbooking/internal/repository"
	"github.com/Domenick1991/tourbooking/internal/repository/memory"
	"github.com/Domenick1991/tourbooking/internal/service/booking"
	"github.com/Domenick1991/tourbooking/internal/service/inventory"
	"github.com/Domenick1991/tourbooking/internal/service/notification"
	"github.com/Domenick1991/tourbooking/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Stores is the persistence layer selected by database.driver.
type Stores struct {
	Packages      repository.PackageRepository
	Bookings      repository.BookingRepository
	Notifications repository.NotificationRepository
	Agencies      repository.AgencyRepository
	Tx            repository.Transactor
	Checks        map[string]HealthCheck

	closers []func()
}

// OpenStores connects the configured driver. For postgres the pending
// migrations are applied before returning.
func OpenStores(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Stores, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("Using in-memory store, data is lost on restart")
		store := memory.NewStore()
		return &Stores{
			Packages:      memory.NewPackageRepository(store),
			Bookings:      memory.NewBookingRepository(store),
			Notifications: memory.NewNotificationRepository(store),
			Agencies:      memory.NewAgencyRepository(store),
			Tx:            store,
			Checks:        map[string]HealthCheck{},
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Stores{
		Packages:      repository.NewPackageRepository(pool),
		Bookings:      repository.NewBookingRepository(pool),
		Notifications: repository.NewNotificationRepository(pool),
		Agencies:      repository.NewAgencyRepository(pool),
		Tx:            repository.NewTransactor(pool),
		Checks:        map[string]HealthCheck{"database": pool.Ping},
		closers:       []func(){pool.Close},
	}, nil
}

func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Infra holds the optional Redis and Kafka clients. Nil fields are
// disabled in config.
type Infra struct {
	Cache    *cache.RedisCache
	Producer *kafka.Producer
}

func OpenInfra(ctx context.Context, cfg *config.Config, log *logrus.Logger, checks map[string]HealthCheck) (*Infra, error) {
	infra := &Infra{}
	if cfg.Redis.Enabled {
		infra.Cache = cache.NewRedisCache(cfg.Redis, cfg.Booking.AvailabilityCacheTTL())
		if err := infra.Cache.Ping(ctx); err != nil {
			_ = infra.Cache.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		checks["redis"] = infra.Cache.Ping
	}
	if cfg.Kafka.Enabled() {
		infra.Producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		if err := infra.Producer.CheckConnection(ctx); err != nil {
			log.WithError(err).Warn("Kafka unreachable, notifications will be stored but not fanned out until it recovers")
		}
		checks["kafka"] = infra.Producer.CheckConnection
	}
	return infra, nil
}

func (i *Infra) Close() {
	if i.Producer != nil {
		_ = i.Producer.Close()
	}
	if i.Cache != nil {
		_ = i.Cache.Close()
	}
}

// BuildServices wires the inventory, notification and booking services.
// The concrete inventory service is returned as well for the audit loop.
func BuildServices(cfg *config.Config, log *logrus.Logger, stores *Stores, infra *Infra) (Services, *inventory.InventoryService) {
	invOpts := []inventory.Option{inventory.WithLogger(log)}
	notifyOpts := []notification.Option{notification.WithLogger(log)}
	bookingOpts := []booking.BookingServiceOption{
		booking.WithLogger(log),
		booking.WithAgencies(stores.Agencies),
		booking.WithOperationTimeout(cfg.Booking.OperationTimeout()),
	}
	if infra.Cache != nil {
		invOpts = append(invOpts, inventory.WithCache(infra.Cache))
		bookingOpts = append(bookingOpts, booking.WithDecisionLock(infra.Cache, cfg.Booking.DecisionLockTTL()))
	}
	if infra.Producer != nil {
		notifyOpts = append(notifyOpts, notification.WithPublisher(infra.Producer, cfg.Kafka.NotificationsTopic))
	}

	inv := inventory.NewInventoryService(stores.Packages, invOpts...)
	notifications := notification.NewNotificationService(stores.Notifications, notifyOpts...)
	bookings := booking.NewBookingService(stores.Bookings, inv, notifications, stores.Tx, bookingOpts...)

	return Services{
		Packages:      inv,
		Bookings:      bookings,
		Notifications: notifications,
	}, inv
}
