package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/tutorhub-auth/auth"
	"github.com/jrsteele09/tutorhub-auth/internal/config"
	"github.com/jrsteele09/tutorhub-auth/internal/logging"
	"github.com/jrsteele09/tutorhub-auth/internal/metrics"
	"github.com/jrsteele09/tutorhub-auth/magiclink"
	magiclinkrepofakes "github.com/jrsteele09/tutorhub-auth/magiclink/repofakes"
	"github.com/jrsteele09/tutorhub-auth/mail"
	"github.com/jrsteele09/tutorhub-auth/server"
	"github.com/jrsteele09/tutorhub-auth/server/authflowrepo"
	"github.com/jrsteele09/tutorhub-auth/sessions"
	fakesessionrepo "github.com/jrsteele09/tutorhub-auth/sessions/repofakes"
	"github.com/jrsteele09/tutorhub-auth/storage/postgres"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	tenantrepofakes "github.com/jrsteele09/tutorhub-auth/tenants/repofakes"
	"github.com/jrsteele09/tutorhub-auth/throttle"
	"github.com/jrsteele09/tutorhub-auth/token"
	"github.com/jrsteele09/tutorhub-auth/users"
	fakeuserrepo "github.com/jrsteele09/tutorhub-auth/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	ssoFlowMaxAge   = 10 * time.Minute
	mailWorkers     = 4
	mailQueueSize   = 256
	mailSendTimeout = 30 * time.Second
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	if c.SecretsGenerated() {
		if c.GetEnv() == config.EnvironmentProd {
			return errors.New("PEPPER and SESSION_SECRET must be set in PROD")
		}
		log.Warn().Msg("PEPPER or SESSION_SECRET not set, using generated values; sessions and links will not survive a restart")
	}

	ctx := context.Background()
	b, err := newBackends(ctx, c)
	if err != nil {
		return err
	}
	defer b.close()

	handler, err := newServer(ctx, c, b)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := listenAndServe(httpServer); err != nil {
			log.Error().Err(err).Msg("listener stopped")
		}
	}()
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// backends holds the storage and delivery implementations chosen by config.
type backends struct {
	tenants      tenants.Repo
	users        users.UserRepo
	sessions     sessions.Repo
	tokens       magiclink.Store
	throttle     throttle.Store
	sender       mail.Sender
	healthChecks map[string]server.HealthCheck
	closers      []func() error
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close backend")
		}
	}
}

func newBackends(ctx context.Context, c config.Config) (*backends, error) {
	b := &backends{healthChecks: map[string]server.HealthCheck{}}

	var db *sql.DB
	if dsn := c.GetDatabaseURL(); dsn != "" {
		var err error
		db, err = postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		if err := postgres.RunMigrations(ctx, db); err != nil {
			b.close()
			return nil, err
		}
		b.tenants = postgres.NewTenantRepository(db)
		b.users = postgres.NewUserRepository(db)
		b.sessions = postgres.NewSessionRepository(db)
		b.tokens = postgres.NewMagicLinkRepository(db)
		b.healthChecks["postgres"] = db.PingContext
		log.Info().Msg("storage: postgres")
	} else {
		sessionRepo := fakesessionrepo.NewFakeSessionRepo()
		b.tenants = tenantrepofakes.NewFakeTenantRepo()
		b.users = fakeuserrepo.NewFakeUserRepo()
		b.sessions = sessionRepo
		b.tokens = magiclinkrepofakes.NewFakeTokenStore(sessionRepo)
		log.Warn().Msg("storage: in-memory, DATABASE_URL not set")
	}

	switch c.GetThrottleBackend() {
	case config.ThrottleBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			b.close()
			return nil, fmt.Errorf("redis ping error: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.throttle = throttle.NewRedisStore(client, "tutorhub:throttle")
		b.healthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	case config.ThrottleBackendPostgres:
		if db == nil {
			b.close()
			return nil, errors.New("THROTTLE_BACKEND=postgres requires DATABASE_URL")
		}
		b.throttle = postgres.NewThrottleStore(db)
	default:
		b.throttle = throttle.NewMemoryStore()
	}
	log.Info().Str("backend", c.GetThrottleBackend()).Msg("throttle store ready")

	// Relay-backed senders run behind a queue so issuance takes the same time
	// whether or not a message is sent.
	switch c.GetMailBackend() {
	case config.MailBackendSMTP:
		async := mail.NewAsyncSender(mail.NewSMTPSender(c.GetSmtpHost(), c.GetSmtpPort(), c.GetSmtpAccount(), c.GetSmtpPassword(), c.GetMailFrom()),
			mailWorkers, mailQueueSize, mailSendTimeout)
		b.closers = append(b.closers, async.Close)
		b.sender = async
	case config.MailBackendAMQP:
		sender, closeQueue, err := mail.DialQueue(c.GetAMQPURL(), c.GetMailQueue())
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, closeQueue)
		async := mail.NewAsyncSender(sender, mailWorkers, mailQueueSize, mailSendTimeout)
		b.closers = append(b.closers, async.Close)
		b.sender = async
	default:
		b.sender = mail.LogSender{}
	}
	log.Info().Str("backend", c.GetMailBackend()).Msg("mail sender ready")

	return b, nil
}

func newServer(ctx context.Context, c config.Config, b *backends) (*server.Server, error) {
	resolver, err := tenants.NewResolver(b.tenants, c.GetBaseDomain())
	if err != nil {
		return nil, err
	}
	codec, err := token.NewSessionCodec(token.NewHMACSigner(c.GetSessionSecret()))
	if err != nil {
		return nil, err
	}
	hasher, err := magiclink.NewHasher(c.GetPepper())
	if err != nil {
		return nil, err
	}
	ledger, err := throttle.NewLedger(b.throttle)
	if err != nil {
		return nil, err
	}
	m := metrics.NewMetrics(prometheus.NewRegistry())

	repos := auth.Repos{Users: b.users, Sessions: b.sessions}
	gate, err := auth.NewGate(resolver, codec, repos, auth.WithGateObserver(m))
	if err != nil {
		return nil, err
	}
	authSettings := auth.Settings{
		SessionTTL: c.GetSessionTTL(),
		LoginPolicy: throttle.Policy{
			Window:      c.GetStaffLoginWindow(),
			MaxAttempts: c.GetStaffLoginMax(),
			Cooldown:    c.GetStaffLoginCooldown(),
		},
	}
	authService, err := auth.NewAuthenticationService(resolver, codec, ledger, hasher, repos, &authSettings)
	if err != nil {
		return nil, err
	}

	mlSettings := magiclink.Settings{
		TTL:        c.GetMagicLinkTTL(),
		SessionTTL: c.GetSessionTTL(),
		EmailPolicy: throttle.Policy{
			Window:      c.GetMagicLinkEmailWindow(),
			MaxAttempts: c.GetMagicLinkEmailMax(),
			Cooldown:    c.GetMagicLinkEmailCooldown(),
		},
		SourcePolicy: throttle.Policy{
			Window:      c.GetMagicLinkSourceWindow(),
			MaxAttempts: c.GetMagicLinkSourceMax(),
			Cooldown:    c.GetMagicLinkSourceCooldown(),
		},
	}
	mlDeps := magiclink.Deps{
		Resolver: resolver,
		Users:    b.users,
		Tokens:   b.tokens,
		Hasher:   hasher,
		Ledger:   ledger,
		Sender:   b.sender,
		Links:    magiclink.NewLinkBuilder(c.GetPublicBaseURL(), c.GetTrustedForwardedHosts()),
	}
	issuer, err := magiclink.NewIssuer(mlDeps, &mlSettings, magiclink.WithObserver(m))
	if err != nil {
		return nil, err
	}
	consumer, err := magiclink.NewConsumer(mlDeps, &mlSettings, magiclink.WithObserver(m))
	if err != nil {
		return nil, err
	}

	purgeExpired(ctx, b, time.Now(), longestWindow(authSettings.LoginPolicy, mlSettings.EmailPolicy, mlSettings.SourcePolicy))

	return server.New(c, server.Deps{
		Tenants:      b.tenants,
		Users:        b.users,
		Resolver:     resolver,
		Codec:        codec,
		Gate:         gate,
		Auth:         authService,
		Issuer:       issuer,
		Consumer:     consumer,
		AuthFlows:    authflowrepo.NewInMemoryRepo(ssoFlowMaxAge),
		Metrics:      m,
		HealthChecks: b.healthChecks,
	})
}

// purgeExpired drops dead sessions, links and throttle records left over from
// earlier runs. A throttle record is stale once a full window has passed since
// it started.
func purgeExpired(ctx context.Context, b *backends, now time.Time, window time.Duration) {
	if n, err := b.sessions.DeleteExpired(ctx, now); err != nil {
		log.Warn().Err(err).Msg("purge expired sessions")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("purged expired sessions")
	}
	if n, err := b.tokens.DeleteExpired(ctx, now); err != nil {
		log.Warn().Err(err).Msg("purge expired magic links")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("purged expired magic links")
	}
	if purger, ok := b.throttle.(throttle.StalePurger); ok {
		if n, err := purger.DeleteStale(ctx, now.Add(-window)); err != nil {
			log.Warn().Err(err).Msg("purge stale throttle records")
		} else if n > 0 {
			log.Info().Int("count", n).Msg("purged stale throttle records")
		}
	}
}

func longestWindow(policies ...throttle.Policy) time.Duration {
	var longest time.Duration
	for _, p := range policies {
		longest = max(longest, p.Window)
	}
	return longest
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
