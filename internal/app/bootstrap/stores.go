package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/assistant"
	"github.com/wolfman30/clinic-booking/internal/audit"
	"github.com/wolfman30/clinic-booking/internal/blocked"
	"github.com/wolfman30/clinic-booking/internal/booking"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/database"
	"github.com/wolfman30/clinic-booking/internal/doctors"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/otp"
	"github.com/wolfman30/clinic-booking/internal/patients"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const defaultMaxConns = 10

// Persistence is the authoritative store set plus the handles that back it.
type Persistence struct {
	Stores booking.Stores
	Pool   *pgxpool.Pool
	SQLDB  *sql.DB
}

// Close releases database handles.
func (p *Persistence) Close() {
	if p.SQLDB != nil {
		_ = p.SQLDB.Close()
	}
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// BuildPersistence connects to Postgres, or returns in-memory stores when
// USE_MEMORY_STORE is set.
func BuildPersistence(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Persistence, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryStore {
		logger.Warn("using in-memory stores; data is lost on restart")
		return &Persistence{Stores: MemoryStores()}, nil
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("bootstrap: DATABASE_URL is required unless USE_MEMORY_STORE=true")
	}
	pool, err := database.NewPool(ctx, cfg.DatabaseURL, defaultMaxConns)
	if err != nil {
		return nil, err
	}
	return &Persistence{
		Stores: PostgresStores(pool),
		Pool:   pool,
		SQLDB:  stdlib.OpenDBFromPool(pool),
	}, nil
}

// MemoryStores returns process-local stores.
func MemoryStores() booking.Stores {
	return booking.Stores{
		Doctors:      doctors.NewInMemoryRepository(),
		Schedule:     schedule.NewInMemoryRepository(),
		Blocked:      blocked.NewInMemoryRepository(),
		Appointments: appointments.NewInMemoryRepository(),
		Patients:     patients.NewInMemoryRepository(),
	}
}

// PostgresStores returns stores over one pool.
func PostgresStores(pool database.PgxPool) booking.Stores {
	return booking.Stores{
		Doctors:      doctors.NewPostgresRepository(pool),
		Schedule:     schedule.NewPostgresRepository(pool),
		Blocked:      blocked.NewPostgresRepository(pool),
		Appointments: appointments.NewPostgresRepository(pool),
		Patients:     patients.NewPostgresRepository(pool),
	}
}

// BuildAudit returns the audit trail when a SQL handle exists.
func BuildAudit(db *sql.DB) *audit.Service {
	if db == nil {
		return nil
	}
	return audit.NewService(db)
}

// BuildSMSSender picks Twilio when configured and logs codes otherwise.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) otp.SMSSender {
	if cfg.TwilioConfigured() {
		return otp.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.GatewayTimeout, logger)
	}
	logger.Warn("twilio not configured; confirmation codes are logged instead of sent")
	return otp.NewLogSender(logger)
}

// BuildOTP wires confirmation codes. It returns a nil interface when Redis is
// unavailable so the booking handler skips verification.
func BuildOTP(cfg *appconfig.Config, redisClient *redis.Client, stores booking.Stores, auditSvc *audit.Service, m *metrics.BookingMetrics, logger *logging.Logger) booking.OTPService {
	if redisClient == nil {
		return nil
	}
	svc := otp.NewService(
		otp.NewRedisStore(redisClient),
		stores.Appointments,
		stores.Patients,
		BuildSMSSender(cfg, logger),
		otp.Config{
			TTL:         cfg.OTPTTL,
			Cooldown:    cfg.OTPResendCooldown,
			MaxAttempts: cfg.OTPMaxAttempts,
			ClinicName:  cfg.ClinicName,
		},
		logger,
	).WithMetrics(m)
	if auditSvc != nil {
		svc.WithAudit(auditSvc)
	}
	return svc
}

// BuildAssistant returns the chat handler, or nil when no model key is set.
func BuildAssistant(ctx context.Context, cfg *appconfig.Config, svc *booking.Service, m *metrics.BookingMetrics, logger *logging.Logger) (*assistant.Handler, func() error, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		logger.Info("assistant disabled: GEMINI_API_KEY not set")
		return nil, func() error { return nil }, nil
	}
	model, err := assistant.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	if err != nil {
		return nil, nil, err
	}
	a := assistant.New(model, assistant.NewToolbox(svc, m, logger), assistant.Config{
		GatewayTimeout: cfg.GatewayTimeout,
		ClinicName:     cfg.ClinicName,
	}, logger)
	return assistant.NewHandler(a, logger), model.Close, nil
}
