package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking/internal/assistant"
	"github.com/wolfman30/clinic-booking/internal/blocked"
	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/doctors"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger    *logging.Logger
	Booking   *booking.Handler
	Doctors   *doctors.Handler
	Schedule  *schedule.Handler
	Blocked   *blocked.Handler
	Assistant *assistant.Handler
	// Directory resolves the clinic of a doctor for portal scope checks.
	Directory            doctors.Repository
	StaffJWTSecret       string
	MetricsHandler       http.Handler
	CORSAllowedOrigins   []string
	PortalAllowedOrigins []string
	RateLimitRPS         float64
	RateLimitBurst       int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 || len(cfg.PortalAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(httpmiddleware.CORSPolicy{
			PublicOrigins: cfg.CORSAllowedOrigins,
			PortalOrigins: cfg.PortalAllowedOrigins,
		}))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Public booking site. Rate limited per client IP.
	r.Group(func(public chi.Router) {
		if cfg.RateLimitRPS > 0 {
			public.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		}
		if cfg.Doctors != nil {
			public.Get("/doctors", cfg.Doctors.List)
			public.Get("/doctors/{doctorID}", cfg.Doctors.Profile)
		}
		public.Get("/doctors/{doctorID}/slots", cfg.Booking.GetSlots)
		public.Route("/bookings", func(r chi.Router) {
			r.Post("/", cfg.Booking.CreateBooking)
			r.Post("/{appointmentID}/verify", cfg.Booking.VerifyBooking)
			r.Post("/{appointmentID}/resend", cfg.Booking.ResendCode)
		})
	})

	// Staff portal.
	r.Route("/portal", func(portal chi.Router) {
		portal.Use(httpmiddleware.StaffJWT(cfg.StaffJWTSecret))

		portal.Route("/appointments", func(r chi.Router) {
			r.Get("/", cfg.Booking.ListAppointments)
			r.Post("/", cfg.Booking.QuickAdd)
			r.Patch("/{appointmentID}/status", cfg.Booking.UpdateStatus)
		})

		if cfg.Doctors != nil {
			portal.Route("/directory", func(r chi.Router) {
				r.Get("/doctors", cfg.Doctors.ListStaff)
				r.Put("/doctors/{doctorID}", cfg.Doctors.SaveDoctor)
				r.Get("/clinic", cfg.Doctors.GetClinic)
				r.Put("/clinic", cfg.Doctors.SaveClinic)
			})
		}

		portal.Route("/doctors/{doctorID}", func(r chi.Router) {
			r.Use(requireDoctorScope(cfg.Directory, cfg.Logger))
			if cfg.Schedule != nil {
				r.Get("/availability", cfg.Schedule.ListRules)
				r.Put("/availability/{day}", cfg.Schedule.SaveRule)
			}
			if cfg.Blocked != nil {
				r.Get("/blocked", cfg.Blocked.List)
				r.Post("/blocked", cfg.Blocked.Create)
				r.Delete("/blocked", cfg.Blocked.PurgeExpired)
				r.Delete("/blocked/{periodID}", cfg.Blocked.Delete)
			}
		})

		if cfg.Assistant != nil {
			portal.Post("/assistant/chat", cfg.Assistant.Chat)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
