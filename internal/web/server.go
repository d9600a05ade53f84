package web

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/bbolt/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/rs/zerolog/log"

	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/hubapi"
	"github.com/netresearch/hub-server/internal/hubauth"
	"github.com/netresearch/hub-server/internal/imaging"
	"github.com/netresearch/hub-server/internal/lifecycle"
	"github.com/netresearch/hub-server/internal/options"
	"github.com/netresearch/hub-server/internal/rcache"
	"github.com/netresearch/hub-server/internal/responder"
	"github.com/netresearch/hub-server/internal/session"
	"github.com/netresearch/hub-server/internal/sysctx"
	"github.com/netresearch/hub-server/internal/web/static"
	"github.com/netresearch/hub-server/internal/web/templates"
)

// App owns the Hub, responder registry, response cache and session store
// for one vhost, the Fiber server that fronts them, and the ambient
// middleware/asset/rate-limit machinery carried over from the teacher.
//
// Grounded on the teacher's App (same struct shape: one long-lived handle
// per backing store, a Fiber app, a rate limiter), generalized from an
// LDAP-bound app to a hub-bound one: ldapReadonly/ldapCache are replaced
// by driver (the lifecycle.Driver that actually answers requests).
type App struct {
	hub           *hub.Hub
	driver        *lifecycle.Driver
	users         session.UserLookup
	sessionStore  *fibersession.Store
	csrfHandler   fiber.Handler
	fiber         *fiber.App
	logger        *slog.Logger
	assetManifest *AssetManifest
	rateLimiter   *RateLimiter
}

func getSessionStorage(opts *options.Opts) fiber.Storage {
	if opts.PersistSessions {
		return bbolt.New(bbolt.Config{
			Database: opts.SessionPath,
			Bucket:   "sessions",
			Reset:    false,
		})
	}

	return memory.New()
}

func createSessionStore(opts *options.Opts) *fibersession.Store {
	return fibersession.New(fibersession.Config{
		Storage:        getSessionStorage(opts),
		Expiration:     opts.SessionDuration,
		CookieHTTPOnly: true,
		CookieSameSite: "Strict",
		CookieSecure:   opts.CookieSecure,
	})
}

func createFiberApp() *fiber.App {
	f := fiber.New(fiber.Config{
		AppName:      "netresearch/hub-server",
		BodyLimit:    hubapi.MaxUploadBytes,
		ErrorHandler: handle500,
		// Trust proxy headers from Traefik (Docker bridge network)
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"127.0.0.0/8", "::1/128", "172.16.0.0/12"},
		ProxyHeader:             fiber.HeaderXForwardedFor,
	})
	setupMiddleware(f)

	return f
}

// buildResponders registers the responder table every vhost shares: the
// hub data API, images, redirects, directory listings, and a Standard
// fallback for everything else (spec §4.G).
func buildResponders(svc *hubapi.Service, cacheDir string) *responder.Registry {
	reg := responder.NewRegistry()

	// Registered in ascending priority: Select walks entries in
	// reverse-insertion order, so the catch-all Standard responder must be
	// registered first and the most specific entries (the hub data API)
	// last.
	reg.Register(responder.Entry{
		Criteria: responder.Criteria{},
		Factory:  func() responder.Responder { return responder.NewStandard() },
	})

	reg.Register(responder.Entry{
		Criteria: responder.Criteria{Typeof: "directory"},
		Factory: func() responder.Responder {
			return &responder.Directory{IndexNames: []string{"index.html", "index.htm"}}
		},
	})

	reg.Register(responder.Entry{
		Criteria: responder.Criteria{TypeofMatch: regexp.MustCompile(`^file-`), URIMatch: responder.ImageURIPattern},
		Factory: func() responder.Responder {
			return &responder.Image{Transformer: imaging.NewTransformer(filepath.Join(cacheDir, "images"))}
		},
	})

	reg.Register(responder.Entry{
		Criteria: responder.Criteria{URIMatch: regexp.MustCompile("^" + regexp.QuoteMeta(hubapi.URIPrefix))},
		Factory: func() responder.Responder {
			return &hubapi.Responder{
				Service: svc,
				UploadBodyFunc: func(req *sysctx.Request, _ string) (io.ReadCloser, error) {
					return req.Body()
				},
			}
		},
	})

	return reg
}

// NewApp creates a new hub web server instance from the provided bootstrap
// options. It builds the Hub rooted at opts.HubRoot, the response cache,
// session store, responder registry, lifecycle driver, Fiber app, and
// registers all routes. Users are resolved from the hub's own address
// space (handlers/auth/users, spec §4.D) via internal/hubauth.
func NewApp(opts *options.Opts) (*App, error) {
	logger := slog.Default()

	h := hub.New(opts.HubRoot)

	cacheDir := filepath.Join(opts.HubRoot, "tmp", "response", "cache")

	cache, err := rcache.NewStore(cacheDir)
	if err != nil {
		return nil, err
	}

	svc := hubapi.NewService(h, filepath.Join(opts.HubRoot, "tmp", "xfr"))

	reg := buildResponders(svc, cacheDir)

	sessionBackend := getSessionStorage(opts)
	hubSessions := session.NewStore(sessionBackend, opts.SessionDuration)
	users := hubauth.New(h)

	driver := lifecycle.New(h, hubSessions, users, reg, cache)
	driver.ShareHTTPSchemes = !opts.CookieSecure

	if opts.TLSSkipVerify {
		logger.Warn("TLS certificate verification is disabled for outbound downloads - use only for development!")
		svc.Download.SetClient(&http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // Intentional for development
		}}})
	}

	sessionStore := createSessionStore(opts)
	f := createFiberApp()
	csrfHandler := *createCSRFConfig(opts, sessionStore)

	manifestPath := "internal/web/static/manifest.json"
	manifest, err := LoadAssetManifest(manifestPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load asset manifest, using defaults")
		manifest = &AssetManifest{
			Assets:    map[string]string{"styles.css": "styles.css"},
			StylesCSS: "styles.css",
		}
	}

	a := &App{
		hub:           h,
		driver:        driver,
		users:         users,
		sessionStore:  sessionStore,
		csrfHandler:   csrfHandler,
		fiber:         f,
		logger:        logger,
		assetManifest: manifest,
		rateLimiter: NewRateLimiter(RateLimiterConfig{
			MaxAttempts:  opts.RateLimitMaxAttempts,
			WindowPeriod: opts.RateLimitWindow,
			BlockPeriod:  opts.RateLimitBlockPeriod,
			CleanupEvery: opts.RateLimitWindow,
		}),
	}

	a.setupRoutes()

	return a, nil
}

// setupMiddleware configures all middleware for the Fiber app
func setupMiddleware(f *fiber.App) {
	f.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		HSTSExcludeSubdomains: false,
		HSTSPreloadEnabled:    true,
		ContentSecurityPolicy: "default-src 'self'; style-src 'self'; " +
			"script-src 'self'; img-src 'self' data:; font-src 'self'; connect-src 'self'; " +
			"frame-ancestors 'none'; base-uri 'self'; form-action 'self';",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
	}))

	f.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		c.Response().Header.Del("Cross-Origin-Embedder-Policy")

		return err
	})

	f.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	f.Use("/static", filesystem.New(filesystem.Config{
		Root:   http.FS(static.Static),
		MaxAge: 24 * 60 * 60,
	}))
}

// createCSRFConfig creates and returns CSRF middleware configuration for
// the /sys/login form post.
func createCSRFConfig(opts *options.Opts, sessionStore *fibersession.Store) *fiber.Handler {
	csrfHandler := csrf.New(csrf.Config{
		KeyLookup:      "form:csrf_token",
		CookieName:     "csrf_",
		CookieSameSite: "Strict",
		CookieSecure:   opts.CookieSecure,
		CookieHTTPOnly: true,
		Expiration:     time.Hour,
		KeyGenerator:   csrf.ConfigDefault.KeyGenerator,
		Session:        sessionStore,
		SessionKey:     "csrf_token",
		ContextKey:     "token",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Warn().Err(err).Msg("CSRF validation failed")
			c.Status(fiber.StatusForbidden)
			c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)

			return templates.FourOhThree("CSRF token validation failed").Render(c.UserContext(), c.Response().BodyWriter())
		},
	})

	return &csrfHandler
}

// setupRoutes configures the routing-layer endpoints: /sys/login,
// /sys/health*, /sys/debug/* are registered directly on the Fiber app and
// never reach map-to-storage; everything else falls through to the
// lifecycle driver.
func (a *App) setupRoutes() {
	f := a.fiber

	f.All("/sys/login", a.rateLimiter.Middleware(), a.csrfHandler, a.loginHandler)
	f.Get("/sys/logout", a.logoutHandler)

	f.Get("/sys/health", a.healthHandler)
	f.Get("/sys/health/ready", a.readinessHandler)
	f.Get("/sys/health/live", a.livenessHandler)

	f.Get("/sys/debug/cache", a.cacheStatsHandler)
	f.Get("/sys/debug/mounts", a.mountsHandler)

	f.Use(a.hubHandler)
}

// Listen starts the web application server on the specified address. This
// method blocks until the server is shutdown or encounters an error.
func (a *App) Listen(_ context.Context, addr string) error {
	return a.fiber.Listen(addr)
}

// Shutdown gracefully shuts down the application within the given context
// timeout.
func (a *App) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping rate limiter...")
	a.rateLimiter.Stop()

	log.Info().Msg("Shutting down Fiber server...")
	if err := a.fiber.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down Fiber server")
	}

	return nil
}

// cacheStatsHandler provides response-cache statistics for monitoring.
func (a *App) cacheStatsHandler(c *fiber.Ctx) error {
	stats, err := a.driver.Cache.Stats()
	if err != nil {
		return handle500(c, err)
	}

	return c.JSON(stats)
}

// mountsHandler reports the active mount table, mirroring the teacher's
// LDAP connection-pool stats handler.
func (a *App) mountsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"mounts": a.hub.Mounts()})
}

func handle500(c *fiber.Ctx, err error) error {
	log.Error().Err(err).Send()

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)

	return templates.FiveHundred(err).Render(c.UserContext(), c.Response().BodyWriter())
}

// GetCSRFToken extracts the CSRF token from the context
func (a *App) GetCSRFToken(c *fiber.Ctx) string {
	if token := c.Locals("token"); token != nil {
		if tokenStr, ok := token.(string); ok {
			return tokenStr
		}
	}

	return ""
}

// GetStylesPath returns the cache-busted CSS file path from the asset manifest
func (a *App) GetStylesPath() string {
	if a.assetManifest != nil {
		return a.assetManifest.GetStylesPath()
	}

	return "styles.css"
}

var errNoResponse = errors.New("web: lifecycle driver returned no response")
