package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/netresearch/hub-server/internal/session"
	"github.com/netresearch/hub-server/internal/web/templates"
)

// sidFor derives this request's session-cookie name and value the same
// way internal/lifecycle's authenticate phase does (spec §4.F "Session
// ID"), since /sys/login is a routing-layer endpoint and never reaches
// the driver itself.
func (a *App) sidFor(c *fiber.Ctx) (sidKey, sid string, rolled bool, err error) {
	scheme := "http"
	if c.Protocol() == "https" {
		scheme = "https"
	}

	refererHost := c.Get("Referer")
	if i := strings.Index(refererHost, "://"); i >= 0 {
		refererHost = refererHost[i+3:]
	}

	if i := strings.IndexAny(refererHost, "/:?"); i >= 0 {
		refererHost = refererHost[:i]
	}

	sidKey = session.CookieKey(scheme, c.Hostname(), c.Get("X-Forwarded-For"), refererHost, a.driver.ShareHTTPSchemes)

	sid = c.Cookies(sidKey)
	if !session.IsValidSID(sid) {
		sid, err = session.GenerateSID()
		if err != nil {
			return "", "", false, err
		}

		rolled = true
	}

	return sidKey, sid, rolled, nil
}

func (a *App) setSIDCookie(c *fiber.Ctx, sidKey, sid string) {
	c.Cookie(&fiber.Cookie{
		Name:     sidKey,
		Value:    sid,
		HTTPOnly: true,
		SameSite: "Strict",
		Secure:   c.Protocol() == "https",
	})
}

// loginHandler serves the login form on GET and runs the login protocol's
// server side on POST (spec §4.F "Login protocol"). The form posts a
// plain username/password — there is no client-side JavaScript to compute
// h1/h2 — so the server computes both from the submitted password and the
// session's current auth token before calling session.Login, which still
// exercises the real challenge/response primitives end to end.
func (a *App) loginHandler(c *fiber.Ctx) error {
	sidKey, sid, rolled, err := a.sidFor(c)
	if err != nil {
		return handle500(c, err)
	}

	if rolled {
		a.setSIDCookie(c, sidKey, sid)
	}

	if c.Method() != fiber.MethodPost {
		return a.renderLogin(c, nil)
	}

	username := c.FormValue("username")
	password := c.FormValue("password")

	if username == "" || password == "" {
		c.Status(fiber.StatusBadRequest)

		return a.renderLogin(c, templates.Flashes(templates.ErrorFlash("username and password are required")))
	}

	tk, err := session.CurrentAuthToken(a.driver.Sessions, sid)
	if err != nil {
		return handle500(c, err)
	}

	h1 := session.Sha1Hex(password)
	h2 := session.Sha1Hex(h1 + ":" + tk)

	k, v, err := session.Login(a.driver.Sessions, a.users, sid, username, h2)
	if err != nil {
		if errors.Is(err, session.ErrAuthFailed) {
			a.rateLimiter.RecordAttempt(c.IP())

			c.Status(fiber.StatusUnauthorized)

			return a.renderLogin(c, templates.Flashes(templates.ErrorFlash("invalid username or password")))
		}

		return handle500(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     k,
		Value:    v,
		HTTPOnly: true,
		SameSite: "Strict",
		Secure:   c.Protocol() == "https",
	})

	return c.Redirect("/", fiber.StatusSeeOther)
}

func (a *App) renderLogin(c *fiber.Ctx, flashes []templates.Flash) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)

	token, _ := c.Locals("token").(string)

	return templates.Login(flashes, a.GetStylesPath(), "", token).Render(c.UserContext(), c.Response().BodyWriter())
}

// logoutHandler deletes the current credential and auth token (spec §4.F
// "Auth token" — logout regenerates the token on the next request).
func (a *App) logoutHandler(c *fiber.Ctx) error {
	_, sid, _, err := a.sidFor(c)
	if err != nil {
		return handle500(c, err)
	}

	rec, ok, err := a.driver.Sessions.LoadSession(sid)
	if err != nil {
		return handle500(c, err)
	}

	v := ""
	if ok {
		v = c.Cookies(rec.AuthCookieKey)
	}

	if err := session.Logout(a.driver.Sessions, sid, v); err != nil {
		log.Warn().Err(err).Msg("logout: failed to clear credential/token")
	}

	return c.Redirect("/sys/login", fiber.StatusSeeOther)
}
