package web

import (
	"github.com/gofiber/fiber/v2"

	"github.com/netresearch/hub-server/internal/addr"
)

// healthHandler reports the combined health of every backing store a
// request actually touches: the hub's root is resolvable, the config
// overlay has loaded at least once, and the response cache directory is
// readable.
func (a *App) healthHandler(c *fiber.Ctx) error {
	hubHealthy := a.hubResolvable()
	cfgHealthy := !a.hub.Config().Aggregate().IsZero()
	cacheHealthy := a.cacheReadable()

	overall := hubHealthy && cfgHealthy && cacheHealthy

	status := fiber.StatusOK
	if !overall {
		status = fiber.StatusServiceUnavailable
	}

	c.Status(status)

	return c.JSON(fiber.Map{
		"overall_healthy": overall,
		"hub":             healthLabel(hubHealthy),
		"config":          healthLabel(cfgHealthy),
		"cache":           healthLabel(cacheHealthy),
	})
}

func healthLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}

	return "unhealthy"
}

func (a *App) hubResolvable() bool {
	_, err := a.hub.Resolve(nil, addr.Root)

	return err == nil
}

func (a *App) cacheReadable() bool {
	_, err := a.driver.Cache.Stats()

	return err == nil
}

// readinessHandler reports whether the server is ready to serve requests:
// the hub root resolves and the config overlay has loaded.
func (a *App) readinessHandler(c *fiber.Ctx) error {
	if a.hubResolvable() && !a.hub.Config().Aggregate().IsZero() {
		return c.JSON(fiber.Map{"status": "ready"})
	}

	c.Status(fiber.StatusServiceUnavailable)

	return c.JSON(fiber.Map{"status": "not ready"})
}

// livenessHandler reports that the process itself is running and
// responsive, independent of any backing store's health.
func (a *App) livenessHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}
