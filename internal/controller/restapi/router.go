package restapi

import "github.com/gofiber/fiber/v2"

// NewRouter mounts the health surface. `GET /status` answers 200 "OK";
// every other path falls through to fiber's 404. The endpoint reflects
// process liveness only, never per-message outcomes.
func NewRouter(app *fiber.App) {
	app.Get("/status", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
}
