package connectivity

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, monitor *Monitor, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"connected": monitor.Current()})
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Connected *bool `json:"connected"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Connected == nil {
			return fiber.NewError(fiber.StatusBadRequest, "connected required")
		}
		monitor.Set(*req.Connected)
		return c.JSON(fiber.Map{"connected": monitor.Current()})
	})
}
