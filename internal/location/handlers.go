package location

import (
	"github.com/Capricia-k/WoSport/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

func RegisterRoutes(r fiber.Router, feed *Feed, authMiddleware fiber.Handler) {
	r.Post("/permission", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Granted *bool `json:"granted"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Granted == nil {
			return fiber.NewError(fiber.StatusBadRequest, "granted required")
		}
		feed.SetPermission(*req.Granted)
		return c.JSON(fiber.Map{"granted": *req.Granted})
	})

	r.Post("/fixes", authMiddleware, func(c *fiber.Ctx) error {
		var fix geo.Coordinate
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if !fix.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "latitude/longitude out of range")
		}
		n, err := feed.Push(fix)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return fiber.NewError(fiber.StatusForbidden, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"watchers": n})
	})
}
