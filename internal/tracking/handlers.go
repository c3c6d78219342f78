package tracking

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

const startTimeout = 30 * time.Second

func RegisterRoutes(r fiber.Router, ctrl *Controller, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), startTimeout)
		defer cancel()

		session, err := ctrl.Start(ctx)
		switch {
		case err == nil:
			return c.Status(fiber.StatusCreated).JSON(session)
		case errors.Is(err, ErrPermissionDenied):
			return fiber.NewError(fiber.StatusForbidden, err.Error())
		case errors.Is(err, ErrSessionCreateFailed):
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		case errors.Is(err, ErrBusy):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		default:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		stopped, err := ctrl.StopSession(c.UserContext())
		if err != nil {
			if errors.Is(err, ErrBusy) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"stopped": stopped})
	})

	r.Get("/state", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(ctrl.Snapshot())
	})

	r.Put("/safety", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Enabled *bool `json:"enabled"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Enabled == nil {
			return fiber.NewError(fiber.StatusBadRequest, "enabled required")
		}
		if err := ctrl.SetSafetyMode(c.UserContext(), *req.Enabled); err != nil {
			if errors.Is(err, ErrStopping) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"enabled": *req.Enabled})
	})

	r.Get("/recovered", authMiddleware, func(c *fiber.Ctx) error {
		rec, ok := ctrl.Recovered()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "nothing recovered")
		}
		return c.JSON(rec)
	})

	r.Delete("/recovered", authMiddleware, func(c *fiber.Ctx) error {
		if err := ctrl.DiscardRecovered(c.UserContext()); err != nil {
			if errors.Is(err, ErrNotIdle) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/offline/:sessionID", authMiddleware, func(c *fiber.Ctx) error {
		entries, err := ctrl.Buffer().Entries(c.UserContext(), c.Params("sessionID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if entries == nil {
			entries = []OfflineEntry{}
		}
		return c.JSON(entries)
	})

	r.Post("/offline/:sessionID/flush", authMiddleware, func(c *fiber.Ctx) error {
		res, err := ctrl.Flush(c.UserContext(), c.Params("sessionID"))
		if err != nil {
			if errors.Is(err, ErrSampleDeliveryFailed) {
				return c.Status(fiber.StatusBadGateway).JSON(res)
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(res)
	})

	r.Delete("/offline/:sessionID", authMiddleware, func(c *fiber.Ctx) error {
		if err := ctrl.Buffer().Clear(c.UserContext(), c.Params("sessionID")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
