package server

import (
	"github.com/Capricia-k/WoSport/internal/agent"
	"github.com/Capricia-k/WoSport/internal/auth"
	"github.com/Capricia-k/WoSport/internal/config"
	"github.com/Capricia-k/WoSport/internal/connectivity"
	"github.com/Capricia-k/WoSport/internal/location"
	"github.com/Capricia-k/WoSport/internal/stream"
	"github.com/Capricia-k/WoSport/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	App   *fiber.App
	Cfg   config.Config
	Agent *agent.Agent
}

func NewServer(cfg config.Config, a *agent.Agent) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:   app,
		Cfg:   cfg,
		Agent: a,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Agent.Controller, jwtMiddleware)
	connectivity.RegisterRoutes(s.App.Group("/connectivity"), s.Agent.Monitor, jwtMiddleware)
	if s.Agent.Feed != nil {
		location.RegisterRoutes(s.App.Group("/location"), s.Agent.Feed, jwtMiddleware)
	}
	stream.RegisterRoutes(s.App.Group("/stream"), s.Agent.Hub, s.Agent.Controller.Snapshot)
}
