package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/otonoha/academy-backend/internal/ai"
	"github.com/otonoha/academy-backend/internal/config"
	"github.com/otonoha/academy-backend/internal/handler"
	appmw "github.com/otonoha/academy-backend/internal/middleware"
	"github.com/otonoha/academy-backend/internal/repository"
	"github.com/otonoha/academy-backend/internal/service"
	"gorm.io/gorm"
)

type Server struct {
	e           *echo.Echo
	Ledger      service.LedgerService
	Fulfillment service.FulfillmentService
	sha         string
	build       string
}

func New(db *gorm.DB, cfg *config.Config, sha, buildTime string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(appmw.RequestID)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			low := strings.ToLower(origin)
			if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
				strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
				return true, nil
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false, nil
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false, nil
			}
			if strings.HasSuffix(u.Hostname(), "vercel.app") {
				return true, nil
			}
			return false, nil
		},
	}))

	txr := repository.NewTxRunner(db)
	pointsRepo := repository.NewPointsRepository(db)
	machineRepo := repository.NewMachineRepository(db)
	rewardRepo := repository.NewRewardRepository(db)
	userRewardRepo := repository.NewUserRewardRepository(db)
	historyRepo := repository.NewDrawHistoryRepository(db)

	ledgerSvc := service.NewLedgerService(txr, pointsRepo, cfg.WelcomeGrant)
	drawSvc := service.NewDrawService(txr, machineRepo, rewardRepo, userRewardRepo, historyRepo, ledgerSvc, nil)
	fulfillSvc := service.NewFulfillmentService(txr, userRewardRepo, rewardRepo, ledgerSvc)
	chatSvc := service.NewChatService(ledgerSvc, ai.NewCompanionClient(), cfg.ChatMessageCost)

	pointsHandler := handler.NewPointsHandler(ledgerSvc)
	drawHandler := handler.NewDrawHandler(drawSvc)
	rewardHandler := handler.NewRewardHandler(fulfillSvc)
	chatHandler := handler.NewChatHandler(chatSvc)

	authMw, err := appmw.NewAuthMiddleware(context.Background())
	if err != nil {
		e.Logger.Fatalf("failed to init firebase auth: %v", err)
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    sha,
			"build_time": buildTime,
		})
	})

	api := e.Group("/api")
	api.GET("/machines", drawHandler.ListMachines)

	authed := api.Group("", authMw.RequireAuth)
	authed.GET("/me/points", pointsHandler.GetBalance)
	authed.GET("/me/transactions", pointsHandler.ListTransactions)
	authed.GET("/me/rewards", rewardHandler.ListMine)
	authed.GET("/me/draws", drawHandler.ListHistory)
	authed.POST("/machines/:slug/draw", drawHandler.Draw)
	authed.POST("/rewards/:id/redeem", rewardHandler.Redeem)
	authed.POST("/chat/messages", chatHandler.SendMessage)

	admin := api.Group("/admin", appmw.RequireAdminKey(cfg.AdminAPIKey))
	admin.POST("/points/grant", pointsHandler.Grant)
	admin.POST("/rewards/:id/cancel", rewardHandler.Cancel)
	admin.POST("/rewards/:id/delivery", rewardHandler.UpdateDelivery)
	admin.GET("/machines/:slug/validate", drawHandler.ValidateMachine)

	return &Server{
		e:           e,
		Ledger:      ledgerSvc,
		Fulfillment: fulfillSvc,
		sha:         sha,
		build:       buildTime,
	}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
