package cmd

import (
	"context"
	"database/sql"
	"net"
	"strconv"

	"github.com/vibast-solutions/ms-go-accounts/app/blobstore"
	"github.com/vibast-solutions/ms-go-accounts/app/controller"
	"github.com/vibast-solutions/ms-go-accounts/app/middleware"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the HTTP (Echo) server for the accounts service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	uploader, err := blobstore.NewMinio(context.Background(), cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to blob store")
	}

	accountRepo := repository.NewAccountRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	videoRepo := repository.NewVideoRepository(db)
	watchRepo := repository.NewWatchHistoryRepository(db)

	tokenService := service.NewTokenService(cfg)
	accountService := service.NewAccountService(
		accountRepo,
		subscriptionRepo,
		videoRepo,
		watchRepo,
		repository.NewAccountCollection(db, watchRepo),
		repository.NewSubscriptionCollection(db),
		repository.NewVideoCollection(db),
		tokenService,
		uploader,
		cfg,
	)

	startHTTPServer(cfg, accountService, tokenService, accountRepo)
}

func startHTTPServer(
	cfg *config.Config,
	accountService *service.AccountService,
	tokenService *service.TokenService,
	accountRepo *repository.AccountRepository,
) {
	e := echo.New()
	defer e.Close()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.BodyLimit(strconv.FormatInt(cfg.S3.UploadMaxBytes, 10)))

	userController := controller.NewUserController(accountService, cfg)
	authMiddleware := middleware.NewAuthMiddleware(tokenService, accountRepo)

	users := e.Group("/users")
	users.POST("/register", userController.Register)
	users.POST("/login", userController.Login)
	users.POST("/refresh-token", userController.RefreshToken)

	protected := users.Group("")
	protected.Use(authMiddleware.RequireAuth)
	protected.POST("/logout", userController.Logout)
	protected.PUT("/change-password", userController.ChangePassword)
	protected.GET("/profile", userController.GetProfile)
	protected.PATCH("/update-name-email", userController.UpdateProfile)
	protected.PATCH("/update-avatar", userController.UpdateAvatar)
	protected.PATCH("/update-coverimage", userController.UpdateCoverImage)
	protected.GET("/c/:handle", userController.ChannelProfile)
	protected.GET("/watch-history", userController.WatchHistory)
	protected.POST("/subscribe/:handle", userController.Subscribe)
	protected.DELETE("/subscribe/:handle", userController.Unsubscribe)
	protected.POST("/watch/:videoId", userController.AddToWatchHistory)

	httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}
