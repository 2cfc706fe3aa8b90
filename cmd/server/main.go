package main

import (
	"context"

	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/farm-shop/internal/app"
	"github.com/linemk/farm-shop/internal/app/handlers"
	appmw "github.com/linemk/farm-shop/internal/app/middleware"
	"github.com/linemk/farm-shop/internal/cache"
	"github.com/linemk/farm-shop/internal/config"
	"github.com/linemk/farm-shop/internal/domain/models"
	"github.com/linemk/farm-shop/internal/events"
	"github.com/linemk/farm-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/farm-shop/internal/lib/logger"
	"github.com/linemk/farm-shop/internal/lib/logger/handlers/urllog"
	"github.com/linemk/farm-shop/internal/metrics"
	"github.com/linemk/farm-shop/internal/service"
	"github.com/linemk/farm-shop/internal/storage"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения, конфигом и подключением к БД
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	// события заказов: без брокеров публикация отключена
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(log, cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Error("failed to close kafka writer", slog.Any("error", err))
			}
		}()
		publisher = kafkaPublisher
	} else {
		log.Warn("kafka brokers are not configured, order events disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	productRepo := storage.NewProductRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)

	stock := service.NewStockReconciler(log, productRepo)
	authService := service.NewAuthService(log, userRepo, time.Duration(cfg.JWT.TokenTTL)*time.Minute)
	productService := service.NewProductService(log, application.DB, productRepo, stock)
	checkoutService := service.NewCheckoutService(log, application.DB, productRepo, orderRepo, stock, publisher, orderMetrics)
	statusService := service.NewOrderStatusService(log, application.DB, orderRepo, stock, publisher, orderMetrics)
	orderQueries := service.NewOrderQueryService(log, orderRepo)
	profileService := service.NewProfileService(log, userRepo)

	// nil-интерфейс, а не nil-указатель: иначе middleware не поймёт, что Redis выключен
	var idempotencyStore cache.IdempotencyStore
	if application.Cache != nil {
		idempotencyStore = application.Cache
	}

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(appmw.CORS(cfg.CORS.AllowedOrigins))

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	router.Post("/api/register", handlers.RegisterHandler(log, authService))
	router.Post("/api/login", handlers.AuthHandler(log, authService))
	router.Get("/api/products", handlers.ListProductsHandler(log, productService))
	router.Get("/api/categories", handlers.CategoriesHandler(log, productService))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewJWTMiddleware())

		r.Get("/api/orders/{id}", handlers.GetOrderHandler(log, orderQueries))
		r.Get("/api/profile", handlers.ProfileHandler(log, profileService))
		r.Put("/api/profile", handlers.UpdateProfileHandler(log, profileService))

		// покупатель
		r.Group(func(r chi.Router) {
			r.Use(jwtmiddleware.RequireRole(models.RoleCustomer))
			r.With(appmw.Idempotency(idempotencyStore, log, cfg.Redis.IdempotencyTTL)).
				Post("/api/orders", handlers.CheckoutHandler(log, checkoutService))
			r.Get("/api/orders", handlers.ListOrdersHandler(log, orderQueries))
		})

		// фермер
		r.Route("/api/farmer", func(r chi.Router) {
			r.Use(jwtmiddleware.RequireRole(models.RoleFarmer))
			r.Get("/orders", handlers.FarmerOrdersHandler(log, orderQueries))
			r.Patch("/orders/{id}/status", handlers.UpdateOrderStatusHandler(log, statusService))
			r.Get("/products", handlers.FarmerProductsHandler(log, productService))
			r.Post("/products", handlers.CreateProductHandler(log, productService))
			r.Put("/products/{id}", handlers.UpdateProductHandler(log, productService))
			r.Delete("/products/{id}", handlers.DeleteProductHandler(log, productService))
			r.Patch("/products/{id}/stock", handlers.UpdateStockHandler(log, productService))
			r.Patch("/products/{id}/status", handlers.UpdateProductStatusHandler(log, productService))
		})
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
