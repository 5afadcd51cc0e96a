package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/medicore/medicore-api/api/swagger"
	"github.com/medicore/medicore-api/internal/handler"
	"github.com/medicore/medicore-api/internal/middleware"
	"github.com/medicore/medicore-api/internal/models"
	"github.com/medicore/medicore-api/internal/repository"
	"github.com/medicore/medicore-api/internal/service"
	"github.com/medicore/medicore-api/pkg/cache"
	"github.com/medicore/medicore-api/pkg/config"
	"github.com/medicore/medicore-api/pkg/database"
	"github.com/medicore/medicore-api/pkg/jobs"
	"github.com/medicore/medicore-api/pkg/logger"
	corsmiddleware "github.com/medicore/medicore-api/pkg/middleware/cors"
	reqidmiddleware "github.com/medicore/medicore-api/pkg/middleware/requestid"
	"github.com/medicore/medicore-api/pkg/storage"
)

// @title MediCore Admin API
// @version 1.0.0
// @description Back-office API for the MediCore healthcare management dashboard
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, list cache disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.ListTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	clinicRepo := repository.NewClinicRepository(db)
	companyRepo := repository.NewCompanyRepository(db)
	doctorRepo := repository.NewDoctorRepository(db)
	doctorClinicRepo := repository.NewDoctorClinicRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	visitRepo := repository.NewVisitRepository(db)
	prescriptionRepo := repository.NewPrescriptionRepository(db)
	labTestRepo := repository.NewLabTestRepository(db)
	medicineRepo := repository.NewMedicineRepository(db)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	permissionRepo := repository.NewPermissionRepository(db)
	exportRepo := repository.NewExportRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	clinicSvc := service.NewClinicService(clinicRepo, cacheSvc, validate, logr)
	companySvc := service.NewCompanyService(companyRepo, cacheSvc, validate, logr)
	doctorSvc := service.NewDoctorService(doctorRepo, doctorClinicRepo, clinicRepo, cacheSvc, validate, logr)
	patientSvc := service.NewPatientService(patientRepo, companyRepo, cacheSvc, validate, logr)
	appointmentSvc := service.NewAppointmentService(appointmentRepo, doctorRepo, patientRepo, clinicRepo, cacheSvc, validate, logr)
	visitSvc := service.NewVisitService(visitRepo, appointmentRepo, cacheSvc, validate, logr)
	prescriptionSvc := service.NewPrescriptionService(prescriptionRepo, visitRepo, medicineRepo, cacheSvc, validate, logr)
	labTestSvc := service.NewLabTestService(labTestRepo, cacheSvc, validate, logr)
	medicineSvc := service.NewMedicineService(medicineRepo, cacheSvc, validate, logr)
	userSvc := service.NewUserService(userRepo, roleRepo, cacheSvc, validate, logr)
	roleSvc := service.NewRoleService(roleRepo, permissionRepo, cacheSvc, validate, logr)
	permissionSvc := service.NewPermissionService(permissionRepo, cacheSvc, validate, logr)

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	exportSvc := service.NewExportService(exportRepo, patientRepo, prescriptionRepo, exportStore, signer, metricsSvc, logr, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Exports.Enabled {
		exportSvc.Start(rootCtx)
		defer exportSvc.Stop()
		go func() {
			ticker := time.NewTicker(cfg.Exports.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					exportSvc.CleanupArtifacts(cfg.Exports.SignedURLTTL)
				}
			}
		}()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	clinicHandler := handler.NewClinicHandler(clinicSvc, uploadStore, cfg.Uploads)
	companyHandler := handler.NewCompanyHandler(companySvc)
	doctorHandler := handler.NewDoctorHandler(doctorSvc)
	patientHandler := handler.NewPatientHandler(patientSvc, uploadStore, cfg.Uploads)
	appointmentHandler := handler.NewAppointmentHandler(appointmentSvc)
	visitHandler := handler.NewVisitHandler(visitSvc, uploadStore, cfg.Uploads)
	prescriptionHandler := handler.NewPrescriptionHandler(prescriptionSvc)
	labTestHandler := handler.NewLabTestHandler(labTestSvc)
	medicineHandler := handler.NewMedicineHandler(medicineSvc)
	userHandler := handler.NewUserHandler(userSvc, permissionSvc)
	roleHandler := handler.NewRoleHandler(roleSvc)
	permissionHandler := handler.NewPermissionHandler(permissionSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	authed := api.Group("", middleware.JWT(authSvc))
	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	perm := func(codes ...string) gin.HandlerFunc {
		return middleware.RequirePermission(permissionSvc, codes...)
	}
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(userRepo, action, resource)
	}

	clinics := authed.Group("/clinics")
	clinics.GET("", perm("clinics.view"), clinicHandler.List)
	clinics.GET("/:id", perm("clinics.view"), clinicHandler.Get)
	clinics.POST("", perm("clinics.manage"), audit(models.AuditActionCreate, "clinics"), clinicHandler.Create)
	clinics.PUT("/:id", perm("clinics.manage"), audit(models.AuditActionUpdate, "clinics"), clinicHandler.Update)
	clinics.POST("/:id/logo", perm("clinics.manage"), audit(models.AuditActionUpdate, "clinics"), clinicHandler.UploadLogo)
	clinics.DELETE("/:id", perm("clinics.manage"), audit(models.AuditActionDelete, "clinics"), clinicHandler.Delete)

	companies := authed.Group("/companies")
	companies.GET("", perm("companies.view"), companyHandler.List)
	companies.GET("/:id", perm("companies.view"), companyHandler.Get)
	companies.POST("", perm("companies.manage"), audit(models.AuditActionCreate, "companies"), companyHandler.Create)
	companies.PUT("/:id", perm("companies.manage"), audit(models.AuditActionUpdate, "companies"), companyHandler.Update)
	companies.DELETE("/:id", perm("companies.manage"), audit(models.AuditActionDelete, "companies"), companyHandler.Delete)

	doctors := authed.Group("/doctors")
	doctors.GET("", perm("doctors.view"), doctorHandler.List)
	doctors.GET("/:id", perm("doctors.view"), doctorHandler.Get)
	doctors.POST("", perm("doctors.manage"), audit(models.AuditActionCreate, "doctors"), doctorHandler.Create)
	doctors.PUT("/:id", perm("doctors.manage"), audit(models.AuditActionUpdate, "doctors"), doctorHandler.Update)
	doctors.PUT("/:id/clinics", perm("doctors.manage"), audit(models.AuditActionAssign, "doctors"), doctorHandler.AssignClinics)
	doctors.DELETE("/:id", perm("doctors.manage"), audit(models.AuditActionDelete, "doctors"), doctorHandler.Delete)

	patients := authed.Group("/patients")
	patients.GET("", perm("patients.view"), patientHandler.List)
	patients.GET("/:id", perm("patients.view"), patientHandler.Get)
	patients.POST("", perm("patients.manage"), audit(models.AuditActionCreate, "patients"), patientHandler.Create)
	patients.PUT("/:id", perm("patients.manage"), audit(models.AuditActionUpdate, "patients"), patientHandler.Update)
	patients.POST("/:id/photo", perm("patients.manage"), audit(models.AuditActionUpdate, "patients"), patientHandler.UploadPhoto)
	patients.DELETE("/:id", perm("patients.manage"), audit(models.AuditActionDelete, "patients"), patientHandler.Delete)

	appointments := authed.Group("/appointments")
	appointments.GET("", perm("appointments.view"), appointmentHandler.List)
	appointments.GET("/:id", perm("appointments.view"), appointmentHandler.Get)
	appointments.POST("", perm("appointments.manage"), audit(models.AuditActionCreate, "appointments"), appointmentHandler.Create)
	appointments.PUT("/:id", perm("appointments.manage"), audit(models.AuditActionUpdate, "appointments"), appointmentHandler.Update)
	appointments.PATCH("/:id/status", perm("appointments.manage"), audit(models.AuditActionUpdate, "appointments"), appointmentHandler.UpdateStatus)

	visits := authed.Group("/visits")
	visits.GET("", perm("visits.view"), visitHandler.List)
	visits.GET("/:id", perm("visits.view"), visitHandler.Get)
	visits.POST("", perm("visits.manage"), audit(models.AuditActionCreate, "visits"), visitHandler.Create)
	visits.PUT("/:id", perm("visits.manage"), audit(models.AuditActionUpdate, "visits"), visitHandler.Update)
	visits.POST("/:id/document", perm("visits.manage"), audit(models.AuditActionUpdate, "visits"), visitHandler.UploadResultDocument)

	prescriptions := authed.Group("/prescriptions")
	prescriptions.GET("", perm("prescriptions.view"), prescriptionHandler.List)
	prescriptions.GET("/:id", perm("prescriptions.view"), prescriptionHandler.Get)
	prescriptions.POST("", perm("prescriptions.manage"), audit(models.AuditActionCreate, "prescriptions"), prescriptionHandler.Create)
	prescriptions.PUT("/:id", perm("prescriptions.manage"), audit(models.AuditActionUpdate, "prescriptions"), prescriptionHandler.Update)
	prescriptions.DELETE("/:id", perm("prescriptions.manage"), audit(models.AuditActionDelete, "prescriptions"), prescriptionHandler.Delete)

	labTests := authed.Group("/lab-tests")
	labTests.GET("", perm("lab_tests.view"), labTestHandler.List)
	labTests.GET("/:id", perm("lab_tests.view"), labTestHandler.Get)
	labTests.POST("", perm("lab_tests.manage"), audit(models.AuditActionCreate, "lab_tests"), labTestHandler.Create)
	labTests.PUT("/:id", perm("lab_tests.manage"), audit(models.AuditActionUpdate, "lab_tests"), labTestHandler.Update)
	labTests.DELETE("/:id", perm("lab_tests.manage"), audit(models.AuditActionDelete, "lab_tests"), labTestHandler.Delete)

	medicines := authed.Group("/medicines")
	medicines.GET("", perm("medicines.view"), medicineHandler.List)
	medicines.GET("/:id", perm("medicines.view"), medicineHandler.Get)
	medicines.POST("", perm("medicines.manage"), audit(models.AuditActionCreate, "medicines"), medicineHandler.Create)
	medicines.PUT("/:id", perm("medicines.manage"), audit(models.AuditActionUpdate, "medicines"), medicineHandler.Update)
	medicines.DELETE("/:id", perm("medicines.manage"), audit(models.AuditActionDelete, "medicines"), medicineHandler.Delete)

	users := authed.Group("/users")
	users.GET("", perm("users.view"), userHandler.List)
	users.GET("/:id", perm("users.view", middleware.AllowSelf), userHandler.Get)
	users.POST("", perm("users.manage"), audit(models.AuditActionCreate, "users"), userHandler.Create)
	users.PUT("/:id", perm("users.manage"), audit(models.AuditActionUpdate, "users"), userHandler.Update)
	users.PUT("/:id/password", perm("users.manage"), audit(models.AuditActionUpdate, "users"), userHandler.ResetPassword)
	users.PUT("/:id/permissions", perm("users.manage"), audit(models.AuditActionAssign, "users"), userHandler.SetOverrides)
	users.DELETE("/:id", perm("users.manage"), audit(models.AuditActionDelete, "users"), userHandler.Delete)

	roles := authed.Group("/roles")
	roles.GET("", perm("roles.view"), roleHandler.List)
	roles.GET("/:id", perm("roles.view"), roleHandler.Get)
	roles.POST("", perm("roles.manage"), audit(models.AuditActionCreate, "roles"), roleHandler.Create)
	roles.PUT("/:id", perm("roles.manage"), audit(models.AuditActionUpdate, "roles"), roleHandler.Update)
	roles.PUT("/:id/permissions", perm("roles.manage"), audit(models.AuditActionAssign, "roles"), roleHandler.SyncPermissions)
	roles.DELETE("/:id", perm("roles.manage"), audit(models.AuditActionDelete, "roles"), roleHandler.Delete)

	permissions := authed.Group("/permissions")
	permissions.GET("", perm("roles.view"), permissionHandler.List)
	permissions.GET("/catalog", perm("roles.view"), permissionHandler.Catalog)

	exports := authed.Group("/exports")
	exports.GET("", perm("exports.view"), exportHandler.List)
	exports.GET("/:id", perm("exports.view"), exportHandler.Get)
	exports.POST("/patients", perm("exports.run"), exportHandler.CreatePatientCSV)
	exports.POST("/prescriptions/:id", perm("exports.run"), exportHandler.CreatePrescriptionPDF)

	// Download authenticates through the signed token itself so the link can
	// be handed to a browser.
	api.GET("/exports/download", exportHandler.Download)

	authed.GET("/system/metrics", perm("system.view"), metricsHandler.System)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
