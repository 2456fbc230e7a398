package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"lendtrack/internal/handlers"
	"lendtrack/internal/models"
	"lendtrack/internal/repositories"
	"lendtrack/internal/services"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get generic DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.Borrower{}, &models.Equipment{}, &models.Loan{}); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	borrowerRepo := repositories.NewBorrowerRepository(db)
	equipmentRepo := repositories.NewEquipmentRepository(db)
	loanRepo := repositories.NewLoanRepository(db)

	lendingService := services.NewLendingService(db, borrowerRepo, equipmentRepo, loanRepo)

	router := gin.Default()

	handlers.RegisterRoutes(router, lendingService)

	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("Starting server on %s", serverAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
