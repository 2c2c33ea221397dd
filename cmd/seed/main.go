package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/stockwatch/stockwatch/internal/config"
	"github.com/stockwatch/stockwatch/internal/db"
	"github.com/stockwatch/stockwatch/internal/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Seed the database with demo data
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	database, err := db.NewDB(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	// Apply the schema so seeding works on a fresh database.
	migration, err := os.ReadFile("migrations/001_init.sql")
	if err != nil {
		log.Fatalf("Failed to read migration: %v", err)
	}
	if _, err := database.Pool.Exec(ctx, string(migration)); err != nil {
		log.Fatalf("Failed to apply migration: %v", err)
	}

	// Skip if already seeded.
	products, err := database.ListProducts(ctx)
	if err != nil {
		log.Fatalf("Failed to list products: %v", err)
	}
	if len(products) > 0 {
		fmt.Printf("Database already has %d products. No need to seed.\n", len(products))
		os.Exit(0)
	}

	var userIDs []int64
	for _, username := range []string{"collector1", "collector2"} {
		user, err := database.CreateUser(ctx, username)
		if err != nil {
			log.Fatalf("Failed to create user %s: %v", username, err)
		}
		if _, err := database.AddToBalance(ctx, user.ID, decimal.NewFromInt(100)); err != nil {
			log.Fatalf("Failed to fund user %s: %v", username, err)
		}
		userIDs = append(userIDs, user.ID)
	}

	seedProducts := []struct {
		name       string
		price      string
		globalLink string
		auLink     string
	}{
		{
			name:       "THE MONSTERS Big Into Energy Series",
			price:      "15.00",
			globalLink: "https://www.popmart.com/au/products/1739/THE-MONSTERS-Big-into-Energy-Series-Vinyl-Plush-Pendant-Blind-Box",
			auLink:     "https://popmart.com.au/products/the-monsters-big-into-energy-series-vinyl-plush-pendant-blind-box",
		},
		{
			name:       "SKULLPANDA Tell Me What You Want Series",
			price:      "12.50",
			globalLink: "https://www.popmart.com/goods/detail?spuId=938",
			auLink:     "",
		},
	}

	for i, sp := range seedProducts {
		price, err := decimal.NewFromString(sp.price)
		if err != nil {
			log.Fatalf("Bad seed price %q: %v", sp.price, err)
		}
		product, err := database.CreateProduct(ctx, &models.Product{
			Name:       sp.name,
			Price:      price,
			GlobalLink: sp.globalLink,
			AULink:     sp.auLink,
		})
		if err != nil {
			log.Fatalf("Failed to create product %s: %v", sp.name, err)
		}

		expiry := time.Now().Add(30 * 24 * time.Hour)
		if _, err := database.CreateMonitor(ctx, userIDs[i%len(userIDs)], product.ID, expiry); err != nil {
			log.Fatalf("Failed to create monitor for %s: %v", sp.name, err)
		}
	}

	fmt.Println("Database seeded successfully")
}
