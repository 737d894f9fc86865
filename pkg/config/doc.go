// Package config provides application configuration management from environment variables.
//
// # Overview
//
// LoadConfig reads MINDFUL_* variables, applying a .env file first when one
// is present, and validates the result.
//
// # Configuration Structure
//
// Server settings:
//
//	MINDFUL_HOST="0.0.0.0"
//	MINDFUL_PORT="8080"
//	MINDFUL_ALLOWED_ORIGINS="http://localhost:5173"
//	MINDFUL_FRONTEND_URL="http://localhost:5173/chat"
//	MINDFUL_PUBLIC_URL="https://api.example.com"
//
// Storage settings:
//
//	MINDFUL_DB_DRIVER="postgres"  # postgres or sqlite3
//	MINDFUL_DB_URL="postgres://localhost/mindful?sslmode=disable"
//	MINDFUL_REDIS_URL="redis://localhost:6379/0"
//	MINDFUL_CACHE_BACKEND="redis"  # memory, redis or none
//
// Billing settings:
//
//	MINDFUL_UNIT_PRICE="25"  # rupees per message credit
//	MINDFUL_KHALTI_SECRET_KEY="..."
//	MINDFUL_SWEEP_SCHEDULE="@every 5m"
//
// Auth settings:
//
//	MINDFUL_JWT_SECRET="at least 32 bytes of secret"
//	MINDFUL_JWT_COOKIE="access_token"
package config
