// Command devtoken prints a signed bearer token for local testing of the HTTP API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/auth"
	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/joho/godotenv"
)

func main() {
	uid := flag.String("uid", "", "user id (required)")
	roleName := flag.String("role", string(model.RoleStudent), "role: STUDENT, TEACHER, ADMIN, SUPER_ADMIN, STAFF")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *uid == "" {
		flag.Usage()
		os.Exit(2)
	}

	role, err := model.ParseRole(*roleName)
	if err != nil {
		log.Fatalf("Invalid role: %v", err)
	}

	// Секрет берём оттуда же, откуда его читает сервер
	_ = godotenv.Load(".env")
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	token, err := auth.MakeToken(*uid, role, secret, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Println(token)
}
