// Command token mints a bearer token for a chat user.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/omochice/realtime-chat/internal/auth"
	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/config"
)

func main() {
	userID := flag.Int64("user-id", 0, "User id to mint a token for")
	username := flag.String("username", "", "Username embedded in the token")
	flag.Parse()

	if *userID <= 0 {
		log.Fatal("User id is required. Use -user-id flag")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to create token service: %v", err)
	}
	token, err := tokens.Issue(chat.User{ID: chat.UserID(*userID), Username: *username})
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}
