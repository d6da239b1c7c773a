package main

import (
	"flag"
	"fmt"
	"log"

	"docchat/internal/config"
	"docchat/internal/infra/api"
)

// Prints a bearer token for the session API, signed with server.auth_secret.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config yaml")
	subject := flag.String("sub", "cli", "token subject")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Server.AuthSecret == "" {
		log.Fatalf("server.auth_secret is not set in %s", *cfgPath)
	}
	tok, err := api.NewAuthManager(cfg.Server.AuthSecret, cfg.Server.TokenTTL).Mint(*subject)
	if err != nil {
		log.Fatalf("mint: %v", err)
	}
	fmt.Println(tok)
}
