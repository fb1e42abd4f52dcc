// Command devtoken mints an access token for local development, standing
// in for the identity service.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/training-booking/internal/config"
	"github.com/iliyamo/training-booking/internal/middleware"
	"github.com/iliyamo/training-booking/internal/utils"
)

func main() {
	user := flag.Uint64("user", 1, "participant id")
	role := flag.String("role", middleware.RoleParticipant, "PARTICIPANT or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	tok, err := utils.NewAccessToken(cfg.JWTSecret, *user, *role, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok.Token)
}
