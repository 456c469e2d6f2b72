// Package main provides the token minting tool for karabox.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/osa030/karabox/internal/domain/user"
	"github.com/osa030/karabox/internal/infra/auth"
	"github.com/osa030/karabox/internal/infra/config"
)

var (
	app        = kingpin.New("karatoken", "Token minting tool for karabox")
	configPath = app.Flag("config", "Path to config file (signing secret and issuer)").Default("config/server.yaml").String()

	userID    = app.Flag("id", "User ID (random if empty)").String()
	name      = app.Flag("name", "Display name").Required().String()
	superuser = app.Flag("superuser", "Grant every permission").Bool()
	playlist  = app.Flag("playlist", "Playlist permission level").Default("user").Enum("", "user", "manager")
	library   = app.Flag("library", "Library permission level").Default("").Enum("", "user", "manager")
	device    = app.Flag("player", "Token for the player device").Bool()
	ttl       = app.Flag("ttl", "Token lifetime (defaults to the configured one)").Duration()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	lifetime := cfg.TokenTTL()
	if *ttl > 0 {
		lifetime = *ttl
	}

	id := *userID
	if id == "" {
		id = uuid.NewString()
	}

	u := user.User{
		ID:            id,
		Name:          *name,
		IsSuperuser:   *superuser,
		PlaylistLevel: user.ParseLevel(*playlist),
		LibraryLevel:  user.ParseLevel(*library),
		IsPlayer:      *device,
	}

	token, err := auth.NewAuthority(cfg.Auth.Secret, cfg.Auth.Issuer, lifetime).Issue(u)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("")
	fmt.Println("=== Token Issued ===")
	fmt.Println("")
	fmt.Printf("User ID: %s\n", u.ID)
	fmt.Printf("Expires: %s\n", time.Now().Add(lifetime).Format(time.RFC3339))
	fmt.Println("")
	fmt.Println(token)
	fmt.Println("")
	fmt.Println("Use it with karactl:")
	fmt.Printf("export KARA_TOKEN=\"%s\"\n", token)
}
