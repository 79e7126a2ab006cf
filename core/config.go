package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug           bool
		TestMode        bool
		Env             string // DEV (local; default), TEST, QA, PROD
		Build           string
		AppName         string
		SecretKey       []byte
		FrontendBaseURL string
		WorkDir         string

		SendgridApiKey   string
		RollbarToken     string
		OpsWebhookURL    string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Lunch    LunchConfig
	}

	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	DatabaseConfig struct {
		URI     string
		Name    string
		Timeout time.Duration
	}

	LunchConfig struct {
		Timezone string
		Location *time.Location
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "SuliPortal")
	conf.SetDefault("build", "dev")
	conf.SetDefault("secretKey", "x2m)7e!0n&w1#b$qgz5u+8y(4c^vd3s*hk9r-pt6fjl%a_io@e")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.addr", ":8000")
	conf.SetDefault("server.debugHost", "localhost:4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)

	conf.SetDefault("database.uri", "mongodb://localhost:27017")
	conf.SetDefault("database.name", "suliportal")
	conf.SetDefault("database.timeout", 10*time.Second)

	conf.SetDefault("lunch.timezone", "Europe/Budapest")

	env := os.Getenv("ENV")
	if env == "" {
		env = "DEV"
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	loc, err := time.LoadLocation(conf.GetString("lunch.timezone"))
	if err != nil {
		log.Fatalf("config.time.LoadLocation(%s): %v", conf.GetString("lunch.timezone"), err)
	}

	return &Config{
		Debug:            conf.GetBool("debug"),
		TestMode:         env == "TEST",
		Env:              env,
		Build:            conf.GetString("build"),
		AppName:          conf.GetString("appName"),
		SecretKey:        []byte(conf.GetString("secretKey")),
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		WorkDir:          wd,
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		OpsWebhookURL:    conf.GetString("opsWebhookURL"),
		defaultFromEmail: conf.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			Addr:                      conf.GetString("server.addr"),
			DebugHost:                 conf.GetString("server.debugHost"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: conf.GetDuration("server.passwordResetTimeoutDelta"),
		},
		Database: DatabaseConfig{
			URI:     conf.GetString("database.uri"),
			Name:    conf.GetString("database.name"),
			Timeout: conf.GetDuration("database.timeout"),
		},
		Lunch: LunchConfig{
			Timezone: conf.GetString("lunch.timezone"),
			Location: loc,
		},
	}
}
