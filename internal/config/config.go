package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port                 int
	DBDSN                string
	JWTSecret            string
	WSInsecureSkipVerify bool
	RedisAddr            string
	PushGatewayURL       string
	PushServerKey        string
	LogLevel             string
}

func Load() Config {
	port := 8084
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	wsInsecure := false
	if os.Getenv("WS_INSECURE_SKIP_VERIFY") == "true" {
		wsInsecure = true
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return Config{
		Port:                 port,
		DBDSN:                os.Getenv("DB_DSN"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		WSInsecureSkipVerify: wsInsecure,
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		PushGatewayURL:       os.Getenv("PUSH_GATEWAY_URL"),
		PushServerKey:        os.Getenv("PUSH_SERVER_KEY"),
		LogLevel:             logLevel,
	}
}
