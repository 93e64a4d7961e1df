package app

import (
	"strings"
	"time"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/utils"
)

type Config struct {
	ServiceName     string
	Environment     string
	Version         string
	Port            string
	AllowedOrigins  []string
	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RunServer       bool
	RunWorker       bool
}

func LoadConfig(log *logger.Logger) Config {
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTLSeconds := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTLSeconds := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)

	var origins []string
	for _, origin := range strings.Split(utils.GetEnv("CORS_ALLOWED_ORIGINS", "", log), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	return Config{
		ServiceName:     utils.GetEnv("SERVICE_NAME", "biologidex", log),
		Environment:     utils.GetEnv("ENVIRONMENT", "development", log),
		Version:         utils.GetEnv("SERVICE_VERSION", "dev", log),
		Port:            utils.GetEnv("PORT", "8080", log),
		AllowedOrigins:  origins,
		JWTSecretKey:    jwtSecretKey,
		AccessTokenTTL:  time.Duration(accessTokenTTLSeconds) * time.Second,
		RefreshTokenTTL: time.Duration(refreshTokenTTLSeconds) * time.Second,
		RunServer:       utils.GetEnvAsBool("RUN_SERVER", true, log),
		RunWorker:       utils.GetEnvAsBool("RUN_WORKER", true, log),
	}
}
