package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/types"
	"github.com/yungbote/biologidex-backend/internal/utils"
)

var (
	ErrInvalidCredentials = fmt.Errorf("invalid email or password")
	ErrEmailTaken         = fmt.Errorf("email already registered")
	ErrUsernameTaken      = fmt.Errorf("username already taken")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
)

type JWTClaims struct {
	IsAdmin bool `json:"is_admin"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService interface {
	Register(ctx context.Context, email, username, password string) (*types.User, *TokenPair, error)
	Login(ctx context.Context, email, password string) (*types.User, *TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ParseAccessToken(tokenString string) (*JWTClaims, error)
	CleanupExpiredTokens(ctx context.Context) error
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	userTokenRepo repos.UserTokenRepo
	jwtSecretKey  string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) AuthService {
	return &authService{
		db:            db,
		log:           log.With("service", "AuthService"),
		userRepo:      userRepo,
		userTokenRepo: userTokenRepo,
		jwtSecretKey:  jwtSecretKey,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (as *authService) Register(ctx context.Context, email, username, password string) (*types.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if email == "" || username == "" || len(password) < 8 {
		return nil, nil, fmt.Errorf("email, username and a password of at least 8 characters are required")
	}

	if exists, err := as.userRepo.EmailExists(ctx, nil, email); err != nil {
		return nil, nil, err
	} else if exists {
		return nil, nil, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &types.User{
		ID:       uuid.New(),
		Email:    email,
		Username: username,
		Password: string(hashed),
	}

	var pair *TokenPair
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, codeErr := as.uniqueFriendCode(ctx, tx)
		if codeErr != nil {
			return codeErr
		}
		user.FriendCode = code

		if _, cErr := as.userRepo.Create(ctx, tx, []*types.User{user}); cErr != nil {
			if strings.Contains(cErr.Error(), "duplicate") {
				return ErrUsernameTaken
			}
			return fmt.Errorf("create user: %w", cErr)
		}

		var tErr error
		pair, tErr = as.issueTokens(ctx, tx, user)
		return tErr
	})
	if err != nil {
		return nil, nil, err
	}

	as.log.Info("user registered", "user_id", user.ID)
	return user, pair, nil
}

// uniqueFriendCode regenerates until the code is unused. Collisions on
// an 8-character alphanumeric code are rare enough that the loop is
// bounded only as a safety valve.
func (as *authService) uniqueFriendCode(ctx context.Context, tx *gorm.DB) (string, error) {
	for i := 0; i < 10; i++ {
		code, err := utils.GenerateFriendCode()
		if err != nil {
			return "", err
		}
		exists, err := as.userRepo.FriendCodeExists(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique friend code")
}

func (as *authService) Login(ctx context.Context, email, password string) (*types.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := as.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	var pair *TokenPair
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tErr error
		pair, tErr = as.issueTokens(ctx, tx, user)
		return tErr
	})
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (as *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidToken
	}

	var pair *TokenPair
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, ftErr := as.userTokenRepo.GetByHash(ctx, tx, hashRefreshToken(refreshToken))
		if ftErr != nil {
			return ftErr
		}
		if existing == nil {
			return ErrInvalidToken
		}

		user, uErr := as.userRepo.GetByID(ctx, tx, existing.UserID)
		if uErr != nil {
			return uErr
		}
		if user == nil {
			return ErrInvalidToken
		}

		// Rotate: the presented refresh token is single use.
		if rErr := as.userTokenRepo.Revoke(ctx, tx, existing.ID); rErr != nil {
			return rErr
		}

		var tErr error
		pair, tErr = as.issueTokens(ctx, tx, user)
		return tErr
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (as *authService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := as.userTokenRepo.GetByHash(ctx, tx, hashRefreshToken(refreshToken))
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		return as.userTokenRepo.Revoke(ctx, tx, existing.ID)
	})
}

func (as *authService) issueTokens(ctx context.Context, tx *gorm.DB, user *types.User) (*TokenPair, error) {
	claims := JWTClaims{
		IsAdmin: user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(as.jwtSecretKey))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken := uuid.New().String()
	userToken := &types.UserToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashRefreshToken(refreshToken),
		ExpiresAt: time.Now().Add(as.refreshTTL),
	}
	if _, err := as.userTokenRepo.Create(ctx, tx, userToken); err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (as *authService) ParseAccessToken(tokenString string) (*JWTClaims, error) {
	parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsedToken.Claims.(*JWTClaims)
	if !ok || !parsedToken.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (as *authService) CleanupExpiredTokens(ctx context.Context) error {
	n, err := as.userTokenRepo.DeleteExpired(ctx, nil)
	if err != nil {
		return err
	}
	if n > 0 {
		as.log.Info("expired refresh tokens deleted", "count", n)
	}
	return nil
}
