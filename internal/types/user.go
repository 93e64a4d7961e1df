package types

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email      string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password   string    `gorm:"not null;column:password" json:"-"`
	Username   string    `gorm:"uniqueIndex;not null;column:username" json:"username"`
	FriendCode string    `gorm:"uniqueIndex;not null;size:8;column:friend_code" json:"friend_code"`
	IsAdmin    bool      `gorm:"not null;default:false;column:is_admin" json:"is_admin"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}

type UserToken struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	TokenHash string     `gorm:"not null;uniqueIndex;column:token_hash" json:"-"`
	ExpiresAt time.Time  `gorm:"not null;column:expires_at" json:"expires_at"`
	RevokedAt *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (UserToken) TableName() string {
	return "user_token"
}
