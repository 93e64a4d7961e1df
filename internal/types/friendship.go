package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipRejected = "rejected"
	FriendshipBlocked  = "blocked"
)

// Friendship is directional on creation; an accepted row is treated as
// bidirectional everywhere it is read.
type Friendship struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FromUserID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_friendship_pair;column:from_user_id" json:"from_user_id"`
	ToUserID   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_friendship_pair;column:to_user_id" json:"to_user_id"`
	Status     string    `gorm:"not null;default:'pending';column:status" json:"status"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Friendship) TableName() string {
	return "friendship"
}
