package models

import (
	"time"

	"gorm.io/datatypes"
)

// Judge is a reviewer profile linked to a user account. Capacity nil means unlimited.
type Judge struct {
	ID            uint                        `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID        int                         `json:"user_id" gorm:"not null;uniqueIndex"`
	DisplayName   string                      `json:"display_name" gorm:"type:varchar(255)"`
	ExpertiseTags datatypes.JSONSlice[string] `json:"expertise_tags"`
	Active        bool                        `json:"active" gorm:"not null;default:true"`
	Capacity      *int                        `json:"capacity"`
	CreatedAt     time.Time                   `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                   `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID;references:UserID"`
}

func (Judge) TableName() string { return "judges" }
