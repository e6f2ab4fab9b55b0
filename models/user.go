package models

import (
	"time"
)

// Role identifiers as stored in users.role_id.
const (
	RoleSubmitter = 1
	RoleJudge     = 2
	RoleAdmin     = 3
)

// RoleName returns the audit label for a role id.
func RoleName(roleID int) string {
	switch roleID {
	case RoleAdmin:
		return "admin"
	case RoleJudge:
		return "judge"
	case RoleSubmitter:
		return "submitter"
	default:
		return "unknown"
	}
}

// User is the account record owned by the authentication service. Read-only here.
type User struct {
	UserID    int        `gorm:"primaryKey;column:user_id" json:"user_id"`
	UserFname string     `gorm:"column:user_fname" json:"user_fname"`
	UserLname string     `gorm:"column:user_lname" json:"user_lname"`
	Email     string     `gorm:"column:email;unique" json:"email"`
	Password  string     `gorm:"column:password" json:"-"`
	RoleID    int        `gorm:"column:role_id" json:"role_id"`
	CreateAt  *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt  *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt  *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

// TableName overrides
func (User) TableName() string {
	return "users"
}

func (u User) FullName() string {
	name := u.UserFname
	if u.UserLname != "" {
		name += " " + u.UserLname
	}
	return name
}
