package models

import (
	"time"

	"gorm.io/gorm"
)

// UserRole 定义了用户在系统中的角色。
type UserRole string

const (
	RoleMember UserRole = "member" // 普通用户，只能访问自己的工单
	RoleAdmin  UserRole = "admin"  // 管理员，可以查看全部待处理工单
)

// UserStatus 定义了用户账户的生命周期状态。
type UserStatus string

const (
	StatusActive    UserStatus = "active"    // 账号正常
	StatusSuspended UserStatus = "suspended" // 账号被暂停
)

// User 代表系统中的一个用户账户。
type User struct {
	gorm.Model

	// UserID 是对外暴露的 UUID，也是 JWT 的 sub
	UserID   string `gorm:"uniqueIndex;size:36;not null" json:"user_id"`
	Username string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	// Email 统一存储为小写
	Email    string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	// 存储哈希后的密码，json中忽略
	Password string `gorm:"size:255" json:"-"`

	Role        UserRole   `gorm:"type:varchar(20);default:'member';not null" json:"role"`
	Status      UserStatus `gorm:"type:varchar(20);default:'active';not null" json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// IsAdmin 报告该用户是否拥有管理员角色。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
