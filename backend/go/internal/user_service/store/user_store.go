package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"RoboSupport/backend/go/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrUserNotFound 表示查询的用户不存在。
	ErrUserNotFound = errors.New("用户不存在")
	// ErrDuplicateUser 表示邮箱或用户名已被占用。
	ErrDuplicateUser = errors.New("邮箱或用户名已被注册")
)

// Store 封装了所有与用户服务相关的数据库操作。
type Store struct {
	DB *gorm.DB
}

// NewStore 创建一个新的 Store 实例。
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// CreateUser 在数据库中创建一个新用户。
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	err := s.DB.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateEntry(err) {
		return ErrDuplicateUser
	}
	return err
}

// GetUserByEmail 通过邮箱地址查找用户。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", strings.ToLower(email))
}

// GetUserByUsername 通过用户名查找用户。
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.first(ctx, "username = ?", username)
}

// GetUserByID 通过对外的 UUID 查找用户。
func (s *Store) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return s.first(ctx, "user_id = ?", userID)
}

// TouchLastLogin 记录最近一次登录时间。
func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Update("last_login_at", at).Error
}

func (s *Store) first(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// MySQL 的唯一键冲突错误码为 1062；未开启 TranslateError 时只能从消息中识别。
func isDuplicateEntry(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}
