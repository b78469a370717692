package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/internal/user_service/store"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	tokenIssuer       = "robosupport_user_service"
	tokenAudience     = "robosupport_clients"
)

var (
	ErrInvalidCredentials = errors.New("用户不存在或密码错误")
	ErrPasswordTooShort   = fmt.Errorf("密码长度至少为 %d 位", minPasswordLength)
	ErrEmailTaken         = errors.New("该邮箱已被注册")
	ErrUsernameTaken      = errors.New("该用户名已被使用")
	ErrInvalidToken       = errors.New("无效的 token")
	ErrAccountSuspended   = errors.New("账号已被暂停")
)

// UserStore 是 Service 依赖的持久化接口，由 store.Store 实现。
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// Claims 是从 JWT 中解析出的身份信息。
type Claims struct {
	UserID string
	Role   models.UserRole
}

// IsAdmin 报告令牌持有者是否为管理员。
func (c Claims) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// Service 封装了注册、登录和令牌签发的业务逻辑。
type Service struct {
	store       UserStore
	jwtSecret   []byte
	tokenTTL    time.Duration
	adminEmails map[string]struct{}
	now         func() time.Time
	log         *logger.Logger
}

// NewService 创建一个新的 Service 实例。adminEmails 中的邮箱注册后自动成为管理员。
func NewService(s UserStore, jwtSecret string, tokenTTL time.Duration, adminEmails []string) *Service {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		admins[normalizeEmail(e)] = struct{}{}
	}
	return &Service{
		store:       s,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		adminEmails: admins,
		now:         time.Now,
		log:         logger.New("user-service", "", ""),
	}
}

// Register 处理新用户注册：校验密码长度、检查邮箱和用户名是否重复、哈希密码。
func (s *Service) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)

	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, fmt.Errorf("查询邮箱失败: %w", err)
	}
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, fmt.Errorf("查询用户名失败: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %w", err)
	}

	role := models.RoleMember
	if _, ok := s.adminEmails[email]; ok {
		role = models.RoleAdmin
	}
	user := &models.User{
		UserID:   uuid.NewString(),
		Username: username,
		Email:    email,
		Password: string(hashedPassword),
		Role:     role,
		Status:   models.StatusActive,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	s.log.WithPayload(map[string]interface{}{
		"user_id": user.UserID,
		"role":    user.Role,
	}).Info("新用户注册成功")
	return user, nil
}

// Login 接受邮箱（包含 '@'，不区分大小写）或用户名，验证密码后签发 JWT。
func (s *Service) Login(ctx context.Context, identifier, password string) (string, *models.User, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.store.GetUserByEmail(ctx, normalizeEmail(identifier))
	} else {
		user, err = s.store.GetUserByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("查询用户失败: %w", err)
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if user.Status == models.StatusSuspended {
		return "", nil, ErrAccountSuspended
	}

	token, err := s.generateJWT(user)
	if err != nil {
		return "", nil, fmt.Errorf("签发 token 失败: %w", err)
	}

	if err := s.store.TouchLastLogin(ctx, user.UserID, s.now()); err != nil {
		s.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "store_error"}).
			WithPayload(map[string]interface{}{"user_id": user.UserID}).
			Warn("更新最近登录时间失败")
	}
	return token, user, nil
}

// GetUserByID 返回指定用户，用于构造工单监控的通知目标。
func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// ParseToken 验证 JWT 并返回其中的身份信息。
func (s *Service) ParseToken(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("非预期的签名方法")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		return Claims{}, ErrInvalidToken
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = string(models.RoleMember)
	}
	return Claims{UserID: userID, Role: models.UserRole(role)}, nil
}

// generateJWT 为指定用户生成一个新的 JWT。
func (s *Service) generateJWT(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  user.UserID,
		"role": string(user.Role),
		"iss":  tokenIssuer,
		"aud":  tokenAudience,
		"exp":  now.Add(s.tokenTTL).Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
