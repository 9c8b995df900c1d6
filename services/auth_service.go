package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"food_ordering/models"
)

var ErrInvalidToken = errors.New("invalid token")

type AuthService struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(db *gorm.DB, secret string, ttl time.Duration) *AuthService {
	return &AuthService{db: db, secret: []byte(secret), ttl: ttl, now: time.Now}
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

func (in RegisterInput) Validate() error {
	var errs ValidationErrors
	if _, err := mail.ParseAddress(in.Email); err != nil {
		errs.Add("email", "is not a valid address")
	}
	if len(in.Password) < 8 {
		errs.Add("password", "must be at least 8 characters")
	}
	if strings.TrimSpace(in.FullName) == "" {
		errs.Add("full_name", "is required")
	}
	return errs.Err()
}

// Session is the identity carried by a session token.
type Session struct {
	UserID  int64
	IsAdmin bool
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	email := normalizeEmail(in.Email)

	var existing int64
	if err := a.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, Reject(ReasonEmailTaken, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        strings.TrimSpace(in.Phone),
	}
	if err := a.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, Reject(ReasonEmailTaken, "email already registered")
		}
		return nil, err
	}
	return user, nil
}

// Login checks the credentials and returns the user with a session token.
func (a *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user := &models.User{}
	err := a.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", Reject(ReasonInvalidCredentials, "invalid email or password")
	}
	if err != nil {
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", Reject(ReasonInvalidCredentials, "invalid email or password")
	}
	token, err := a.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (a *AuthService) IssueToken(user *models.User) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user.ID,
		"typ": "session",
		"adm": user.IsAdmin,
		"exp": a.now().Add(a.ttl).Unix(),
	})
	return t.SignedString(a.secret)
}

func (a *AuthService) ParseToken(token string) (*Session, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims["typ"] != "session" {
		return nil, ErrInvalidToken
	}
	idFloat, ok := claims["sub"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}
	admin, _ := claims["adm"].(bool)
	return &Session{UserID: int64(idFloat), IsAdmin: admin}, nil
}

func (a *AuthService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	user := &models.User{}
	if err := a.db.WithContext(ctx).First(user, userID).Error; err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

func (a *AuthService) AddAddress(ctx context.Context, userID int64, line string) (*models.Address, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ValidationErrors{{Field: "line", Message: "is required"}}
	}
	addr := &models.Address{UserID: userID, Line: line, IsActive: true}
	if err := a.db.WithContext(ctx).Create(addr).Error; err != nil {
		return nil, err
	}
	return addr, nil
}

func (a *AuthService) ListAddresses(ctx context.Context, userID int64) ([]models.Address, error) {
	var addrs []models.Address
	err := a.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true).Order("id").Find(&addrs).Error
	return addrs, err
}
