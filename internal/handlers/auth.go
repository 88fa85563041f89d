package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/idohaver7/PatrolVision/internal/database"
	"github.com/idohaver7/PatrolVision/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ctxUserID = "userID"
	ctxRole   = "role"

	minPasswordLength = 6
)

const devJWTSecret = "default-dev-secret-change-me"

// jwtSecret reads JWT_SECRET on every use so a value loaded from .env after
// startup is honoured.
func jwtSecret() []byte {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return []byte(secret)
	}
	return []byte(devJWTSecret)
}

// UsingDevSecret reports whether tokens are signed with the built-in key.
func UsingDevSecret() bool {
	return os.Getenv("JWT_SECRET") == ""
}

// Claims carried in every bearer token.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
	PhoneNumber string `json:"phoneNumber"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	User    models.User `json:"user"`
}

// tokenTTL returns standard duration (24h)
func tokenTTL() time.Duration {
	return 24 * time.Hour
}

// IssueToken signs a bearer token for the given user.
func IssueToken(userID uint, role models.Role) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL())),
		},
	})
	return token.SignedString(jwtSecret())
}

func parseToken(tokenString string) (uint, models.Role, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, "", err
	}
	if !token.Valid {
		return 0, "", errors.New("invalid token")
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, "", errors.New("invalid token subject")
	}
	return uint(id), claims.Role, nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Register handles POST /api/auth/register
func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Please provide all required fields")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		respondError(c, http.StatusBadRequest, "Please provide a valid email")
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(c, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	var count int64
	if err := database.DB.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		log.WithError(err).Error("failed to check existing user")
		respondError(c, http.StatusInternalServerError, "Server Error")
		return
	}
	if count > 0 {
		respondError(c, http.StatusBadRequest, "User already exists")
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Server Error")
		return
	}

	user := models.User{
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := database.DB.Create(&user).Error; err != nil {
		log.WithError(err).Error("failed to create user")
		respondError(c, http.StatusInternalServerError, "Server Error")
		return
	}

	token, err := IssueToken(user.ID, user.Role)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{Success: true, Token: token, User: user})
}

// Login handles user authentication
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Please provide an email and password")
		return
	}

	var user models.User
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := database.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithError(err).Error("failed to load user")
		}
		respondError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := IssueToken(user.ID, user.Role)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Success: true, Token: token, User: user})
}

// GetMe handles GET /api/auth/me
func GetMe(c *gin.Context) {
	userID, _ := currentUser(c)

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "Server Error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}

// SeedAdminUser ensures an admin account exists for the given credentials
func SeedAdminUser(email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	var count int64
	if err := database.DB.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	admin := models.User{
		Email:        email,
		FirstName:    "Admin",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := database.DB.Create(&admin).Error; err != nil {
		return err
	}
	log.WithField("email", email).Info("✅ admin user seeded")
	return nil
}

// bearerToken extracts the token from the Authorization header, or from the
// token query parameter for websocket upgrades.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// AuthMiddleware protects routes
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			respondError(c, http.StatusUnauthorized, "Not authorized, no token")
			return
		}

		userID, role, err := parseToken(tokenString)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// AdminOnly rejects callers without the admin role. Must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, role := currentUser(c); role != models.RoleAdmin {
			respondError(c, http.StatusForbidden, "Not authorized as an admin")
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (uint, models.Role) {
	var id uint
	if v, ok := c.Get(ctxUserID); ok {
		id, _ = v.(uint)
	}
	var role models.Role
	if v, ok := c.Get(ctxRole); ok {
		role, _ = v.(models.Role)
	}
	return id, role
}
