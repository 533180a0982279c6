package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterRequest struct {
	FullName string  `json:"full_name" validate:"required,min=2"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,min=10,max=20"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func toUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		FullName:  u.FullName,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func RegisterUser(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := bindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to hash password"})
	}

	newUser := models.User{
		FullName: req.FullName,
		Email:    strings.ToLower(req.Email),
		Phone:    req.Phone,
		Password: string(hashedPassword),
		Role:     models.RoleCustomer,
		IsActive: true,
	}
	if err := deps.DB.WithContext(c.UserContext()).Create(&newUser).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Email already exists"})
		}
		logger.Log.WithError(err).Error("failed to create user")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create user"})
	}

	return c.Status(fiber.StatusCreated).JSON(toUserResponse(newUser))
}

func LoginUser(c *fiber.Ctx) error {
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}
	ctx := c.UserContext()
	identifier := strings.ToLower(req.Email)

	if deps.Guard != nil {
		status, err := deps.Guard.CheckLockout(ctx, identifier)
		if errors.Is(err, ratelimit.ErrUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Service temporarily unavailable"})
		}
		if status.Locked {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Account temporarily locked due to too many failed login attempts. Try again in " +
					ratelimit.FormatRemainingTime(status.RemainingTime),
			})
		}
	}

	var user models.User
	err := deps.DB.WithContext(ctx).Where("email = ?", identifier).First(&user).Error
	if err == nil && !user.IsActive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Account is disabled"})
	}
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password))
	}
	if err != nil {
		if deps.Guard != nil {
			if ferr := deps.Guard.RecordFailedLogin(ctx, identifier); ferr != nil {
				logger.Log.WithError(ferr).WithField("identifier", identifier).Warn("could not record failed login")
			}
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
	}

	if deps.Guard != nil {
		if err := deps.Guard.RecordSuccessfulLogin(ctx, identifier); err != nil {
			logger.Log.WithError(err).WithField("identifier", identifier).Warn("could not clear login attempts")
		}
	}

	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"role":    user.Role,
		"exp":     deps.Clock.Now().Add(deps.JWTTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t, err := token.SignedString([]byte(deps.JWTSecret))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create token"})
	}

	return c.JSON(fiber.Map{"token": t, "user": toUserResponse(user)})
}
