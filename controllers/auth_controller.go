package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"mailnexy/models"
	"mailnexy/utils"
)

// AuthController owns registration, login, and refresh-token rotation for
// operator accounts, adapted from the teacher's auth handlers with the OTP
// and password-reset flows dropped (see DESIGN.md).
type AuthController struct {
	DB  *gorm.DB
	Log *logrus.Entry
}

func NewAuthController(db *gorm.DB, log *logrus.Logger) *AuthController {
	return &AuthController{DB: db, Log: log.WithField("component", "auth")}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid request body", err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "a valid email is required", nil)
	}
	if len(req.Password) < 8 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "password must be at least 8 characters", nil)
	}

	var existing models.User
	if err := ac.DB.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "an account with this email already exists", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		ac.Log.WithError(err).Error("failed to hash password")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to create account", nil)
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if req.Name != "" {
		user.Name = &req.Name
	}
	if err := ac.DB.Create(&user).Error; err != nil {
		ac.Log.WithError(err).Error("failed to create user")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to create account", nil)
	}

	access, refresh, _, err := utils.GenerateJWTToken(&user, c.Get("User-Agent"), c.IP())
	if err != nil {
		ac.Log.WithError(err).Error("failed to issue tokens")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "account created but token issuance failed", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"user":          user,
		"access_token":  access,
		"refresh_token": refresh,
	}))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid request body", err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := ac.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "invalid credentials", nil)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "invalid credentials", nil)
	}
	if !user.IsActive {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "account is not active", nil)
	}

	access, refresh, _, err := utils.GenerateJWTToken(&user, c.Get("User-Agent"), c.IP())
	if err != nil {
		ac.Log.WithError(err).Error("failed to issue tokens")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "login failed", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"user":          user,
		"access_token":  access,
		"refresh_token": refresh,
	}))
}

func (ac *AuthController) Logout(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	if err := ac.DB.Model(&models.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", user.ID, false).
		Update("is_revoked", true).Error; err != nil {
		ac.Log.WithError(err).Error("failed to revoke refresh tokens")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "logged out"}))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (ac *AuthController) RefreshToken(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "refresh_token is required", nil)
	}

	access, refresh, err := utils.RefreshTokens(req.RefreshToken)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "invalid or expired refresh token", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
	}))
}

func (ac *AuthController) Me(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	return c.JSON(utils.SuccessResponse(user))
}
