package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailnexy/internal/apperr"
	"mailnexy/internal/clock"
	"mailnexy/internal/mailclient"
	"mailnexy/internal/store"
	"mailnexy/models"
	"mailnexy/utils"
)

// MailboxController is the admin/analytics CRUD surface for Mailboxes, plus
// the pause/resume/test operations SPEC_FULL.md adds over spec.md's engine
// core. Adapted from the teacher's sender controller.
type MailboxController struct {
	DB      *gorm.DB
	Store   *store.Store
	Clients *mailclient.Registry
	Clock   clock.Clock
	Log     *logrus.Entry
}

func NewMailboxController(db *gorm.DB, st *store.Store, clients *mailclient.Registry, clk clock.Clock, log *logrus.Logger) *MailboxController {
	return &MailboxController{DB: db, Store: st, Clients: clients, Clock: clk, Log: log.WithField("component", "mailbox_api")}
}

type createMailboxRequest struct {
	Email    string `json:"email"`
	Provider string `json:"provider"`
	Role     string `json:"role"`
	TZ       string `json:"tz"`
	Target   int    `json:"target"`

	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port"`
	SMTPUsername   string `json:"smtp_username"`
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port"`
	IMAPUsername   string `json:"imap_username"`
	IMAPMailbox    string `json:"imap_mailbox"`
	IMAPEncryption string `json:"imap_encryption"`

	OpenRateTarget  float64 `json:"open_rate_target"`
	ReplyRateTarget float64 `json:"reply_rate_target"`

	Credentials struct {
		Access       string   `json:"access"`
		Refresh      string   `json:"refresh"`
		ClientID     string   `json:"client_id"`
		ClientSecret string   `json:"client_secret"`
		Scopes       []string `json:"scopes"`
	} `json:"credentials"`
}

func (mc *MailboxController) Create(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req createMailboxRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid request body", err)
	}
	if req.Email == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "email is required", nil)
	}
	role := models.Role(req.Role)
	if role != models.RoleSender && role != models.RoleRecipient {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "role must be SENDER or RECIPIENT", nil)
	}
	provider := models.Provider(req.Provider)
	if _, ok := mc.Clients.For(provider); !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "unknown provider", nil)
	}
	if req.TZ == "" {
		req.TZ = "UTC"
	}
	if _, err := clock.NowIn(mc.Clock, req.TZ); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid IANA timezone", err)
	}

	mailbox := models.Mailbox{
		UserID:   user.ID,
		Email:    req.Email,
		Provider: provider,
		Role:     role,
		TZ:       req.TZ,
		Target:   req.Target,
		Active:   true,

		SMTPHost:       req.SMTPHost,
		SMTPPort:       req.SMTPPort,
		SMTPUsername:   req.SMTPUsername,
		IMAPHost:       req.IMAPHost,
		IMAPPort:       req.IMAPPort,
		IMAPUsername:   req.IMAPUsername,
		IMAPMailbox:    req.IMAPMailbox,
		IMAPEncryption: req.IMAPEncryption,

		Credentials: models.CredentialBundle{
			Access:       req.Credentials.Access,
			Refresh:      req.Credentials.Refresh,
			ClientID:     req.Credentials.ClientID,
			ClientSecret: req.Credentials.ClientSecret,
			Scopes:       req.Credentials.Scopes,
		},
	}
	if req.OpenRateTarget > 0 {
		mailbox.OpenRateTarget = req.OpenRateTarget
	}
	if req.ReplyRateTarget > 0 {
		mailbox.ReplyRateTarget = req.ReplyRateTarget
	}

	if err := mc.DB.Create(&mailbox).Error; err != nil {
		mc.Log.WithError(err).Error("failed to create mailbox")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to create mailbox", nil)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(mailbox))
}

func (mc *MailboxController) List(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	var mailboxes []models.Mailbox
	if err := mc.DB.Where("user_id = ?", user.ID).Find(&mailboxes).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to list mailboxes", nil)
	}
	return c.JSON(utils.SuccessResponse(mailboxes))
}

func (mc *MailboxController) Get(c *fiber.Ctx) error {
	mailbox, ok := mc.loadOwned(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "mailbox not found", nil)
	}
	return c.JSON(utils.SuccessResponse(mailbox))
}

type updateMailboxRequest struct {
	Active          *bool    `json:"active"`
	Target          *int     `json:"target"`
	OpenRateTarget  *float64 `json:"open_rate_target"`
	ReplyRateTarget *float64 `json:"reply_rate_target"`
}

func (mc *MailboxController) Update(c *fiber.Ctx) error {
	mailbox, ok := mc.loadOwned(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "mailbox not found", nil)
	}
	var req updateMailboxRequest
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid request body", parseErr)
	}
	updates := map[string]interface{}{}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.Target != nil {
		updates["target"] = *req.Target
	}
	if req.OpenRateTarget != nil {
		updates["open_rate_target"] = *req.OpenRateTarget
	}
	if req.ReplyRateTarget != nil {
		updates["reply_rate_target"] = *req.ReplyRateTarget
	}
	if len(updates) == 0 {
		return c.JSON(utils.SuccessResponse(mailbox))
	}
	if err := mc.DB.Model(mailbox).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to update mailbox", nil)
	}
	return c.JSON(utils.SuccessResponse(mailbox))
}

func (mc *MailboxController) Delete(c *fiber.Ctx) error {
	mailbox, ok := mc.loadOwned(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "mailbox not found", nil)
	}
	if err := mc.DB.Delete(mailbox).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to delete mailbox", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "mailbox deleted"}))
}

// Pause manually pauses a mailbox, skipping its remaining plan for today,
// mirroring the automatic needs-reauth pause path in internal/dispatcher.
func (mc *MailboxController) Pause(c *fiber.Ctx) error {
	mailbox, ok := mc.loadOwned(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "mailbox not found", nil)
	}
	reason := "paused by operator"
	mailbox.Pause(reason)
	if err := mc.DB.Model(mailbox).Updates(map[string]interface{}{
		"active":     false,
		"last_error": reason,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to pause mailbox", nil)
	}
	if err := mc.Store.SkipFuturePlans(c.Context(), mailbox.ID, mc.Clock.Now()); err != nil {
		mc.Log.WithError(err).Warn("failed to skip future plans on pause")
	}
	return c.JSON(utils.SuccessResponse(mailbox))
}

func (mc *MailboxController) Resume(c *fiber.Ctx) error {
	mailbox, ok := mc.loadOwned(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "mailbox not found", nil)
	}
	if err := mc.DB.Model(mailbox).Updates(map[string]interface{}{
		"active":       true,
		"needs_reauth": false,
		"last_error":   nil,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to resume mailbox", nil)
	}
	return c.JSON(utils.SuccessResponse(mailbox))
}

// Test sends a single probe message to the mailbox itself to confirm its
// SMTP/IMAP (or OAuth2) credentials are usable, without touching the
// dispatcher's plan.
func (mc *MailboxController) Test(c *fiber.Ctx) error {
	mailbox, ok := mc.loadOwned(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "mailbox not found", nil)
	}
	client, ok := mc.Clients.For(mailbox.Provider)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "unknown provider", nil)
	}

	ep := mailclient.Endpoint{
		SMTPHost:       mailbox.SMTPHost,
		SMTPPort:       mailbox.SMTPPort,
		SMTPUsername:   mailbox.SMTPUsername,
		IMAPHost:       mailbox.IMAPHost,
		IMAPPort:       mailbox.IMAPPort,
		IMAPUsername:   mailbox.IMAPUsername,
		IMAPMailbox:    mailbox.IMAPMailbox,
		IMAPEncryption: mailbox.IMAPEncryption,
	}

	subject := fmt.Sprintf("connectivity test %s", mc.Clock.Now().Format(time.RFC3339))
	_, sendErr := client.Send(c.Context(), ep, mailbox.Credentials, mailbox.Email, mailbox.Email, subject, "this is a connectivity test message")
	now := mc.Clock.Now()
	mailbox.LastTested = &now

	if sendErr != nil {
		errMsg := sendErr.Error()
		mc.DB.Model(mailbox).Updates(map[string]interface{}{"last_tested": now, "last_error": errMsg})
		status := fiber.StatusBadGateway
		if apperr.Is(sendErr, apperr.KindNeedsReauth) {
			status = fiber.StatusUnauthorized
		}
		return utils.ErrorResponse(c, status, "mailbox test failed", sendErr)
	}

	mc.DB.Model(mailbox).Update("last_tested", now)
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "test message sent"}))
}

// loadOwned fetches the :id mailbox scoped to the authenticated user. ok is
// false if the mailbox doesn't exist or isn't owned by the caller; no
// response is written here, so the caller sends the 404.
func (mc *MailboxController) loadOwned(c *fiber.Ctx) (mailbox *models.Mailbox, ok bool) {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var m models.Mailbox
	if err := mc.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&m).Error; err != nil {
		return nil, false
	}
	return &m, true
}
