package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailnexy/internal/clock"
	"mailnexy/internal/score"
	"mailnexy/models"
	"mailnexy/utils"
)

// StatusController exposes the admin/analytics endpoints SPEC_FULL.md adds
// over spec.md's engine core: on-demand score breakdowns and a day's
// planned schedule for a mailbox.
type StatusController struct {
	DB          *gorm.DB
	ScoreEngine *score.Engine
	Log         *logrus.Entry
}

func NewStatusController(db *gorm.DB, scoreEngine *score.Engine, log *logrus.Logger) *StatusController {
	return &StatusController{DB: db, ScoreEngine: scoreEngine, Log: log.WithField("component", "status_api")}
}

// Score computes a fresh breakdown for the mailbox without waiting for the
// next periodic score tick.
func (sc *StatusController) Score(c *fiber.Ctx) error {
	mailbox, ok := sc.loadOwnedSender(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "sender mailbox not found", nil)
	}

	bd, err := sc.ScoreEngine.Compute(c.Context(), mailbox)
	if err != nil {
		sc.Log.WithError(err).WithField("mailbox", mailbox.Email).Error("score computation failed")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to compute score", nil)
	}
	return c.JSON(utils.SuccessResponse(bd))
}

// Plan returns the PlanEntries scheduled for the mailbox on the given local
// date (YYYY-MM-DD route param).
func (sc *StatusController) Plan(c *fiber.Ctx) error {
	mailbox, ok := sc.loadOwnedSender(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "sender mailbox not found", nil)
	}

	loc, err := time.LoadLocation(mailbox.TZ)
	if err != nil {
		sc.Log.WithError(err).WithField("mailbox", mailbox.Email).Error("mailbox has invalid timezone")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "mailbox has invalid timezone", nil)
	}
	parsed, err := time.ParseInLocation("2006-01-02", c.Params("date"), loc)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "date must be YYYY-MM-DD", err)
	}
	day := clock.LocalMidnight(parsed)

	var entries []models.PlanEntry
	if err := sc.DB.Where("sender_id = ? AND local_date = ?", mailbox.ID, day).
		Order("fire_at ASC").Find(&entries).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to load plan", nil)
	}
	return c.JSON(utils.SuccessResponse(entries))
}

func (sc *StatusController) loadOwnedSender(c *fiber.Ctx) (*models.Mailbox, bool) {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var mailbox models.Mailbox
	if err := sc.DB.Where("id = ? AND user_id = ? AND role = ?", id, user.ID, models.RoleSender).
		First(&mailbox).Error; err != nil {
		return nil, false
	}
	return &mailbox, true
}
