package controller

import (
	"net/http"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/middleware"
	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/service"
	"CapIot.telemetry/internal/utils"
)

// AlertController handles alert log requests.
type AlertController struct {
	alerts *service.AlertService
	logger zerolog.Logger
}

// NewAlertController creates a new AlertController.
func NewAlertController(alerts *service.AlertService, logger zerolog.Logger) *AlertController {
	return &AlertController{
		alerts: alerts,
		logger: logger.With().Str("component", "alert_controller").Logger(),
	}
}

func (c *AlertController) HandleList(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	alerts, err := c.alerts.GetAllAlerts(r.Context(), accountID)
	if err != nil {
		c.logger.Error().Err(err).Uint("account_id", accountID).Msg("Failed to list alerts")
		utils.RespondWithError(w, models.InternalError())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, alerts)
}

func (c *AlertController) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	count, err := c.alerts.GetUnreadAlertCount(r.Context(), accountID)
	if err != nil {
		c.logger.Error().Err(err).Uint("account_id", accountID).Msg("Failed to count unread alerts")
		utils.RespondWithError(w, models.InternalError())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]int64{"unreadCount": count})
}

func (c *AlertController) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	if err := c.alerts.MarkAllAsReadAndPrune(r.Context(), accountID); err != nil {
		utils.RespondWithError(w, models.InternalError())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "All alerts marked as read."})
}
