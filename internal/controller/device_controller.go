package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/middleware"
	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/service"
	"CapIot.telemetry/internal/utils"
)

// DeviceController handles sensor data and device control requests.
type DeviceController struct {
	data    *service.DataService
	control *service.ControlService
	logger  zerolog.Logger
}

// NewDeviceController creates a new DeviceController.
func NewDeviceController(data *service.DataService, control *service.ControlService, logger zerolog.Logger) *DeviceController {
	return &DeviceController{
		data:    data,
		control: control,
		logger:  logger.With().Str("component", "device_controller").Logger(),
	}
}

const defaultHistoryLimit = 50

type setControlRequest struct {
	AttributeKey string `json:"attributeKey"`
	Value        any    `json:"value"`
}

type setControlResponse struct {
	Message string `json:"message"`
	Key     string `json:"key"`
	Value   any    `json:"value"`
}

// HandleLatestData returns the newest readings and the live status.
func (c *DeviceController) HandleLatestData(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	data, err := c.data.GetLatestData(r.Context(), accountID)
	if err != nil {
		c.logger.Error().Err(err).Uint("account_id", accountID).Msg("Failed to load latest data")
		utils.RespondWithError(w, models.InternalError())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, data)
}

// HandleHistory returns the stored samples, newest first. The optional limit
// query parameter caps the count.
func (c *DeviceController) HandleHistory(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeInvalidFormat, "limit must be a positive integer", nil, http.StatusBadRequest))
			return
		}
		limit = n
	}

	samples, err := c.data.GetRecentData(r.Context(), accountID, limit)
	if err != nil {
		c.logger.Error().Err(err).Uint("account_id", accountID).Msg("Failed to load telemetry history")
		utils.RespondWithError(w, models.InternalError())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, samples)
}

// HandleThresholds returns the configured thresholds, or null.
func (c *DeviceController) HandleThresholds(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	thresholds, err := c.data.GetThresholds(r.Context(), accountID)
	if err != nil {
		c.logger.Error().Err(err).Uint("account_id", accountID).Msg("Failed to load thresholds")
		utils.RespondWithError(w, models.InternalError())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, thresholds)
}

// HandleGetControl returns the stored control state or its defaults.
func (c *DeviceController) HandleGetControl(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())

	state, err := c.control.GetControlState(r.Context(), accountID)
	if err != nil {
		c.logger.Error().Err(err).Uint("account_id", accountID).Msg("Failed to load control state")
		utils.RespondWithError(w, models.InternalError())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, state)
}

// HandleSetControl pushes one attribute change to the device and stores it.
func (c *DeviceController) HandleSetControl(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.AccountID(r.Context())
	credential := middleware.Credential(r.Context())

	var req setControlRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeInvalidFormat, "Invalid request payload", nil, http.StatusBadRequest))
		return
	}
	if req.AttributeKey == "" || req.Value == nil {
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeMissingParameter, "Missing attributeKey or value", nil, http.StatusBadRequest))
		return
	}

	err := c.control.SetAttribute(r.Context(), credential, accountID, req.AttributeKey, req.Value)
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, setControlResponse{
			Message: "Control command successfully dispatched.",
			Key:     req.AttributeKey,
			Value:   req.Value,
		})
	case errors.Is(err, models.ErrUnknownAttribute):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeUnknownAttribute, err.Error(), nil, http.StatusBadRequest))
	case errors.Is(err, models.ErrInvalidAttributeValue):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeInvalidFormat, err.Error(), nil, http.StatusBadRequest))
	case errors.Is(err, service.ErrPushFailed):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeServiceUnavailable, "Control service failed to push command.", map[string]string{"key": req.AttributeKey}, http.StatusServiceUnavailable))
	default:
		c.logger.Error().Err(err).Uint("account_id", accountID).Msg("Failed to set control attribute")
		utils.RespondWithError(w, models.InternalError())
	}
}
