package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"CapIot.telemetry/internal/controller"
	"CapIot.telemetry/internal/middleware"
	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/utils"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Auth   *middleware.Authenticator
	Device *controller.DeviceController
	Alerts *controller.AlertController
	SignIn *controller.AuthController
	Health http.HandlerFunc
}

// RegisterRoutes registers all application routes on r.
func RegisterRoutes(r *mux.Router, h Handlers) {
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeMethodNotAllowed, "Method not allowed", nil, http.StatusMethodNotAllowed))
	})
	r.MethodNotAllowedHandler = methodNotAllowed

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.MethodNotAllowedHandler = methodNotAllowed
	api.HandleFunc("/signin", h.SignIn.HandleSignIn).Methods(http.MethodPost)

	// Routes below need a bearer credential. They are wrapped one by one so a
	// method mismatch still reaches methodNotAllowed.
	secured := func(path string, handler http.HandlerFunc, method string) {
		api.Handle(path, h.Auth.RequireAccount(handler)).Methods(method)
	}

	secured("/sensors/data", h.Device.HandleLatestData, http.MethodGet)
	secured("/sensors/history", h.Device.HandleHistory, http.MethodGet)
	secured("/device/getControl", h.Device.HandleGetControl, http.MethodGet)
	secured("/device/setControl", h.Device.HandleSetControl, http.MethodPost)
	secured("/device/thresholds", h.Device.HandleThresholds, http.MethodGet)

	secured("/alerts", h.Alerts.HandleList, http.MethodGet)
	secured("/alerts/unread", h.Alerts.HandleUnreadCount, http.MethodGet)
	secured("/alerts/read", h.Alerts.HandleMarkAllRead, http.MethodPost)
}
