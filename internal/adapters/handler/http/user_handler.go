package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/devicesession/internal/core/domain"
	"github.com/vncsmyrnk/devicesession/internal/core/ports"
	"github.com/vncsmyrnk/devicesession/internal/logging"
)

type UserHandler struct {
	service ports.UserService
	devices ports.DeviceRegistry
	logger  *logging.Logger
}

func NewUserHandler(service ports.UserService, devices ports.DeviceRegistry, logger *logging.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		devices: devices,
		logger:  logger.With("component", "user_handler"),
	}
}

type devicesResponse struct {
	Devices []*domain.Device `json:"devices"`
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(UserIDKey).(uuid.UUID)
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
		return
	}

	user, err := h.service.GetByID(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, user.Profile())
}

// ListDevices returns the caller's devices, most recently seen first.
func (h *UserHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(UserIDKey).(uuid.UUID)
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
		return
	}

	devices, err := h.devices.ListForUser(r.Context(), userID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if devices == nil {
		devices = []*domain.Device{}
	}

	writeJSON(w, http.StatusOK, devicesResponse{Devices: devices})
}
