package dto

import (
	"time"

	"github.com/noah-isme/modengine-api/internal/models"
)

// NotificationCreateRequest describes a notification to enqueue.
type NotificationCreateRequest struct {
	UserID  uint                   `json:"user_id" validate:"required,gt=0"`
	Type    string                 `json:"type" validate:"required,max=64"`
	Message string                 `json:"message" validate:"required,max=2000"`
	Payload map[string]interface{} `json:"payload"`
}

// NotificationResponse is the serialized representation of a notification.
type NotificationResponse struct {
	ID        uint                   `json:"id"`
	UserID    uint                   `json:"user_id"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewNotificationResponse converts a notification model into a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	var payload map[string]interface{}
	if len(model.Payload) > 0 {
		payload = make(map[string]interface{}, len(model.Payload))
		for key, value := range model.Payload {
			payload[key] = value
		}
	}
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Message:   model.Message,
		Payload:   payload,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts notifications into DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
