package scanner

import jsoniter "github.com/json-iterator/go"

type MessageType string

// Client to server.
const (
	MessageAcknowledgeOrientation MessageType = "acknowledge_orientation"
	MessageSelectMode             MessageType = "select_mode"
	MessageSelectBackMode         MessageType = "select_back_mode"
	MessageAcknowledgeFlip        MessageType = "acknowledge_flip"
	MessageCameraReady            MessageType = "camera_ready"
	MessageCameraError            MessageType = "camera_error"
	MessageRetryCamera            MessageType = "retry_camera"
	MessageFinish                 MessageType = "finish"
	MessageClose                  MessageType = "close"
)

// Server to client.
const (
	MessageStatus      MessageType = "status"
	MessageCameraStart MessageType = "camera_start"
	MessageCameraStop  MessageType = "camera_stop"
	MessageCompleted   MessageType = "completed"
	MessageError       MessageType = "error"
)

type OpenSessionRequest struct {
	GameID     string `query:"game_id" validate:"required,max=64"`
	CategoryID string `query:"category_id" validate:"omitempty,max=64"`
}

// ControlMessage is any JSON text message sent by the host screen.
type ControlMessage struct {
	Type   MessageType `json:"type" validate:"required,oneof=acknowledge_orientation select_mode select_back_mode acknowledge_flip camera_ready camera_error retry_camera finish close"`
	Mode   string      `json:"mode,omitempty" validate:"required_if=Type select_mode,required_if=Type select_back_mode"`
	Width  int         `json:"width,omitempty" validate:"gte=0"`
	Height int         `json:"height,omitempty" validate:"gte=0"`
	Reason string      `json:"reason,omitempty"`
}

func ParseControlMessage(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, err
	}
	return msg, nil
}

type StatusPayload struct {
	SessionID     string  `json:"session_id"`
	Phase         string  `json:"phase"`
	Instruction   string  `json:"instruction"`
	ScanMode      string  `json:"scan_mode,omitempty"`
	BackMode      string  `json:"back_mode,omitempty"`
	HasSharedBack bool    `json:"has_shared_back"`
	PendingFront  bool    `json:"pending_front"`
	ScannedCount  int     `json:"scanned_count"`
	Detected      bool    `json:"detected"`
	Progress      float64 `json:"progress"`
	CaptureLocked bool    `json:"capture_locked"`
	Camera        string  `json:"camera"`
	Error         string  `json:"error,omitempty"`
}

type OutboundMessage struct {
	Type          MessageType    `json:"type"`
	Status        *StatusPayload `json:"status,omitempty"`
	ImportedCount *int           `json:"imported_count,omitempty"`
	Message       string         `json:"message,omitempty"`
}

type SessionsResponse struct {
	Active int `json:"active"`
}
