package domain

// DeviceType of a registered connection.
type DeviceType string

const (
	DeviceWeb DeviceType = "web"
	DeviceIOS DeviceType = "ios"
)

// Connection is a live delivery target for the push channel. Web
// connections carry the socket id and the relay URL of the process that
// owns the socket; iOS connections carry the device token.
type Connection struct {
	UserID     string     `json:"user_id"`
	DeviceType DeviceType `json:"device_type"`

	WebsocketID   string `json:"websocket_id,omitempty"`
	ConnectionURL string `json:"connection_url,omitempty"`

	DeviceToken string `json:"device_token,omitempty"`

	CreatedAt int64 `json:"created_at"`
}

// ID returns the identity of the connection within (user, device_type).
func (c Connection) ID() string {
	if c.DeviceType == DeviceIOS {
		return c.DeviceToken
	}
	return c.WebsocketID
}
