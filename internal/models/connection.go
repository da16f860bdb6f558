package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ConnectionType is the kind of external system a data channel talks to
type ConnectionType string

const (
	ConnectionDatabase   ConnectionType = "DATABASE"
	ConnectionAPI        ConnectionType = "API"
	ConnectionFileServer ConnectionType = "FILE_SERVER"
)

// ConnectionStatus is the last known health of a data channel
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// SyncFrequency is how often a data channel is pulled
type SyncFrequency string

const (
	SyncRealtime SyncFrequency = "REALTIME"
	SyncHourly   SyncFrequency = "HOURLY"
	SyncDaily    SyncFrequency = "DAILY"
	SyncWeekly   SyncFrequency = "WEEKLY"
	SyncManual   SyncFrequency = "MANUAL"
)

// AuthType is the credential scheme of an API channel
type AuthType string

const (
	AuthNone   AuthType = "NONE"
	AuthBasic  AuthType = "BASIC"
	AuthBearer AuthType = "BEARER"
	AuthAPIKey AuthType = "API_KEY"
)

// DataConnection is a configured external data channel
type DataConnection struct {
	ID            string           `json:"id" db:"id"`
	Name          string           `json:"name" db:"name"`
	Type          ConnectionType   `json:"type" db:"type"`
	Host          string           `json:"host" db:"host"`
	Status        ConnectionStatus `json:"status" db:"status"`
	LastSync      string           `json:"lastSync" db:"last_sync"`
	Description   string           `json:"description" db:"description"`
	SyncFrequency SyncFrequency    `json:"syncFrequency,omitempty" db:"sync_frequency"`
	Config        ConnectionConfig `json:"config" db:"config"`
}

// ConnectionConfig holds the type-specific settings of a connection as JSON
type ConnectionConfig struct {
	Port           string   `json:"port,omitempty"`
	Username       string   `json:"username,omitempty"`
	Password       string   `json:"password,omitempty"`
	DBName         string   `json:"dbName,omitempty"`
	APIKey         string   `json:"apiKey,omitempty"`
	AuthType       AuthType `json:"authType,omitempty"`
	TableWhitelist string   `json:"tableWhitelist,omitempty"`
}

// Value implements driver.Valuer for ConnectionConfig
func (c ConnectionConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for ConnectionConfig
func (c *ConnectionConfig) Scan(value interface{}) error {
	if value == nil {
		*c = ConnectionConfig{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into ConnectionConfig", value)
	}

	return json.Unmarshal(bytes, c)
}

// Masked returns a copy with secrets replaced, for API responses
func (c ConnectionConfig) Masked() ConnectionConfig {
	if c.Password != "" {
		c.Password = "******"
	}
	if len(c.APIKey) > 5 {
		c.APIKey = c.APIKey[:5] + "***"
	} else if c.APIKey != "" {
		c.APIKey = "***"
	}
	return c
}

// Validate checks the connection's required fields and enums
func (c *DataConnection) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(c.Host) == "" {
		problems = append(problems, "host is required")
	}
	switch c.Type {
	case ConnectionDatabase, ConnectionAPI, ConnectionFileServer:
	default:
		problems = append(problems, fmt.Sprintf("unknown connection type %q", c.Type))
	}
	switch c.SyncFrequency {
	case "", SyncRealtime, SyncHourly, SyncDaily, SyncWeekly, SyncManual:
	default:
		problems = append(problems, fmt.Sprintf("unknown sync frequency %q", c.SyncFrequency))
	}
	switch c.Config.AuthType {
	case "", AuthNone, AuthBasic, AuthBearer, AuthAPIKey:
	default:
		problems = append(problems, fmt.Sprintf("unknown auth type %q", c.Config.AuthType))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid connection: %s", strings.Join(problems, "; "))
	}
	return nil
}
