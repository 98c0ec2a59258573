package mqtt

import (
	"time"

	"github.com/kilianp07/ess/core/battery"
)

// ProductionReading is a harvested energy measurement sent by a site.
type ProductionReading struct {
	Location     string    `json:"location"`
	ProductionWh float64   `json:"production_wh"`
	Timestamp    time.Time `json:"timestamp"`
}

// StatusMessage is the payload published for each committed snapshot.
type StatusMessage struct {
	MessageID string           `json:"message_id"`
	Location  string           `json:"location"`
	Status    battery.Snapshot `json:"status"`
	Timestamp int64            `json:"timestamp"`
}

// Client represents an MQTT client publishing battery status and receiving
// production readings.
type Client interface {
	// PublishStatus sends the snapshot on the location status topic.
	PublishStatus(location string, snap battery.Snapshot) error

	// SubscribeProduction registers fn for readings of the location.
	SubscribeProduction(location string, fn func(ProductionReading)) error

	Disconnect()
}
