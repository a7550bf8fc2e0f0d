package types

import "time"

// Canonical parameter names carried by a SensorReading.
const (
	Nitrogen     = "nitrogen"
	Phosphorus   = "phosphorus"
	Potassium    = "potassium"
	PH           = "ph"
	Temperature  = "temperature"
	Humidity     = "humidity"
	Moisture     = "moisture"
	Conductivity = "conductivity"
)

// SensorReading is one telemetry sample from a soil sensor.
// Readings are immutable once received.
type SensorReading struct {
	SensorID   string             `json:"sensorId"`
	Parameters map[string]float64 `json:"parameters"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Plant is the registry entry bound to a sensor. Status holds the current
// lifecycle stage name.
type Plant struct {
	ID           string `json:"id"`
	SensorID     string `json:"sensorId"`
	PlantType    string `json:"plantType"`
	Status       string `json:"status"`
	PlotNumber   string `json:"plotNumber"`
	LocationZone string `json:"locationZone"`
}

// Bound is the inclusive acceptable range for one parameter.
type Bound struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Unit string  `json:"unit,omitempty"`
}

// StageThresholds is the threshold set for one (plant type, stage) pair.
type StageThresholds struct {
	PlantType      string           `json:"plantType"`
	PlantName      string           `json:"plantName"`
	ScientificName string           `json:"scientificName,omitempty"`
	Stage          string           `json:"stage"`
	Bounds         map[string]Bound `json:"bounds"`
}

// Direction tells which side of a bound a value fell on.
type Direction string

const (
	Below Direction = "BELOW"
	Above Direction = "ABOVE"
)

// Violation is a single parameter whose value lies outside its bound.
type Violation struct {
	Parameter string    `json:"parameter"`
	Value     float64   `json:"value"`
	Direction Direction `json:"direction"`
	Bound     float64   `json:"bound"`
	Unit      string    `json:"unit,omitempty"`
	Message   string    `json:"message"`
}

// ViolationSet is the ordered, non-empty list of violations for one
// (plant, reading) pair together with the context used to produce it.
type ViolationSet struct {
	PlantID    string      `json:"plantId"`
	PlantName  string      `json:"plantName"`
	Stage      string      `json:"stage"`
	Violations []Violation `json:"violations"`
}

// Recipient is a point-in-time entry from the recipient directory.
type Recipient struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Mobile string `json:"mobile"`
}

// RecipientOutcome is the delivery result for one recipient.
type RecipientOutcome struct {
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DeliveryReport aggregates per-recipient outcomes of one dispatch.
type DeliveryReport struct {
	Outcomes []RecipientOutcome `json:"outcomes"`
	Sent     int                `json:"sent"`
	Failed   int                `json:"failed"`
}

// AlertRecord is the persisted record of a delivered alert, keyed by Identity.
type AlertRecord struct {
	Identity         string             `json:"identity"`
	PlantID          string             `json:"plantId"`
	PlantName        string             `json:"plantName"`
	PlotNumber       string             `json:"plotNumber"`
	Stage            string             `json:"stage"`
	SensorID         string             `json:"sensorId"`
	ReadingTimestamp time.Time          `json:"readingTimestamp"`
	Violations       []Violation        `json:"violations"`
	Recipients       []RecipientOutcome `json:"recipients"`
	Message          string             `json:"message"`
	SentAt           time.Time          `json:"sentAt"`
}

// CatalogEntry is one plant type in the stage-definition catalog.
// Bound fields are numeric strings as stored upstream.
type CatalogEntry struct {
	Name           string         `json:"name"`
	ScientificName string         `json:"scientificName"`
	Stages         []CatalogStage `json:"stages"`
}

// CatalogStage holds the raw bounds for one lifecycle stage.
type CatalogStage struct {
	Stage    string `json:"stage"`
	LowN     string `json:"lowN"`
	HighN    string `json:"highN"`
	LowP     string `json:"lowP"`
	HighP    string `json:"highP"`
	LowK     string `json:"lowK"`
	HighK    string `json:"highK"`
	LowPH    string `json:"lowpH"`
	HighPH   string `json:"highpH"`
	LowTemp  string `json:"lowTemp"`
	HighTemp string `json:"highTemp"`
	LowHum   string `json:"lowHum"`
	HighHum  string `json:"highHum"`
}
