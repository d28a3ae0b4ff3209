package synapse

import (
	"encoding/json"
	"time"
)

const (
	CommandTypeFrame = "frame"
	CommandTypeFinal = "final"
)

type Command struct {
	Id      uint64   `json:"id"`
	Sender  string   `json:"sender"`
	Type    string   `json:"type"`
	Subject string   `json:"subject"`
	Message *Message `json:"message"`
}

type Person struct {
	Id        uint64 `json:"id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Attribute string `json:"attribute"`
}

type Message struct {
	Timestamp time.Time       `json:"timestamp"`
	VideoTime float64         `json:"video_time_sec"`
	State     string          `json:"state"`
	People    []Person        `json:"people"`
	TotalUp   uint            `json:"total_up"`
	TotalDown uint            `json:"total_down"`
	Up        map[string]uint `json:"up"`
	Down      map[string]uint `json:"down"`
}

func (c *Command) ToPayload() ([]byte, error) {
	return json.Marshal(c)
}

func FromPayload(payload []byte) (*Command, error) {
	c := new(Command)
	if err := json.Unmarshal(payload, c); err != nil {
		return nil, err
	}
	return c, nil
}
