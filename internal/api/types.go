package api

import (
	"github.com/samcharles93/lorakit/internal/inventory"
	"github.com/samcharles93/lorakit/internal/lora"
)

type ListResponse struct {
	Object string            `json:"object"`
	Data   []inventory.Entry `json:"data"`
}

type InspectRequest struct {
	Name string `json:"name"`
	// Alpha overrides the resolved alpha when positive.
	Alpha float64 `json:"alpha,omitempty"`
}

// Inspection is the stored result of preparing one adapter.
type Inspection struct {
	ID            string      `json:"id"`
	Object        string      `json:"object"`
	CreatedAt     int64       `json:"created_at"`
	Name          string      `json:"name"`
	Format        string      `json:"format"`
	Alpha         lora.Alpha  `json:"alpha"`
	Dialect       string      `json:"dialect"`
	RawKeys       int         `json:"raw_keys"`
	CanonicalKeys []string    `json:"canonical_keys"`
	Pairs         []lora.Pair `json:"pairs"`
	Incomplete    int         `json:"incomplete"`
	Warning       string      `json:"warning,omitempty"`
}

type DeletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}
