package entity

import "time"

// AgencyType classifies an agency's role in the scheme
type AgencyType string

const (
	AgencyTypeImplementing AgencyType = "Implementing"
	AgencyTypeNodal        AgencyType = "Nodal"
	AgencyTypeExecuting    AgencyType = "Executing"
	AgencyTypeMonitoring   AgencyType = "Monitoring"
)

// IsValid reports whether t is a known agency type
func (t AgencyType) IsValid() bool {
	switch t {
	case AgencyTypeImplementing, AgencyTypeNodal, AgencyTypeExecuting, AgencyTypeMonitoring:
		return true
	default:
		return false
	}
}

// Agency is a directory record. ChatOpenID is the Lark open_id used by the
// chat relay and may be empty.
type Agency struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       AgencyType `json:"type"`
	Region     string     `json:"region"`
	ChatOpenID string     `json:"chat_open_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AgencyCriteria filters directory lookups. An empty Region matches every region.
type AgencyCriteria struct {
	Type   AgencyType
	Region string
}
