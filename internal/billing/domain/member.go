package billing

// Member is the billed party (empadronado). Only the contact fields needed by reports
// and reminders are modeled.
type Member struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// DisplayName falls back to the id when the name is missing.
func (m Member) DisplayName() string {
	if m.FullName != "" {
		return m.FullName
	}
	return m.ID
}
