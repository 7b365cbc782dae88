package dto

import (
	"time"

	"grc-core/internal/domain"
)

type CreatePolicyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type PolicyView struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	DecryptionFailed []string  `json:"decryption_failed,omitempty"`
}

func NewPolicyView(p *domain.Policy) PolicyView {
	return PolicyView{
		ID:               p.ID,
		TenantID:         p.TenantID,
		Name:             p.Name,
		Description:      p.Description,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        p.CreatedAt,
		DecryptionFailed: failedFields(&p.FieldFlags),
	}
}

type PolicyList struct {
	Items []PolicyView `json:"items"`
}
