package model

import (
	"time"
)

type SolaxCredential struct {
	ID           string     `gorm:"column:id;primaryKey" json:"id"`
	TokenID      string     `gorm:"column:token_id" json:"token_id"`
	SerialNumber string     `gorm:"column:serial_number" json:"serial_number"`
	APIBaseURL   *string    `gorm:"column:api_base_url" json:"api_base_url,omitempty"`
	UniqueID     string     `gorm:"column:unique_id;uniqueIndex" json:"unique_id"`
	Title        string     `gorm:"column:title" json:"title"`
	CreatedAt    *time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    *time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (*SolaxCredential) TableName() string {
	return "tbl_solax_credentials"
}
