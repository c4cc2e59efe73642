package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a wallet known to the staking service.
type Account struct {
	// PublicKey is the base58 wallet address. Unique key of the account.
	PublicKey string `json:"public_key" gorm:"column:public_key;primaryKey;size:64"`
	// TokenBalance is the cumulative reward balance materialized at the last checkpoint.
	TokenBalance decimal.Decimal `json:"token_balance" gorm:"column:token_balance;type:decimal(38,12);not null;default:0"`
	// LastLogin is the basis timestamp for the next accrual.
	LastLogin time.Time `json:"last_login" gorm:"column:last_login;not null"`
	// LastClaimSignature is the signature of the last claim transfer whose reset was applied.
	LastClaimSignature string `json:"-" gorm:"column:last_claim_signature;size:128"`
	// CreatedAt is the time the account was first observed.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (Account) TableName() string {
	return "accounts"
}
