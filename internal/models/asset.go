package models

import "time"

// Asset is a collectible token tracked by the service, keyed by mint.
type Asset struct {
	// Mint is the base58 mint address.
	Mint string `json:"mint" gorm:"column:mint;primaryKey;size:64"`
	// Name is the display name from the token metadata.
	Name string `json:"name" gorm:"column:name"`
	// Symbol is the collection symbol.
	Symbol string `json:"symbol" gorm:"column:symbol"`
	// URI points to the off-chain JSON metadata.
	URI string `json:"uri" gorm:"column:uri"`
	// Image is the image URL taken from the off-chain metadata.
	Image string `json:"image" gorm:"column:image"`
	// OwnerPublicKey references Account.PublicKey.
	OwnerPublicKey string `json:"owner_public_key" gorm:"column:owner_public_key;size:64;not null;index"`
	// IsStaked is true iff the owner's token account for this mint is frozen.
	IsStaked bool `json:"is_staked" gorm:"column:is_staked;not null;default:false;index"`
	// StakedAt is nil while the asset is unstaked.
	StakedAt *time.Time `json:"staked_at,omitempty" gorm:"column:staked_at"`
	// OwnerSyncedAt is the start time of the sync pass that last wrote the owner.
	// Ownership writes from an older pass are ignored.
	OwnerSyncedAt time.Time `json:"-" gorm:"column:owner_synced_at;not null"`
}

// TableName specifies the table name for GORM
func (Asset) TableName() string {
	return "assets"
}

// OnChainAsset is an asset observed in a wallet on the ledger network.
type OnChainAsset struct {
	Mint   string `json:"mint"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
	Image  string `json:"image"`
	// Frozen reports whether the holder's token account is frozen.
	Frozen bool `json:"frozen"`
}

// SplitByStake splits assets into staked and unstaked lists, preserving order.
func SplitByStake(assets []*Asset) (staked, unstaked []*Asset) {
	staked = make([]*Asset, 0, len(assets))
	unstaked = make([]*Asset, 0, len(assets))
	for _, asset := range assets {
		if asset.IsStaked {
			staked = append(staked, asset)
		} else {
			unstaked = append(unstaked, asset)
		}
	}
	return staked, unstaked
}

// Mints returns the mint of every asset.
func Mints(assets []*Asset) []string {
	mints := make([]string, 0, len(assets))
	for _, asset := range assets {
		mints = append(mints, asset.Mint)
	}
	return mints
}
