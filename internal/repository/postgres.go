package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

// GormDB is the record store backed by gorm. Production runs on PostgreSQL,
// development and tests on SQLite.
type GormDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*GormDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return open(db, logger)
}

// NewSQLiteDB opens a SQLite database. Use "file::memory:" for an in-memory store.
func NewSQLiteDB(path string, logger *logger.Logger) (*GormDB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	logger.Info("Successfully opened SQLite database ", path)
	return open(db, logger)
}

func open(db *gorm.DB, logger *logger.Logger) (*GormDB, error) {
	if err := db.AutoMigrate(&models.Account{}, &models.Asset{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return &GormDB{Conn: db, logger: logger}, nil
}

func newGormLogger() gormLogger.Interface {
	// Suppress "record not found" messages, lookups use it as a normal outcome
	return gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
}

func (db *GormDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

func (db *GormDB) Transaction(ctx context.Context, fn func(repo models.Repository) error) error {
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormDB{Conn: tx, logger: db.logger})
	})
}

func (db *GormDB) GetOrCreateAccount(ctx context.Context, publicKey string, now time.Time) (*models.Account, bool, error) {
	account := models.Account{
		PublicKey:    publicKey,
		TokenBalance: decimal.Zero,
		LastLogin:    now,
		CreatedAt:    now,
	}
	// DoNothing keeps concurrent first logins from failing on the primary key
	res := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&account)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create account: %w", res.Error)
	}
	created := res.RowsAffected == 1

	stored, err := db.GetAccount(ctx, publicKey)
	if err != nil {
		return nil, false, err
	}
	if created {
		db.logger.Debugw("Account created", "account", publicKey)
	}
	return stored, created, nil
}

func (db *GormDB) GetAccount(ctx context.Context, publicKey string) (*models.Account, error) {
	var account models.Account
	if err := db.Conn.WithContext(ctx).Where("public_key = ?", publicKey).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewError(models.KindNotFound, "account not found", err)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (db *GormDB) UpdateAccountLedger(ctx context.Context, publicKey string, balance decimal.Decimal, lastLogin time.Time) error {
	res := db.Conn.WithContext(ctx).Model(&models.Account{}).
		Where("public_key = ?", publicKey).
		Updates(map[string]interface{}{
			"token_balance": balance,
			"last_login":    lastLogin,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update account ledger: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewError(models.KindNotFound, "account not found", nil)
	}
	return nil
}

func (db *GormDB) ResetAccountBalance(ctx context.Context, publicKey, claimSignature string) (bool, error) {
	res := db.Conn.WithContext(ctx).Model(&models.Account{}).
		Where("public_key = ? AND (last_claim_signature IS NULL OR last_claim_signature <> ?)", publicKey, claimSignature).
		Updates(map[string]interface{}{
			"token_balance":        decimal.Zero,
			"last_claim_signature": claimSignature,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to reset account balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the account is missing or the reset was already applied
		if _, err := db.GetAccount(ctx, publicKey); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (db *GormDB) GetAssetsByOwner(ctx context.Context, owner string) ([]*models.Asset, error) {
	var assets []*models.Asset
	if err := db.Conn.WithContext(ctx).Where("owner_public_key = ?", owner).Order("mint").Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to get assets by owner: %w", err)
	}
	return assets, nil
}

func (db *GormDB) GetAssetsByMints(ctx context.Context, mints []string) ([]*models.Asset, error) {
	var assets []*models.Asset
	if len(mints) == 0 {
		return assets, nil
	}
	if err := db.Conn.WithContext(ctx).Where("mint IN ?", mints).Order("mint").Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to get assets by mints: %w", err)
	}
	return assets, nil
}

func (db *GormDB) CountStakedAssets(ctx context.Context, owner string) (int64, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.Asset{}).
		Where("owner_public_key = ? AND is_staked = ?", owner, true).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count staked assets: %w", err)
	}
	return count, nil
}

func (db *GormDB) CreateAsset(ctx context.Context, asset *models.Asset) error {
	if err := db.Conn.WithContext(ctx).Create(asset).Error; err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	return nil
}

func (db *GormDB) UpdateAssetOwner(ctx context.Context, mint, owner string, syncedAt time.Time) (bool, error) {
	res := db.Conn.WithContext(ctx).Model(&models.Asset{}).
		Where("mint = ? AND owner_synced_at <= ?", mint, syncedAt).
		Updates(map[string]interface{}{
			"owner_public_key": owner,
			"owner_synced_at":  syncedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update asset owner: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (db *GormDB) DeleteAsset(ctx context.Context, mint string, syncedAt time.Time) (bool, error) {
	res := db.Conn.WithContext(ctx).
		Where("mint = ? AND owner_synced_at <= ?", mint, syncedAt).
		Delete(&models.Asset{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete asset: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (db *GormDB) SetAssetsStaked(ctx context.Context, owner string, mints []string, staked bool, at time.Time) (int64, error) {
	if len(mints) == 0 {
		return 0, nil
	}
	var stakedAt *time.Time
	if staked {
		stakedAt = &at
	}
	res := db.Conn.WithContext(ctx).Model(&models.Asset{}).
		Where("owner_public_key = ? AND mint IN ? AND is_staked <> ?", owner, mints, staked).
		Updates(map[string]interface{}{
			"is_staked": staked,
			"staked_at": stakedAt,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update staked status: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (db *GormDB) ListOwnersWithStakedAssets(ctx context.Context) ([]string, error) {
	var owners []string
	if err := db.Conn.WithContext(ctx).Model(&models.Asset{}).
		Where("is_staked = ?", true).
		Distinct().
		Order("owner_public_key").
		Pluck("owner_public_key", &owners).Error; err != nil {
		return nil, fmt.Errorf("failed to list owners with staked assets: %w", err)
	}
	return owners, nil
}
