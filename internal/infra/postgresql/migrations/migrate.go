package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/pulseline/broadcast-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createCampaignsTable(),
		createDeliveriesTable(),
	})

	return m.Migrate()
}

func createCampaignsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_campaigns",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CampaignModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_campaigns_state_created ON campaigns (state, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_campaigns_created_by ON campaigns (created_by)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CampaignModel{})
		},
	}
}

func createDeliveriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_deliveries",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryModel{}); err != nil {
				return err
			}
			indexes := []string{
				// AutoMigrate creates ux_deliveries_campaign_recipient from the
				// model tags; these serve the inbox and aggregator scans.
				`CREATE INDEX IF NOT EXISTS idx_deliveries_recipient_live ON deliveries (recipient_id, created_at DESC) WHERE state = 'ACTIVE'`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_live_created ON deliveries (created_at DESC) WHERE state = 'ACTIVE'`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_campaign_id ON deliveries (campaign_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryModel{})
		},
	}
}
