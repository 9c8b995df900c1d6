package database

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"food_ordering/models"
)

// SeedReference inserts the delivery and payment methods the checkout
// needs. Existing rows are left untouched.
func SeedReference(db *gorm.DB) error {
	deliveries := []models.DeliveryMethod{
		{Code: "delivery", Name: "Home delivery", IsDelivery: true, IsActive: true},
		{Code: "pickup", Name: "Store pickup", IsDelivery: false, IsActive: true},
	}
	payments := []models.PaymentMethod{
		{Code: models.PaymentCodeCOD, Name: "Cash on delivery", IsActive: true},
		{Code: models.PaymentCodeOnline, Name: "Online payment", IsActive: true},
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&deliveries).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&payments).Error
	})
}
