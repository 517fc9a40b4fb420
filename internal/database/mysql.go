package database

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// ConnectMySQL opens the gorm connection. TranslateError turns driver
// duplicate-key errors into gorm.ErrDuplicatedKey, which the store relies
// on for idempotent pair creation.
func ConnectMySQL(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
}
