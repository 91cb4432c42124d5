package store

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Cache is the client-side persistence layer: the resumable session
// and any push token whose registration is deferred until the next
// connect. One row of each at most.
type Cache struct {
	db *gorm.DB
}

type sessionModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex"`
	AuthToken string
	UpdatedAt time.Time
}

type pushTokenModel struct {
	ID        uint `gorm:"primaryKey"`
	TokenType int
	Token     string
	Exclusive bool
	CreatedAt time.Time
}

// Open opens (and migrates) the SQLite cache at the provided path.
func Open(path string) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&sessionModel{}, &pushTokenModel{}); err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database connection.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSession records the credentials of the active session,
// replacing any previous one.
func (c *Cache) SaveSession(userID, authToken string) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&sessionModel{}).Error; err != nil {
			return err
		}
		return tx.Create(&sessionModel{UserID: userID, AuthToken: authToken}).Error
	})
}

// LoadSession returns the persisted session, if one exists.
func (c *Cache) LoadSession() (userID, authToken string, ok bool) {
	var model sessionModel
	if err := c.db.First(&model).Error; err != nil {
		return "", "", false
	}
	return model.UserID, model.AuthToken, true
}

// ClearSession removes the persisted session.
func (c *Cache) ClearSession() error {
	return c.db.Where("1 = 1").Delete(&sessionModel{}).Error
}

// SavePushToken records a deferred push token registration, replacing
// any previous one.
func (c *Cache) SavePushToken(tokenType int, token string, exclusive bool) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&pushTokenModel{}).Error; err != nil {
			return err
		}
		return tx.Create(&pushTokenModel{
			TokenType: tokenType,
			Token:     token,
			Exclusive: exclusive,
		}).Error
	})
}

// LoadPushToken returns the deferred push token, if one exists.
func (c *Cache) LoadPushToken() (tokenType int, token string, exclusive, ok bool) {
	var model pushTokenModel
	if err := c.db.First(&model).Error; err != nil {
		return 0, "", false, false
	}
	return model.TokenType, model.Token, model.Exclusive, true
}

// DeletePushTokens removes any deferred push token.
func (c *Cache) DeletePushTokens() error {
	return c.db.Where("1 = 1").Delete(&pushTokenModel{}).Error
}
