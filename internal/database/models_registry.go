package database

import "chatwarden/internal/models"

// PersistentModels returns the schema-managed GORM models in dependency order.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Chat{},
		&models.User{},
		&models.ChatAdmin{},
		&models.ChatModerator{},
		&models.Rule{},
		&models.ViolatorMessage{},
		&models.RuleViolation{},
		&models.RuleViolationDecision{},
		&models.NotificationPolicy{},
		&models.ModeratorRuleLastSeen{},
		&models.MessageImage{},
		&models.MessageAudio{},
	}
}
