package logger

import (
	"go.uber.org/zap"
)

var log, _ = zap.NewProduction()

func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
}

// ReconciliationDefect фиксирует расхождение удалённого и локального состояния.
// Содержит все идентификаторы, нужные для ручной сверки по панели.
func ReconciliationDefect(op string, tgID int64, serverID uint, inboundID int, remoteUUID, email string, err error) {
	log.Error("reconciliation_defect",
		zap.String("op", op),
		zap.Int64("tg_id", tgID),
		zap.Uint("server_id", serverID),
		zap.Int("inbound_id", inboundID),
		zap.String("remote_uuid", remoteUUID),
		zap.String("email", email),
		zap.Error(err),
	)
}

func LogAdminAction(adminID int64, action, params string) {
	log.Info("admin_action", zap.Int64("admin_id", adminID), zap.String("action", action), zap.String("params", params))
}
