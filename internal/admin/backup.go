package admin

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BackupDatabase создает дамп БД Postgres в указанный файл
func BackupDatabase(filename string, dsn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, "pg_dump", dsn, "-Fc", "-f", filename)
	return cmd.Run()
}

// restoreDumpPath строит путь к дампу из аргумента команды.
// Берётся только имя файла, выйти из каталога бэкапов нельзя.
func restoreDumpPath(dir, arg string) (string, error) {
	name := filepath.Base(strings.TrimSpace(arg))
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("пустое имя дампа")
	}
	if !strings.HasSuffix(name, ".dump") {
		return "", fmt.Errorf("не файл дампа: %s", name)
	}
	return filepath.Join(dir, name), nil
}

// RestoreDatabase восстанавливает БД из дампа
func RestoreDatabase(filename string, dsn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, "pg_restore", "-d", dsn, filename)
	return cmd.Run()
}

// CleanOldBackups удаляет дампы старше retention в директории backups
func CleanOldBackups(dir string, retention time.Duration) error {
	files, err := filepath.Glob(filepath.Join(dir, "*backup_*.dump"))
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-retention)
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(f)
		}
	}
	return nil
}

// AutoBackupDatabase запускает бэкап и чистку старых дампов
func AutoBackupDatabase(bot *tgbotapi.BotAPI, adminID int64, dsn string) {
	backupDir := "backups"
	os.MkdirAll(backupDir, 0o755)
	filename := filepath.Join(backupDir, "autobackup_"+time.Now().Format("20060102_150405")+".dump")
	err := BackupDatabase(filename, dsn)
	if err != nil {
		log.Println("[AUTO BACKUP] Ошибка резервного копирования: " + err.Error())
		if bot != nil {
			bot.Send(tgbotapi.NewMessage(adminID, "[ALERT] Бэкап БД не удался: "+err.Error()))
		}
		return
	}
	CleanOldBackups(backupDir, 31*24*time.Hour)
	log.Println("[AUTO BACKUP] Резервная копия БД успешно создана: " + filename)
}
