package admin

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"VPN-Subscription-bot/internal/db"
	"VPN-Subscription-bot/internal/logger"
	"VPN-Subscription-bot/internal/services"
)

// Manager обслуживает админские команды и многошаговые диалоги
type Manager struct {
	api      *tgbotapi.BotAPI
	store    *db.Store
	adminID  int64
	dsn      string
	dialogs  *dialogs
	validate *validator.Validate
}

func NewManager(api *tgbotapi.BotAPI, store *db.Store, adminID int64, dsn string) *Manager {
	return &Manager{
		api:      api,
		store:    store,
		adminID:  adminID,
		dsn:      dsn,
		dialogs:  newDialogs(),
		validate: validator.New(),
	}
}

func (m *Manager) IsAdmin(userID int64) bool {
	return userID == m.adminID
}

// Handle возвращает true, если апдейт съеден админским слоем
func (m *Manager) Handle(update tgbotapi.Update) bool {
	if update.Message == nil || update.Message.From == nil || update.Message.From.ID != m.adminID {
		return false
	}
	msg := update.Message
	cmd := msg.Command()

	if cmd == "cancel" && m.dialogs.active(msg.Chat.ID) {
		m.dialogs.reset(msg.Chat.ID)
		m.reply(msg.Chat.ID, "Отменено.")
		return true
	}

	// Продолжение незавершённого диалога
	if cmd == "" && m.dialogs.active(msg.Chat.ID) {
		m.advanceDialog(msg)
		return true
	}

	if !strings.HasPrefix(cmd, "admin_") {
		return false
	}

	switch cmd {
	case "admin_stats":
		m.handleStats(msg.Chat.ID)
	case "admin_servers":
		m.handleServers(msg.Chat.ID)
	case "admin_plans":
		m.handlePlans(msg.Chat.ID)
	case "admin_payments":
		m.handlePayments(msg.Chat.ID)
	case "admin_addserver":
		m.startDialog(msg.Chat.ID, stateAddServerName, "Название сервера:")
	case "admin_addplan":
		m.startDialog(msg.Chat.ID, stateAddPlanName, "Название тарифа:")
	case "admin_credit":
		m.startDialog(msg.Chat.ID, stateCreditUserID, "TG ID пользователя:")
	case "admin_broadcast":
		m.startDialog(msg.Chat.ID, stateBroadcastText, "Текст рассылки:")
	case "admin_backup":
		m.handleBackup(msg.Chat.ID)
	case "admin_restore":
		m.handleRestore(msg)
	default:
		return false
	}
	logger.LogAdminAction(m.adminID, cmd, msg.Text)
	return true
}

func (m *Manager) startDialog(chatID int64, state dialogState, prompt string) {
	dlg := m.dialogs.get(chatID)
	*dlg = dialog{state: state}
	m.reply(chatID, prompt+"\n(/cancel — отмена)")
}

// advanceDialog двигает автомат по одному текстовому ответу
func (m *Manager) advanceDialog(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	dlg := m.dialogs.get(chatID)
	text := strings.TrimSpace(msg.Text)

	switch dlg.state {
	// --- Добавление сервера ---
	case stateAddServerName:
		dlg.server.Name = text
		dlg.state = stateAddServerURL
		m.reply(chatID, "URL панели (https://host:port):")
	case stateAddServerURL:
		dlg.server.APIURL = text
		dlg.state = stateAddServerUsername
		m.reply(chatID, "Логин панели:")
	case stateAddServerUsername:
		dlg.server.Username = text
		dlg.state = stateAddServerPassword
		m.reply(chatID, "Пароль панели:")
	case stateAddServerPassword:
		dlg.server.Password = text
		dlg.state = stateAddServerMaxClients
		m.reply(chatID, "Лимит клиентов (0 — без лимита):")
	case stateAddServerMaxClients:
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 {
			m.reply(chatID, "Нужно неотрицательное число. Повторите:")
			return
		}
		dlg.server.MaxClients = n
		dlg.server.IsActive = true
		if err := m.validate.Struct(&dlg.server); err != nil {
			m.dialogs.reset(chatID)
			m.reply(chatID, "Данные сервера не прошли проверку: "+err.Error())
			return
		}
		if err := m.store.CreateServer(&dlg.server); err != nil {
			m.reply(chatID, "Ошибка сохранения сервера: "+err.Error())
		} else {
			m.reply(chatID, fmt.Sprintf("Сервер %s добавлен (id=%d).", dlg.server.Name, dlg.server.ID))
		}
		m.dialogs.reset(chatID)

	// --- Добавление тарифа ---
	case stateAddPlanName:
		dlg.plan.Name = text
		dlg.state = stateAddPlanPrice
		m.reply(chatID, "Цена (RUB):")
	case stateAddPlanPrice:
		price, err := strconv.ParseInt(text, 10, 64)
		if err != nil || price < 0 {
			m.reply(chatID, "Нужно неотрицательное число. Повторите:")
			return
		}
		dlg.plan.Price = price
		dlg.state = stateAddPlanDuration
		m.reply(chatID, "Длительность (дней):")
	case stateAddPlanDuration:
		days, err := strconv.Atoi(text)
		if err != nil || days <= 0 {
			m.reply(chatID, "Нужно положительное число. Повторите:")
			return
		}
		dlg.plan.DurationDays = days
		dlg.state = stateAddPlanDataLimit
		m.reply(chatID, "Лимит трафика в GB (0 — безлимит):")
	case stateAddPlanDataLimit:
		gb, err := strconv.Atoi(text)
		if err != nil || gb < 0 {
			m.reply(chatID, "Нужно неотрицательное число. Повторите:")
			return
		}
		dlg.plan.DataLimitGB = gb
		dlg.plan.IsActive = true
		dlg.plan.IsTrial = dlg.plan.Price == 0
		if err := m.validate.Struct(&dlg.plan); err != nil {
			m.dialogs.reset(chatID)
			m.reply(chatID, "Данные тарифа не прошли проверку: "+err.Error())
			return
		}
		if err := m.store.CreatePlan(&dlg.plan); err != nil {
			m.reply(chatID, "Ошибка сохранения тарифа: "+err.Error())
		} else {
			m.reply(chatID, fmt.Sprintf("Тариф %s добавлен (id=%d).", dlg.plan.Name, dlg.plan.ID))
		}
		m.dialogs.reset(chatID)

	// --- Ручное начисление баланса ---
	case stateCreditUserID:
		tgID, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			m.reply(chatID, "Нужен числовой TG ID. Повторите:")
			return
		}
		if _, err := m.store.GetUserByTgID(tgID); err != nil {
			m.dialogs.reset(chatID)
			m.reply(chatID, "Пользователь не найден.")
			return
		}
		dlg.target = tgID
		dlg.state = stateCreditAmount
		m.reply(chatID, "Сумма начисления (RUB):")
	case stateCreditAmount:
		amount, err := strconv.ParseInt(text, 10, 64)
		if err != nil || amount <= 0 {
			m.reply(chatID, "Нужно положительное число. Повторите:")
			return
		}
		if err := m.store.AddBalance(dlg.target, amount); err != nil {
			m.reply(chatID, "Ошибка начисления: "+err.Error())
		} else {
			m.reply(chatID, fmt.Sprintf("Начислено %d RUB пользователю %d.", amount, dlg.target))
			logger.LogAdminAction(m.adminID, "credit", fmt.Sprintf("tg_id=%d amount=%d", dlg.target, amount))
		}
		m.dialogs.reset(chatID)

	// --- Рассылка ---
	case stateBroadcastText:
		ids, err := m.store.ListUserTgIDs()
		if err != nil {
			m.reply(chatID, "Ошибка выборки пользователей: "+err.Error())
			m.dialogs.reset(chatID)
			return
		}
		sent := 0
		for _, id := range ids {
			if _, err := m.api.Send(tgbotapi.NewMessage(id, text)); err == nil {
				sent++
			}
		}
		m.reply(chatID, fmt.Sprintf("Рассылка отправлена %d из %d.", sent, len(ids)))
		m.dialogs.reset(chatID)

	default:
		m.dialogs.reset(chatID)
	}
}

func (m *Manager) handleStats(chatID int64) {
	users := m.store.CountUsers()
	activeSubs := m.store.CountActiveSubscriptions()
	today := m.store.SumPayments(time.Now().Truncate(24*time.Hour), time.Now())
	month := m.store.SumPayments(time.Now().AddDate(0, 0, -30), time.Now())
	total := m.store.SumPayments(time.Time{}, time.Now())
	msg := fmt.Sprintf(
		"Пользователей: %d\nАктивных подписок: %d\nПлатежи: сегодня: %d₽, месяц: %d₽, всего: %d₽",
		users, activeSubs, today, month, total)
	m.reply(chatID, msg)
}

func (m *Manager) handleServers(chatID int64) {
	var sb strings.Builder
	sb.WriteString("Серверы:\n")
	for _, st := range services.GetServerStatuses() {
		sb.WriteString(st.FormatStatus() + "\n")
	}
	servers, _ := m.store.ListServers()
	for _, srv := range servers {
		active := "выкл"
		if srv.IsActive {
			active = "вкл"
		}
		sb.WriteString(fmt.Sprintf("ID %d: %s [%s]\n", srv.ID, srv.Name, active))
	}
	m.reply(chatID, sb.String())
}

func (m *Manager) handlePlans(chatID int64) {
	plans, err := m.store.ListActivePlans()
	if err != nil {
		m.reply(chatID, "Ошибка выборки тарифов: "+err.Error())
		return
	}
	var sb strings.Builder
	sb.WriteString("Тарифы:\n")
	for _, p := range plans {
		sb.WriteString(fmt.Sprintf("ID %d: %s — %d RUB, %d дн., %d GB\n",
			p.ID, p.Name, p.Price, p.DurationDays, p.DataLimitGB))
	}
	m.reply(chatID, sb.String())
}

func (m *Manager) handlePayments(chatID int64) {
	pays := m.store.GetPayments(time.Now().AddDate(0, 0, -7), time.Now())
	var sb strings.Builder
	sb.WriteString("Платежи за 7 дней:\n")
	for _, p := range pays {
		sb.WriteString(fmt.Sprintf("%s: tg_id=%d %d %s [%s]\n",
			p.CreatedAt.Format("02.01 15:04"), p.UserTgID, p.Amount, p.Currency, p.Status))
	}
	m.reply(chatID, sb.String())
}

func (m *Manager) handleBackup(chatID int64) {
	AutoBackupDatabase(m.api, m.adminID, m.dsn)
	m.reply(chatID, "Бэкап запущен, результат в логах.")
}

// handleRestore восстанавливает БД из дампа каталога backups
func (m *Manager) handleRestore(msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		m.reply(msg.Chat.ID, "Использование: /admin_restore <файл из backups/>")
		return
	}
	filename, err := restoreDumpPath("backups", arg)
	if err != nil {
		m.reply(msg.Chat.ID, "Некорректное имя дампа: "+err.Error())
		return
	}
	if _, err := os.Stat(filename); err != nil {
		m.reply(msg.Chat.ID, "Дамп не найден: "+filename)
		return
	}
	if err := RestoreDatabase(filename, m.dsn); err != nil {
		m.reply(msg.Chat.ID, "Ошибка восстановления: "+err.Error())
		return
	}
	m.reply(msg.Chat.ID, "Восстановление завершено из "+filename)
}

func (m *Manager) reply(chatID int64, text string) {
	m.api.Send(tgbotapi.NewMessage(chatID, text))
}
