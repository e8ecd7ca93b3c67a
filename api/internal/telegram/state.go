package telegram

import (
	"fmt"

	"school-time-bot/api/internal/wizard"
)

// modeAsk routes the next plain message of a chat to the assistant.
const modeAsk = "await_question"

func sessionID(chatID int64) string { return fmt.Sprintf("tg:%d", chatID) }

func (r *Router) session(chatID int64) *wizard.Session {
	return r.Sessions.Get(sessionID(chatID))
}
