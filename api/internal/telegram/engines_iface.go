package telegram

import (
	"fmt"
	"strings"

	"school-time-bot/api/internal/llm"
)

// modelSwitcher is implemented by engines that can target another model.
type modelSwitcher interface {
	WithModel(model string) llm.Engine
}

func (r *Router) handleEngineCommand(chatID int64, args []string) {
	if len(args) == 0 {
		cur := r.session(chatID).Engine()
		if cur == nil {
			cur = r.Gateway.Engine()
		}
		if cur == nil {
			r.send(chatID, "설정된 엔진이 없습니다.")
			return
		}
		r.send(chatID, fmt.Sprintf("현재 엔진: %s (%s)\n사용법: /engine gpt|gemini [모델]", cur.Name(), cur.GetModel()))
		return
	}
	eng, err := r.Engines.GetEngine(args[0])
	if err != nil {
		r.send(chatID, "엔진을 찾을 수 없습니다: "+strings.ToLower(args[0]))
		return
	}
	if len(args) > 1 {
		ms, ok := eng.(modelSwitcher)
		if !ok {
			r.send(chatID, "이 엔진은 모델 변경을 지원하지 않습니다.")
			return
		}
		eng = ms.WithModel(args[1])
	}
	r.session(chatID).SetEngine(eng)
	r.Log.Info("engine switched", "chat_id", chatID, "engine", eng.Name(), "model", eng.GetModel())
	r.send(chatID, fmt.Sprintf("✅ 엔진: %s (%s)", eng.Name(), eng.GetModel()))
}
