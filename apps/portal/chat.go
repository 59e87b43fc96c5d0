package main

import (
	"strings"
	"time"
	"unicode"

	"grievance/libs/backend"
)

const (
	chatRoleUser = "user"
	chatRoleBot  = "bot"
)

type chatMessage struct {
	Role   string    `json:"role"`
	Text   string    `json:"text"`
	Speech string    `json:"speech,omitempty"`
	Failed bool      `json:"failed,omitempty"`
	At     time.Time `json:"at"`
}

func chatGreeting(lang string, now time.Time) chatMessage {
	text := t(lang, "chat_greeting")
	return chatMessage{Role: chatRoleBot, Text: text, Speech: speechText(text), At: now}
}

// formatChatReply joins a chatbot reply into one display block: the response,
// then the complaint section, then suggested actions, separated by blank lines.
func formatChatReply(lang string, reply backend.ChatReply) string {
	sections := make([]string, 0, 3)
	if response := strings.TrimSpace(reply.Response); response != "" {
		sections = append(sections, response)
	}

	if info := reply.ComplaintInfo; info != nil {
		var lines []string
		if info.ID != "" {
			lines = append(lines, "📋 "+t(lang, "label_complaint_id")+": "+info.ID)
		}
		if info.Status != "" {
			lines = append(lines, "📊 "+t(lang, "label_status")+": "+statusLabel(lang, info.Status))
		}
		if info.Department != "" {
			lines = append(lines, "🏢 "+t(lang, "label_department")+": "+info.Department)
		}
		if info.TimeRemaining != "" {
			lines = append(lines, "⏰ "+t(lang, "label_time_remaining")+": "+info.TimeRemaining)
		}
		if len(lines) > 0 {
			sections = append(sections, strings.Join(lines, "\n"))
		}
	}

	var actions []string
	for _, action := range reply.SuggestedActions {
		if action = strings.TrimSpace(action); action != "" {
			actions = append(actions, "• "+action)
		}
	}
	if len(actions) > 0 {
		sections = append(sections, "💡 "+t(lang, "chat_suggested_actions")+":\n"+strings.Join(actions, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

// speechText turns a display block into text for speech synthesis.
func speechText(display string) string {
	stripped := strings.Map(func(r rune) rune {
		if isPictograph(r) {
			return -1
		}
		return r
	}, display)

	var sentences []string
	for _, line := range strings.Split(stripped, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "•-*"))
		if line == "" {
			continue
		}
		sentences = append(sentences, line)
	}

	var b strings.Builder
	for i, sentence := range sentences {
		b.WriteString(sentence)
		if i == len(sentences)-1 {
			break
		}
		if !endsSentence(sentence) {
			b.WriteString(".")
		}
		b.WriteString(" ")
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func endsSentence(line string) bool {
	last, _ := lastRune(line)
	switch last {
	case '.', '!', '?', ':', '।':
		return true
	}
	return false
}

func lastRune(s string) (rune, bool) {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0, false
	}
	return runes[len(runes)-1], true
}

func isPictograph(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	case r == 0x200D || r == 0xFE0F || r == 0x20E3:
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	}
	return unicode.Is(unicode.So, r) && r > 0x2000
}
