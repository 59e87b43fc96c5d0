package main

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

//go:embed locales/*.json
var localeFiles embed.FS

const (
	defaultLanguage    = "en"
	languageCookieName = "grievance_language"
	languageCookieAge  = 365 * 24 * time.Hour
)

var supportedLanguages = []string{"en", "hi", "mr"}

// catalogues maps language to key to text. Every non-default catalogue is
// merged over the English one when loaded, so a missing key falls back to
// English.
var catalogues = mustLoadCatalogues()

func mustLoadCatalogues() map[string]map[string]string {
	loaded, err := loadCatalogues()
	if err != nil {
		panic(err)
	}
	return loaded
}

func loadCatalogues() (map[string]map[string]string, error) {
	raw := map[string]map[string]string{}
	for _, lang := range supportedLanguages {
		content, err := localeFiles.ReadFile(path.Join("locales", lang+".json"))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", lang, err)
		}
		var entries map[string]string
		if err := json.Unmarshal(content, &entries); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", lang, err)
		}
		raw[lang] = entries
	}

	merged := make(map[string]map[string]string, len(raw))
	for lang, entries := range raw {
		texts := make(map[string]string, len(raw[defaultLanguage]))
		for key, value := range raw[defaultLanguage] {
			texts[key] = value
		}
		for key, value := range entries {
			if strings.TrimSpace(value) != "" {
				texts[key] = value
			}
		}
		merged[lang] = texts
	}
	return merged, nil
}

func normalizeLanguage(raw string) string {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.IndexAny(lang, "-_"); idx > 0 {
		lang = lang[:idx]
	}
	for _, supported := range supportedLanguages {
		if lang == supported {
			return lang
		}
	}
	return defaultLanguage
}

func isSupportedLanguage(raw string) bool {
	lang := strings.ToLower(strings.TrimSpace(raw))
	for _, supported := range supportedLanguages {
		if lang == supported {
			return true
		}
	}
	return false
}

// t looks up key in lang, then in English, then returns the key itself.
func t(lang, key string) string {
	if texts, ok := catalogues[normalizeLanguage(lang)]; ok {
		if value, ok := texts[key]; ok {
			return value
		}
	}
	return key
}

func tf(lang, key string, args ...any) string {
	return fmt.Sprintf(t(lang, key), args...)
}

func texts(lang string) map[string]string {
	return catalogues[normalizeLanguage(lang)]
}

// languageFromAcceptHeader picks the supported language with the highest
// q-value. Unsupported tags are skipped.
func languageFromAcceptHeader(header string) string {
	type candidate struct {
		lang    string
		quality float64
	}
	var candidates []candidate
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(strings.TrimSpace(part), ";")
		tag := strings.TrimSpace(fields[0])
		if tag == "" {
			continue
		}
		base := strings.ToLower(tag)
		if idx := strings.IndexAny(base, "-_"); idx > 0 {
			base = base[:idx]
		}
		if !isSupportedLanguage(base) {
			continue
		}
		quality := 1.0
		for _, param := range fields[1:] {
			param = strings.TrimSpace(param)
			if strings.HasPrefix(param, "q=") {
				var q float64
				if _, err := fmt.Sscanf(strings.TrimPrefix(param, "q="), "%g", &q); err == nil {
					quality = q
				}
			}
		}
		if quality <= 0 {
			continue
		}
		candidates = append(candidates, candidate{lang: base, quality: quality})
	}
	if len(candidates) == 0 {
		return defaultLanguage
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].quality > candidates[j].quality
	})
	return candidates[0].lang
}

func (a *App) languageFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(languageCookieName); err == nil && isSupportedLanguage(cookie) {
		return normalizeLanguage(cookie)
	}
	return languageFromAcceptHeader(c.GetHeader("Accept-Language"))
}

func (a *App) languageSubmitHandler(c *gin.Context) {
	lang := normalizeLanguage(c.PostForm("lang"))
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(languageCookieName, lang, int(languageCookieAge.Seconds()), "/", "", a.secureCookies(), false)
	c.Redirect(http.StatusSeeOther, sanitizeRedirectTarget(c.PostForm("next"), "/"))
}

func statusLabel(lang, status string) string {
	return labelWithPrefix(lang, "status_", status)
}

func urgencyLabel(lang, urgency string) string {
	return labelWithPrefix(lang, "urgency_", urgency)
}

func escalationLabel(lang, level string) string {
	return labelWithPrefix(lang, "escalation_", level)
}

func voteActionLabel(lang, action string) string {
	return labelWithPrefix(lang, "vote_action_", action)
}

// labelWithPrefix localizes an enum value and falls back to the raw value for
// anything the catalogue does not know.
func labelWithPrefix(lang, prefix, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return t(lang, "common_dash")
	}
	key := prefix + strings.ToLower(value)
	if label := t(lang, key); label != key {
		return label
	}
	return value
}
