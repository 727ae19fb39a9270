// Package translation detects a guest's language and translates queries and
// answers around the English-only answer sources.
package translation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/cache"
	"github.com/resortgenius/concierge-engine/pkg/llm"
)

// English is the language answer sources work in.
const English = "en"

// Language is a supported language.
type Language struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

var supported = []Language{
	{"en", "English", "English"},
	{"zh", "Chinese", "中文 (Chinese)"},
	{"ms", "Malay", "Bahasa Melayu (Malay)"},
	{"ja", "Japanese", "日本語 (Japanese)"},
	{"ko", "Korean", "한국어 (Korean)"},
	{"th", "Thai", "ไทย (Thai)"},
	{"vi", "Vietnamese", "Tiếng Việt (Vietnamese)"},
	{"id", "Indonesian", "Bahasa Indonesia"},
	{"ar", "Arabic", "العربية (Arabic)"},
	{"hi", "Hindi", "हिन्दी (Hindi)"},
	{"fr", "French", "Français (French)"},
	{"de", "German", "Deutsch (German)"},
	{"es", "Spanish", "Español (Spanish)"},
	{"ru", "Russian", "Русский (Russian)"},
}

var byCode = func() map[string]Language {
	m := make(map[string]Language, len(supported))
	for _, l := range supported {
		m[l.Code] = l
	}
	return m
}()

// SupportedLanguages returns the supported languages in display order.
func SupportedLanguages() []Language {
	return append([]Language(nil), supported...)
}

// IsSupported reports whether code is a supported ISO 639-1 code.
func IsSupported(code string) bool {
	_, ok := byCode[code]
	return ok
}

// Translator detects and translates text.
type Translator interface {
	// DetectLanguage returns a supported ISO 639-1 code, "en" when unsure.
	DetectLanguage(ctx context.Context, text string) (string, error)
	// Translate returns text in target. Equal languages are a no-op.
	Translate(ctx context.Context, text, source, target string) (string, error)
}

const (
	detectSampleRunes = 500
	translationTTL    = 24 * time.Hour
)

var detectSystemPrompt = `You are a language detection system.
Analyze the text and respond with ONLY the ISO 639-1 language code (2 letters).
Supported codes: ` + codeList() + `.
If uncertain, respond with 'en'.`

func codeList() string {
	codes := make([]string, len(supported))
	for i, l := range supported {
		codes[i] = l.Code
	}
	return strings.Join(codes, ", ")
}

// LLMTranslator implements Translator with a chat model and a bounded
// in-memory cache of finished translations.
type LLMTranslator struct {
	llm    llm.LLMClient
	cache  *cache.Memory
	logger *zap.Logger
}

var _ Translator = (*LLMTranslator)(nil)

// NewLLMTranslator creates a translator caching up to cacheSize translations.
func NewLLMTranslator(client llm.LLMClient, cacheSize int, logger *zap.Logger) *LLMTranslator {
	return &LLMTranslator{
		llm:    client,
		cache:  cache.NewMemory(cacheSize),
		logger: logger.Named("translation"),
	}
}

// DetectLanguage implements Translator. Text under three characters is
// assumed English.
func (t *LLMTranslator) DetectLanguage(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < 3 {
		return English, nil
	}

	result, err := t.llm.GenerateResponse(ctx, llm.Request{
		System:      detectSystemPrompt,
		Prompt:      "Detect the language of this text:\n\n" + truncateRunes(text, detectSampleRunes),
		Temperature: 0,
		MaxTokens:   5,
		Fast:        true,
	})
	if err != nil {
		return English, fmt.Errorf("detect language: %w", err)
	}
	return normalizeCode(result.Content), nil
}

// normalizeCode maps a model reply onto a supported code.
func normalizeCode(reply string) string {
	code := strings.ToLower(strings.Trim(strings.TrimSpace(reply), ".'\"`"))
	switch {
	case IsSupported(code):
		return code
	case strings.HasPrefix(code, "zh"):
		return "zh"
	case code == "my" || code == "mal":
		return "ms"
	default:
		return English
	}
}

// Translate implements Translator.
func (t *LLMTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" || source == target {
		return text, nil
	}

	key := cacheKey(text, source, target)
	if cached, ok := t.cache.Lookup(key); ok {
		return string(cached), nil
	}

	result, err := t.llm.GenerateResponse(ctx, llm.Request{
		System:      translateSystemPrompt(languageName(source), languageName(target)),
		Prompt:      text,
		Temperature: 0.3,
		MaxTokens:   2000,
		Fast:        true,
	})
	if err != nil {
		return text, fmt.Errorf("translate %s->%s: %w", source, target, err)
	}

	t.cache.Store(key, []byte(result.Content), translationTTL)
	return result.Content, nil
}

func translateSystemPrompt(sourceName, targetName string) string {
	return fmt.Sprintf(`You are a professional translator specializing in hospitality and tourism.
Translate the following text from %s to %s.
Maintain the original formatting, including markdown if present.
Keep proper nouns, brand names, and technical terms as-is when appropriate.
Provide only the translation, no explanations.`, sourceName, targetName)
}

func languageName(code string) string {
	if l, ok := byCode[code]; ok {
		return l.Name
	}
	return "English"
}

func cacheKey(text, source, target string) string {
	sum := sha256.Sum256([]byte(source + ":" + target + ":" + text))
	return hex.EncodeToString(sum[:])
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
