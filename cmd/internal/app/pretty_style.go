package app

import (
	"log/slog"
	"strings"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

var (
	methodTones = map[string]string{
		"GET":    ansiGreen,
		"POST":   ansiYellow,
		"PUT":    ansiYellow,
		"PATCH":  ansiYellow,
		"DELETE": ansiRed,
	}
	resultTones = map[string]string{
		"success":      ansiGreen,
		"ok":           ansiGreen,
		"redirect":     ansiCyan,
		"client_error": ansiYellow,
		"server_error": ansiRed,
		"error":        ansiRed,
	}
	// Session statuses and channel states.
	lifecycleTones = map[string]string{
		"authenticated": ansiGreen,
		"connected":     ansiGreen,
		"hydrating":     ansiYellow,
		"refreshing":    ansiYellow,
		"connecting":    ansiYellow,
		"reconnecting":  ansiYellow,
		"expired":       ansiRed,
		"disabled":      ansiRed,
		"anonymous":     ansiDim,
		"disconnected":  ansiDim,
	}
	// Message namespaces; the first dotted segment selects the tone.
	eventTones = map[string]string{
		"session": ansiGreen,
		"channel": ansiCyan,
		"app":     ansiBlue,
	}
)

// paint wraps s in code when colour is on. An empty code leaves s as is.
func paint(s, code string, color bool) string {
	if !color || code == "" {
		return s
	}
	return code + s + ansiReset
}

func levelLabel(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return paint("ERROR", ansiRed, color)
	case level >= slog.LevelWarn:
		return paint("WARN ", ansiYellow, color)
	case level < slog.LevelInfo:
		return paint("DEBUG", ansiMagenta, color)
	default:
		return paint("INFO ", ansiBlue, color)
	}
}

func eventTone(msg string) string {
	ns, _, _ := strings.Cut(msg, ".")
	if tone, ok := eventTones[ns]; ok {
		return ansiBright + tone
	}
	return ansiBright
}

func statusTone(code int64) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func classTone(class string) string {
	switch class {
	case "5xx":
		return ansiRed
	case "4xx":
		return ansiYellow
	case "3xx":
		return ansiCyan
	case "2xx":
		return ansiGreen
	}
	return ""
}

func durationTone(ms int64) string {
	switch {
	case ms >= 1000:
		return ansiRed
	case ms >= 250:
		return ansiYellow
	default:
		return ansiDim
	}
}
