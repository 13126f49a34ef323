package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	colorRed         = 31
	colorGreen       = 32
	colorYellow      = 33
	colorBlue        = 36
	colorGray        = 37
	colorLightGreen  = 92
	colorLightYellow = 93
	colorCyan        = 96
)

// NbFormatter prints entries as colored key=value pairs, fields sorted by
// key. NoColor drops the escape sequences for plain log files.
type NbFormatter struct {
	NoColor bool
}

func (f *NbFormatter) paint(color int, s string) string {
	if f.NoColor {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", color, s)
}

func (f *NbFormatter) pair(key string, valueColor int, value string) string {
	return f.paint(colorCyan, key) + "=" + f.paint(valueColor, value)
}

func levelColor(level log.Level) int {
	switch level {
	case log.DebugLevel, log.TraceLevel:
		return colorGray
	case log.WarnLevel:
		return colorYellow
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		return colorRed
	default:
		return colorBlue
	}
}

func (f *NbFormatter) Format(entry *log.Entry) ([]byte, error) {
	parts := []string{
		f.pair("level", levelColor(entry.Level), strings.ToUpper(entry.Level.String())[:4]),
		f.pair("ts", colorLightYellow, entry.Time.Format("2006-01-02 15:04:05.000")),
	}
	if entry.HasCaller() {
		parts = append(parts, f.pair("source", colorLightYellow, fmt.Sprintf("%s:%d", entry.Caller.File, entry.Caller.Line)))
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val := entry.Data[k]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		m, err := json.Marshal(val)
		if err != nil || len(m) == 0 {
			continue
		}
		s := string(m)
		valueColor := colorCyan
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			valueColor = colorGreen
		} else if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
			valueColor = colorLightYellow
		}
		parts = append(parts, f.pair(k, valueColor, s))
	}
	parts = append(parts, f.pair("msg", colorLightGreen, strconv.Quote(entry.Message)))

	output := strings.Join(parts, " ")
	output = strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(output) + "\n"
	return []byte(output), nil
}
