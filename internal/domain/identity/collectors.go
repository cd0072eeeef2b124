package identity

import (
	"strconv"
	"strings"

	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
)

// Collector is one best-effort signal source. Collect returns ok=false
// when the client could not provide the signal; the generator carries on
// with whatever succeeded.
type Collector interface {
	Name() string
	Collect(s model.Signals) (string, bool)
}

// navigatorCollector covers navigator-like metadata: platform, language,
// timezone and screen geometry. It succeeds when at least two of those
// are present, so a single spoofed field cannot carry the digest alone.
type navigatorCollector struct{}

func (navigatorCollector) Name() string { return "nav" }

func (navigatorCollector) Collect(s model.Signals) (string, bool) {
	var parts []string
	if v := strings.TrimSpace(s.Platform); v != "" {
		parts = append(parts, "platform:"+v)
	}
	if v := strings.TrimSpace(s.Language); v != "" {
		parts = append(parts, "lang:"+v)
	}
	if v := strings.TrimSpace(s.Timezone); v != "" {
		parts = append(parts, "tz:"+v)
	}
	if s.ScreenWidth > 0 && s.ScreenHeight > 0 {
		geo := strconv.Itoa(s.ScreenWidth) + "x" + strconv.Itoa(s.ScreenHeight)
		if s.ColorDepth > 0 {
			geo += "x" + strconv.Itoa(s.ColorDepth)
		}
		parts = append(parts, "screen:"+geo)
	}
	if len(parts) < 2 {
		return "", false
	}
	return strings.Join(parts, ";"), true
}

// canvasCollector carries the client's offscreen 2D draw output digest.
type canvasCollector struct{}

func (canvasCollector) Name() string { return "canvas" }

func (canvasCollector) Collect(s model.Signals) (string, bool) {
	v := strings.TrimSpace(s.CanvasDigest)
	return v, v != ""
}

// audioCollector carries the client's audio-pipeline frequency digest.
type audioCollector struct{}

func (audioCollector) Name() string { return "audio" }

func (audioCollector) Collect(s model.Signals) (string, bool) {
	v := strings.TrimSpace(s.AudioDigest)
	return v, v != ""
}
