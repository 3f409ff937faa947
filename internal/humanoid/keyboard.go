// internal/humanoid/keyboard.go
package humanoid

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
)

// Control characters understood by the executor's key event translation.
const (
	KeyBackspace = "\b"
	KeyEnter     = "\r"
	KeyTab       = "\t"
)

// keyboardNeighbors maps characters to their adjacent keys on a QWERTY layout.
var keyboardNeighbors = map[rune]string{
	'1': "2q`", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9-op",
	'q': "wa1s", 'w': "qase23", 'e': "wsdr34", 'r': "edft45", 't': "rfgy56",
	'y': "tghu67", 'u': "yhji78", 'i': "ujko89", 'o': "iklp90", 'p': "ol;0-",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiol,m", 'l': "kop;.",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk,",
}

// commonNgrams contains letter combinations typed faster by muscle memory.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

// TypeText emits the text word by word with randomized inter-key delays and
// occasional corrected typos. The target must already hold focus; pressEnter
// finishes with an Enter keystroke.
func (h *Humanoid) TypeText(ctx context.Context, text string, pressEnter bool) error {
	h.updateFatigue(float64(len(text)) * 0.05)

	words := strings.Split(text, " ")
	for i, word := range words {
		runes := []rune(word)
		for j := 0; j < len(runes); j++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			advanced, err := h.typeCharacter(ctx, runes, j)
			if err != nil {
				return err
			}
			if advanced {
				j++ // Transposition already emitted the next character.
			}
		}

		if i < len(words)-1 {
			// Inter-word pause, then the space itself.
			nextLen := len(words[i+1])
			h.mu.Lock()
			pauseMs := 100 + float64(nextLen)*5 + h.rng.Float64()*80
			h.mu.Unlock()
			if err := h.CognitivePause(ctx, pauseMs, pauseMs*0.4); err != nil {
				return err
			}
			if err := h.sendString(ctx, " "); err != nil {
				return err
			}
		}
	}

	if pressEnter {
		if err := h.CognitivePause(ctx, 250, 90); err != nil {
			return err
		}
		return h.sendString(ctx, KeyEnter)
	}
	return nil
}

// typeCharacter emits one character, possibly detouring through a typo. It
// returns true when it consumed the following character as well.
func (h *Humanoid) typeCharacter(ctx context.Context, runes []rune, i int) (advanced bool, err error) {
	if err := h.keyPause(ctx, runes, i); err != nil {
		return false, err
	}

	h.mu.Lock()
	shouldTypo := h.rng.Float64() < h.cfg.TypoRate*(1.0+h.fatigueLevel*2.0)
	h.mu.Unlock()

	if shouldTypo {
		introduced, advanced, err := h.introduceTypo(ctx, runes, i)
		if err != nil {
			return false, err
		}
		if introduced {
			return advanced, nil
		}
	}

	return false, h.sendString(ctx, string(runes[i]))
}

func (h *Humanoid) sendString(ctx context.Context, keys string) error {
	if err := h.executor.SendKeys(ctx, schemas.KeyEventData{Key: keys}); err != nil {
		return err
	}
	// Key dwell time.
	h.mu.Lock()
	hold := 35.0 + h.rng.NormFloat64()*15.0
	h.mu.Unlock()
	if hold < 20.0 {
		hold = 20.0
	}
	return h.executor.Sleep(ctx, time.Duration(hold)*time.Millisecond)
}

// keyPause sleeps the inter-key delay, shortened for familiar n-grams and
// lengthened by fatigue.
func (h *Humanoid) keyPause(ctx context.Context, runes []rune, index int) error {
	h.mu.Lock()
	mean := h.cfg.KeyPauseMeanMs
	stdDev := h.cfg.KeyPauseStdDevMs
	randNorm := h.rng.NormFloat64()
	fatigue := h.fatigueLevel
	h.mu.Unlock()

	ngramFactor := 1.0
	if runes != nil && index > 1 {
		trigraph := strings.ToLower(string(runes[index-2 : index+1]))
		if commonNgrams[trigraph] {
			ngramFactor = 0.55
		} else if commonNgrams[strings.ToLower(string(runes[index-1:index+1]))] {
			ngramFactor = 0.7
		}
	}

	mean *= ngramFactor * (1.0 + fatigue*0.3)
	delay := math.Max(mean*0.5, randNorm*stdDev+mean)
	d := time.Duration(delay) * time.Millisecond
	h.recoverFatigue(d)
	return h.executor.Sleep(ctx, d)
}

// introduceTypo emits a wrong character and corrects it with backspace, or
// transposes two adjacent characters. Roughly follows observed typist error
// class frequencies: neighbor hits dominate, then transpositions.
func (h *Humanoid) introduceTypo(ctx context.Context, runes []rune, i int) (introduced, advanced bool, err error) {
	char := runes[i]

	h.mu.Lock()
	p := h.rng.Float64()
	h.mu.Unlock()

	if p < 0.6 {
		return h.neighborTypo(ctx, char)
	}
	if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) && !unicode.IsSpace(char) {
		return h.transposeTypo(ctx, char, runes[i+1])
	}
	return false, false, nil
}

func (h *Humanoid) neighborTypo(ctx context.Context, char rune) (bool, bool, error) {
	neighbors, ok := keyboardNeighbors[unicode.ToLower(char)]
	if !ok || len(neighbors) == 0 {
		return false, false, nil
	}

	h.mu.Lock()
	typoChar := rune(neighbors[h.rng.Intn(len(neighbors))])
	h.mu.Unlock()
	if unicode.IsUpper(char) {
		typoChar = unicode.ToUpper(typoChar)
	}

	if err := h.sendString(ctx, string(typoChar)); err != nil {
		return true, false, err
	}
	// Noticing the error takes longer than a normal keystroke.
	if err := h.CognitivePause(ctx, 180, 60); err != nil {
		return true, false, err
	}
	if err := h.sendString(ctx, KeyBackspace); err != nil {
		return true, false, err
	}
	if err := h.keyPause(ctx, nil, 0); err != nil {
		return true, false, err
	}
	return true, false, h.sendString(ctx, string(char))
}

func (h *Humanoid) transposeTypo(ctx context.Context, char, next rune) (bool, bool, error) {
	if err := h.sendString(ctx, string(next)); err != nil {
		return true, true, err
	}
	if err := h.sendString(ctx, string(char)); err != nil {
		return true, true, err
	}
	if err := h.CognitivePause(ctx, 200, 70); err != nil {
		return true, true, err
	}
	for k := 0; k < 2; k++ {
		if err := h.sendString(ctx, KeyBackspace); err != nil {
			return true, true, err
		}
	}
	if err := h.sendString(ctx, string(char)); err != nil {
		return true, true, err
	}
	return true, true, h.sendString(ctx, string(next))
}
