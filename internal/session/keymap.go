package session

import "github.com/jmorrison-juniper/misthelper/internal/constants"

// keyMap translates named keys into the bytes the device shell expects.
// Arrow keys carry their own frame marker ahead of the escape sequence.
var keyMap = map[string]string{
	"enter":     "\n",
	"space":     " ",
	"tab":       "\t",
	"up":        "\x00\x1b[A",
	"down":      "\x00\x1b[B",
	"left":      "\x00\x1b[D",
	"right":     "\x00\x1b[C",
	"backspace": "\x08",
}

// MapKey returns the bytes for key; unnamed keys pass through unchanged.
func MapKey(key string) string {
	if mapped, ok := keyMap[key]; ok {
		return mapped
	}
	return key
}

// Frame builds the binary frame sent for one keystroke.
func Frame(key string) []byte {
	return []byte(constants.ShellFramePrefix + MapKey(key))
}
