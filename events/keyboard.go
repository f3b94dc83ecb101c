package events

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cskr/pubsub"
)

// CaptureKeyboard reads single line commands from r until EOF:
//
//	m   mute the sink
//	u   unmute the sink
//	q   quit
func CaptureKeyboard(evPS *pubsub.PubSub, r io.Reader) {

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		switch scanner.Text() {
		case "m":
			evPS.Pub(float32(0), SetVolume)
		case "u":
			evPS.Pub(float32(1), SetVolume)
		case "q":
			evPS.Pub(true, OsExit)
		default:
			fmt.Println("keyboard input:", scanner.Text())
		}
	}
}
