package audio

import (
	"github.com/chewxy/math32"
)

// AdjustChannels converts interleaved audio frames between mono and
// stereo. Other conversions return the frames unmodified.
func AdjustChannels(iChs, oChs int, audioFrames []float32) []float32 {
	// mono -> stereo
	if iChs == 1 && oChs == 2 {
		res := make([]float32, 0, len(audioFrames)*2)
		// left channel = right channel
		for _, frame := range audioFrames {
			res = append(res, frame)
			res = append(res, frame)
		}
		return res
	}

	// stereo -> mono
	if iChs == 2 && oChs == 1 {
		res := make([]float32, 0, len(audioFrames)/2)
		// chop off the right channel
		for i := 0; i < len(audioFrames); i += 2 {
			res = append(res, audioFrames[i])
		}
		return res
	}

	return audioFrames
}

// AdjustVolume scales the audio frames in place.
func AdjustVolume(volume float32, audioFrames []float32) {
	for i := 0; i < len(audioFrames); i++ {
		audioFrames[i] *= volume
	}
}

// Level returns the root mean square over all samples of an
// interlaced audio buffer. An empty buffer has level 0.
func Level(data []float32) float32 {

	if len(data) == 0 {
		return 0
	}

	var sum float32
	for _, el := range data {
		sum = sum + el*el
	}

	sum = sum / float32(len(data))

	return math32.Sqrt(sum)
}
