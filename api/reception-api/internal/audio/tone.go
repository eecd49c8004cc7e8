// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

import (
	"encoding/binary"
	"math"
	"time"
)

const carrierSampleRate = 8000

// Tone renders a sine wave of the given frequency and duration as 8 kHz
// µ-law. Used to prerender the fallback asset played when synthesis dies
// mid-call, so the caller hears an audible cue instead of dead air.
func Tone(frequency float64, duration time.Duration) []byte {
	samples := int(carrierSampleRate * duration.Seconds())
	if samples <= 0 {
		return nil
	}
	pcm := make([]byte, 2*samples)
	for i := 0; i < samples; i++ {
		sample := int16(6000 * math.Sin(2*math.Pi*frequency*float64(i)/carrierSampleRate))
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(sample))
	}
	return PCMToMuLaw(pcm)
}
