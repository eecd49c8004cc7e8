// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

import (
	"github.com/zaf/g711"
)

// Carriers deliver call audio as 8 kHz µ-law; speech providers generally
// want 16-bit linear PCM. These helpers convert between the two.

// MuLawToPCM decodes µ-law samples into 16-bit little-endian linear PCM.
func MuLawToPCM(mulaw []byte) []byte {
	if len(mulaw) == 0 {
		return nil
	}
	return g711.DecodeUlaw(mulaw)
}

// PCMToMuLaw encodes 16-bit little-endian linear PCM into µ-law samples.
func PCMToMuLaw(pcm []byte) []byte {
	if len(pcm) == 0 {
		return nil
	}
	return g711.EncodeUlaw(pcm)
}
