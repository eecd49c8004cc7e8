// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_normalizers

import (
	"regexp"
	"strconv"
	"strings"

	ntw "moul.io/number-to-words"

	"github.com/rapidaai/reception/pkg/commons"
)

// Normalizer rewrites an utterance into a form synthesis providers
// pronounce well. Normalizers are pure text transforms, applied in order
// before the utterance reaches the synthesis adapter.
type Normalizer interface {
	Normalize(text string) string
}

// ForSpeech returns the normalizer pipeline applied to every synthesized
// utterance. Phone numbers must run before plain numbers so digit runs are
// read digit by digit, not as integers.
func ForSpeech(logger commons.Logger) []Normalizer {
	return []Normalizer{
		NewPhoneNumberNormalizer(logger),
		NewNumberToWordNormalizer(logger),
	}
}

// Apply runs text through the pipeline in order.
func Apply(normalizers []Normalizer, text string) string {
	for _, n := range normalizers {
		text = n.Normalize(text)
	}
	return text
}

// ============================================================================
// Phone number normalizer
// ============================================================================

// phonePattern matches telephone-shaped digit runs: seven-plus digits with
// optional separators, e.g. "555-123-4567" or "+1 555 123 4567".
var phonePattern = regexp.MustCompile(`\+?\d[\d().\s-]{5,}\d`)

type phoneNumberNormalizer struct {
	logger commons.Logger
}

// NewPhoneNumberNormalizer expands phone-shaped digit runs digit by digit,
// with a pause at each separator, the way a person reads a number aloud.
func NewPhoneNumberNormalizer(logger commons.Logger) Normalizer {
	return &phoneNumberNormalizer{logger: logger}
}

func (n *phoneNumberNormalizer) Normalize(text string) string {
	if text == "" {
		return text
	}
	return phonePattern.ReplaceAllStringFunc(text, func(match string) string {
		var words []string
		pause := false
		for _, r := range match {
			switch {
			case r >= '0' && r <= '9':
				if pause && len(words) > 0 {
					words[len(words)-1] += ","
				}
				words = append(words, ntw.IntegerToEnUs(int(r-'0')))
				pause = false
			case r == '+':
				words = append(words, "plus")
			default:
				pause = true
			}
		}
		return strings.Join(words, " ")
	})
}

// ============================================================================
// Number-to-word normalizer
// ============================================================================

// numberPattern matches standalone integers up to six digits. Larger runs
// are left alone; digit-by-digit reading for those is the phone
// normalizer's job.
var numberPattern = regexp.MustCompile(`\b\d{1,6}\b`)

type numberToWordNormalizer struct {
	logger commons.Logger
}

// NewNumberToWordNormalizer spells standalone integers out in words.
func NewNumberToWordNormalizer(logger commons.Logger) Normalizer {
	return &numberToWordNormalizer{logger: logger}
}

func (n *numberToWordNormalizer) Normalize(text string) string {
	if text == "" {
		return text
	}
	return numberPattern.ReplaceAllStringFunc(text, func(match string) string {
		value, err := strconv.Atoi(match)
		if err != nil {
			return match
		}
		return ntw.IntegerToEnUs(value)
	})
}
