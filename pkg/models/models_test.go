package models

import (
	"errors"
	"testing"
)

func TestParseEnrichment(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"valid", `{"overall_sentiment":"Negative","academics_score":1,"cost_score":5,"social_score":2,"accommodation_score":3,"theme_summary":" Cheap but dull. "}`, true},
		{"score zero", `{"overall_sentiment":"Neutral","academics_score":0,"cost_score":5,"social_score":2,"accommodation_score":3,"theme_summary":"x"}`, false},
		{"score six", `{"overall_sentiment":"Neutral","academics_score":6,"cost_score":5,"social_score":2,"accommodation_score":3,"theme_summary":"x"}`, false},
		{"quoted score", `{"overall_sentiment":"Neutral","academics_score":"4","cost_score":5,"social_score":2,"accommodation_score":3,"theme_summary":"x"}`, false},
		{"fractional", `{"overall_sentiment":"Neutral","academics_score":4.0,"cost_score":5,"social_score":2,"accommodation_score":3,"theme_summary":"x"}`, false},
		{"null score", `{"overall_sentiment":"Neutral","academics_score":null,"cost_score":5,"social_score":2,"accommodation_score":3,"theme_summary":"x"}`, false},
		{"missing summary", `{"overall_sentiment":"Neutral","academics_score":4,"cost_score":5,"social_score":2,"accommodation_score":3}`, false},
		{"blank summary", `{"overall_sentiment":"Neutral","academics_score":4,"cost_score":5,"social_score":2,"accommodation_score":3,"theme_summary":"  "}`, false},
		{"lowercase sentiment", `{"overall_sentiment":"positive","academics_score":4,"cost_score":5,"social_score":2,"accommodation_score":3,"theme_summary":"x"}`, false},
		{"truncated", `{"overall_sentiment":"Neutral",`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ParseEnrichment([]byte(tc.raw))
			if tc.ok {
				if err != nil {
					t.Fatalf("ParseEnrichment() error = %v", err)
				}
				if res.Sentiment != SentimentNegative || res.Scores.Cost != 5 || res.Summary != "Cheap but dull." {
					t.Fatalf("ParseEnrichment() = %+v", res)
				}
				return
			}
			if !errors.Is(err, ErrScoringFailed) {
				t.Fatalf("ParseEnrichment() error = %v, want ErrScoringFailed", err)
			}
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want Language
	}{
		{in: "Great academics, costly rent.", want: LanguageEnglish},
		{in: "السكن ممتاز", want: LanguageArabic},
		{in: "Nice campus, السكن غالي", want: LanguageArabic},
		{in: "", want: LanguageEnglish},
		{in: "Très bien", want: LanguageEnglish},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.in); got != tt.want {
			t.Fatalf("DetectLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAspectScoresValidate(t *testing.T) {
	if err := (AspectScores{Academics: 1, Cost: 5, Social: 3, Accommodation: 2}).Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := (AspectScores{Academics: 1, Cost: 5, Social: 3}).Validate(); err == nil {
		t.Fatalf("Validate() accepted a zero score")
	}
}

func TestEnumValidity(t *testing.T) {
	if !SourceScraped.Valid() || SourceKind("rss").Valid() {
		t.Fatalf("SourceKind.Valid misbehaves")
	}
	if !StatusRejected.Valid() || ModerationStatus("deleted").Valid() {
		t.Fatalf("ModerationStatus.Valid misbehaves")
	}
}
