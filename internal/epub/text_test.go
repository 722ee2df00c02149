package epub

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses blank runs", "one\n\n\n\n\ntwo", "one\n\ntwo"},
		{"rejoins split capital", "T\nhe night was long.", "The night was long."},
		{"keeps single capital words", "I\n\nwent home.", "I\n\nwent home."},
		{"crlf", "a\r\nb", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeText(tt.in); got != tt.want {
				t.Errorf("normalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLooksLikeTOC(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"chapter list", "Chapter 1\nChapter 2\nChapter 3\nChapter 4\nEpilogue", true},
		{"numbered list", "1. Arrival\n2. Departure\n3. Return\n4. Home\nNotes", true},
		{"too few lines", "Chapter 1\nChapter 2", false},
		{"prose", "It was late.\nShe walked.\nThe rain fell.\nNobody spoke.\nChapter 9 was next.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeTOC(tt.text); got != tt.want {
				t.Errorf("looksLikeTOC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStripLeadingTitle(t *testing.T) {
	tests := []struct {
		text, title, want string
	}{
		{"Chapter One\n\nIt began.", "Chapter One", "It began."},
		{"CHAPTER ONE It began.", "Chapter One", "It began."},
		{"Chapter Oneself was lost.", "Chapter One", "Chapter Oneself was lost."},
		{"It began.", "Chapter One", "It began."},
	}
	for _, tt := range tests {
		if got := stripLeadingTitle(tt.text, tt.title); got != tt.want {
			t.Errorf("stripLeadingTitle(%q, %q) = %q, want %q", tt.text, tt.title, got, tt.want)
		}
	}
}

func TestExclusionReason(t *testing.T) {
	long := "word "
	for i := 0; i < 6; i++ {
		long += long
	}
	tests := []struct {
		title, text string
		want        string
	}{
		{"Acknowledgments", long, ReasonFrontMatter},
		{"About the Author", long, ReasonFrontMatter},
		{"Title", "Printed in the United States of America. " + long, ReasonSignature},
		{"Chapter 3", long, ""},
		{"Chapter 4", "tiny", ReasonTooShort},
	}
	for _, tt := range tests {
		if got := exclusionReason(tt.title, tt.text, WordCount(tt.text), DefaultMinChapterWords); got != tt.want {
			t.Errorf("exclusionReason(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}
