package audio

import "testing"

func TestConcatList(t *testing.T) {
	got := concatList([]string{"/work/chapter_001.m4a", "/work/it's/chapter_002.m4a"})
	want := "file '/work/chapter_001.m4a'\nfile '/work/it'\\''s/chapter_002.m4a'\n"
	if got != want {
		t.Errorf("concatList() = %q, want %q", got, want)
	}
}

func TestNewFFmpegDefaults(t *testing.T) {
	f := NewFFmpeg("", "/opt/bin/ffprobe", nil)
	if f.FFmpegPath != "ffmpeg" || f.FFprobePath != "/opt/bin/ffprobe" || f.Logger == nil {
		t.Errorf("unexpected toolchain: %+v", f)
	}
}
