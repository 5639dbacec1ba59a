package accessibility_test

import (
	"reflect"
	"testing"

	"github.com/p-n-ai/pai-lesson/internal/accessibility"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		tags  []accessibility.Mode
		prefs *accessibility.Preferences
		want  []accessibility.Mode
	}{
		{"nil inputs", nil, nil, []accessibility.Mode{}},
		{"lesson only", []accessibility.Mode{accessibility.ModeADHD}, nil, []accessibility.Mode{accessibility.ModeADHD}},
		{"preference only", nil, &accessibility.Preferences{AutismMode: true}, []accessibility.Mode{accessibility.ModeAutism}},
		{
			"union",
			[]accessibility.Mode{accessibility.ModeAPD},
			&accessibility.Preferences{DyslexiaMode: true},
			[]accessibility.Mode{accessibility.ModeAPD, accessibility.ModeDyslexia},
		},
		{
			"dyslexic font implies dyslexia",
			nil,
			&accessibility.Preferences{FontFamily: "opendyslexic"},
			[]accessibility.Mode{accessibility.ModeDyslexia},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := accessibility.Resolve(tt.tags, tt.prefs).List()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve().List() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_LessonTagBeatsPreferenceOff(t *testing.T) {
	prefs := &accessibility.Preferences{ADHDMode: false}

	modes := accessibility.Resolve([]accessibility.Mode{accessibility.ModeADHD}, prefs)

	if !modes.Has(accessibility.ModeADHD) {
		t.Fatal("ADHD should be active when the lesson declares it")
	}
	if !modes.Forced(accessibility.ModeADHD) {
		t.Error("ADHD should be reported as forced by the lesson")
	}
}

func TestResolve_PreferenceNotForced(t *testing.T) {
	prefs := &accessibility.Preferences{ADHDMode: true}

	modes := accessibility.Resolve([]accessibility.Mode{accessibility.ModeADHD}, prefs)

	if modes.Forced(accessibility.ModeADHD) {
		t.Error("ADHD declared by the learner should not count as forced")
	}
	if _, ok := accessibility.NoticeFor(modes); ok {
		t.Error("NoticeFor() should not surface a notice for learner-chosen modes")
	}
}

func TestNoticeFor_Priority(t *testing.T) {
	modes := accessibility.Resolve([]accessibility.Mode{
		accessibility.ModeAutism,
		accessibility.ModeDyslexia,
		accessibility.ModeADHD,
	}, nil)

	n, ok := accessibility.NoticeFor(modes)
	if !ok {
		t.Fatal("NoticeFor() found no notice")
	}
	if n.Mode != accessibility.ModeADHD {
		t.Errorf("Notice.Mode = %q, want ADHD", n.Mode)
	}
	if n.Title != "ADHD Focus Mode Active" {
		t.Errorf("Notice.Title = %q", n.Title)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    accessibility.Mode
		wantErr bool
	}{
		{"ADHD", accessibility.ModeADHD, false},
		{"dyslexia", accessibility.ModeDyslexia, false},
		{" apd ", accessibility.ModeAPD, false},
		{"Autism", accessibility.ModeAutism, false},
		{"vision", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := accessibility.ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode() = %q, want %q", got, tt.want)
			}
		})
	}
}
