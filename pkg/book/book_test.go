package book

import (
	"bytes"
	"testing"
)

func sample() *Book {
	return &Book{
		Title:    "Test Book",
		Language: "en",
		Chapters: []Chapter{
			{ID: "ch1", Title: "One", Visible: true, Blocks: []Block{
				NewHeadingBlock(Run{Text: "One"}),
				NewTextBlock(Run{Text: "Hello "}, Run{Text: "world", Bold: true}),
			}},
			{ID: "ch2", Title: "Two", Visible: false, Blocks: []Block{
				NewImageBlock("fig.png", []byte{1, 2, 3}, 100, 50),
			}},
			{ID: "ch3", Title: "Three", Visible: true},
		},
	}
}

func TestValidate(t *testing.T) {
	b := sample()
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	dup := sample()
	dup.Chapters[1].ID = "ch1"
	if err := dup.Validate(); err == nil {
		t.Error("expected error for duplicate chapter id")
	}

	bad := sample()
	bad.Chapters[0].Blocks[0].Text = nil
	if err := bad.Validate(); err == nil {
		t.Error("expected error for malformed text block")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	b := sample()
	data, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Title != b.Title || len(got.Chapters) != len(b.Chapters) {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !bytes.Equal(got.Chapters[1].Blocks[0].Image.Data, []byte{1, 2, 3}) {
		t.Error("image bytes lost in round trip")
	}
}

func TestFingerprintTracksVisibility(t *testing.T) {
	b := sample()
	fp1 := b.Fingerprint()
	if fp1 == "" {
		t.Fatal("empty fingerprint")
	}
	if fp2 := sample().Fingerprint(); fp2 != fp1 {
		t.Error("fingerprint not deterministic")
	}

	b.SetVisibility("ch2", true)
	if b.Fingerprint() == fp1 {
		t.Error("fingerprint should change with visibility")
	}
	b.SetVisibility("ch2", false)
	if b.Fingerprint() != fp1 {
		t.Error("fingerprint should be restored after toggling back")
	}
}

func TestVisibleChapters(t *testing.T) {
	b := sample()
	got := b.VisibleChapters()
	want := []int{0, 2}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("VisibleChapters = %v, want %v", got, want)
	}
}

func TestSetVisibilityUnknownChapter(t *testing.T) {
	b := sample()
	if b.SetVisibility("nope", true) {
		t.Error("SetVisibility should report false for unknown chapter")
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := sample()
	c := b.Clone()
	c.Chapters[0].Blocks[1].Text.Runs[0].Text = "changed"
	if b.Chapters[0].Blocks[1].Text.Runs[0].Text != "Hello " {
		t.Error("Clone shares run storage with original")
	}
}
