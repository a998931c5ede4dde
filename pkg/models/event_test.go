package models

import "testing"

func TestNormalizedTitle(t *testing.T) {
	ev := NotificationEvent{Title: "  ", BigTitle: "Expanded"}
	if got := ev.NormalizedTitle(); got != "Expanded" {
		t.Fatalf("expected Expanded, got %q", got)
	}
	ev = NotificationEvent{Title: "Short", BigTitle: "Expanded"}
	if got := ev.NormalizedTitle(); got != "Short" {
		t.Fatalf("expected Short, got %q", got)
	}
}

func TestNormalizedBodyPriorityOrder(t *testing.T) {
	ev := NotificationEvent{
		Text:      "short",
		BigText:   "big",
		SubText:   "sub",
		TextLines: []string{"one", "two"},
	}
	if got := ev.NormalizedBody(); got != "big" {
		t.Fatalf("expected big, got %q", got)
	}

	ev.BigText = ""
	if got := ev.NormalizedBody(); got != "one\ntwo" {
		t.Fatalf("expected joined lines, got %q", got)
	}

	ev.TextLines = nil
	if got := ev.NormalizedBody(); got != "short" {
		t.Fatalf("expected short, got %q", got)
	}

	ev.Text = " "
	if got := ev.NormalizedBody(); got != "sub" {
		t.Fatalf("expected sub, got %q", got)
	}
}

func TestNormalizedBodySkipsBlankLines(t *testing.T) {
	ev := NotificationEvent{TextLines: []string{" one ", "", "\t", "two"}}
	if got := ev.NormalizedBody(); got != "one\ntwo" {
		t.Fatalf("got %q", got)
	}
}

func TestBucketKey(t *testing.T) {
	if got := BucketKey("com.whatsapp", CategoryFriendsFamily); got != "app:com.whatsapp:friends_family" {
		t.Fatalf("got %q", got)
	}
}

func TestCategoryValid(t *testing.T) {
	if !CategoryNews.Valid() {
		t.Fatal("news should be valid")
	}
	if Category("nope").Valid() {
		t.Fatal("unknown category should be invalid")
	}
}
