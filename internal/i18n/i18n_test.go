package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "TestClosed")
	if got != "This test is no longer accepting submissions." {
		t.Errorf("T(TestClosed) = %q", got)
	}

	got = T(ctx, "AuthFailed")
	if got != "Invalid email or password." {
		t.Errorf("T(AuthFailed) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "TestClosed")
	if got != "Этот тест больше не принимает ответы." {
		t.Errorf("T(TestClosed) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "AlreadyAttempted", map[string]any{"TestID": "quiz-7"})
	want := "Our records show you have already submitted test quiz-7. Only one attempt is allowed."
	if got != want {
		t.Errorf("Td(AlreadyAttempted) = %q, want %q", got, want)
	}
}

func TestMissingTranslationFallsBackToID(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NoSuchMessage")
	if got != "NoSuchMessage" {
		t.Errorf("missing message should return the ID, got %q", got)
	}
}

func TestFallbackToDefaultLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// An unsupported language falls back to the bundle default.
	loc := NewLocalizer("fr")
	ctx := WithLocalizer(context.Background(), loc)

	got := T(ctx, "SubmittedOK")
	if got != "Your responses have been recorded. You may close this window." {
		t.Errorf("fallback translation = %q", got)
	}
}
