package caption

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/menta2k/circle-snip/pkg/types"
)

type fakeVision struct {
	caption     *types.Caption
	describeErr error
	simple      string
	simpleCalls int
}

func (f *fakeVision) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	f.simpleCalls++
	return f.simple, nil
}

func (f *fakeVision) DescribeImage(ctx context.Context, model, prompt, imgB64 string) (*types.Caption, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	c := *f.caption
	return &c, nil
}

func TestDescribe(t *testing.T) {
	fake := &fakeVision{caption: &types.Caption{Alt: `  "A green checkmark icon."  `, Tags: []string{"Icon", "icon", "green!"}}}
	c := NewCaptioner(fake, "llava")

	got, err := c.Describe(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if got.Alt != "A green checkmark icon." {
		t.Errorf("unexpected alt %q", got.Alt)
	}
	if strings.Join(got.Tags, ",") != "icon,green" {
		t.Errorf("unexpected tags %v", got.Tags)
	}
	if got.Model != "llava" {
		t.Errorf("Expected model to be recorded, got %q", got.Model)
	}
	if fake.simpleCalls != 0 {
		t.Error("plain-text fallback should not run when alt text is present")
	}
}

func TestDescribeFallsBackToPlainText(t *testing.T) {
	fake := &fakeVision{caption: &types.Caption{}, simple: "```\nAlt text: A login form.\n```"}
	got, err := NewCaptioner(fake, "m").Describe(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if got.Alt != "A login form." {
		t.Errorf("unexpected alt %q", got.Alt)
	}
	if fake.simpleCalls != 1 {
		t.Errorf("Expected one fallback query, got %d", fake.simpleCalls)
	}
}

func TestDescribeErrors(t *testing.T) {
	if _, err := NewCaptioner(&fakeVision{}, "m").Describe(context.Background(), nil); err == nil {
		t.Error("Expected error for empty image")
	}

	boom := errors.New("connection refused")
	_, err := NewCaptioner(&fakeVision{describeErr: boom}, "m").Describe(context.Background(), []byte("png"))
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped backend error, got %v", err)
	}

	_, err = NewCaptioner(&fakeVision{caption: &types.Caption{}, simple: "  "}, "m").Describe(context.Background(), []byte("png"))
	if err == nil {
		t.Error("Expected error when the model returns no text")
	}
}

func TestSanitizeAltTruncates(t *testing.T) {
	long := strings.Repeat("word ", 80)
	got := SanitizeAlt(long)
	if utf8.RuneCountInString(got) > MaxAltLength {
		t.Errorf("alt text too long: %d runes", utf8.RuneCountInString(got))
	}
	if strings.HasSuffix(got, " ") || strings.HasSuffix(got, "wor") {
		t.Errorf("Expected truncation on a word boundary, got %q", got[len(got)-10:])
	}
}

func TestNormalizeTagsLimit(t *testing.T) {
	got := NormalizeTags([]string{"a", "b", "c", "d", "e", "f", "g"})
	if len(got) != MaxTags {
		t.Errorf("Expected %d tags, got %d", MaxTags, len(got))
	}
}
