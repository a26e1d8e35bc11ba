package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func strPtr(s string) *string { return &s }

func TestResolveField(t *testing.T) {
	t.Parallel()

	readErr := errors.New("detached node")
	parent := &fakeNode{
		children: map[string]*fakeNode{
			".img":    {attrs: map[string]string{"alt": "Organic Rice, 2kg"}},
			".price":  {text: "  4.99\n"},
			".broken": {textErr: readErr},
			".blank":  {text: "   "},
		},
		queryErr: map[string]error{".boom": readErr},
	}

	tests := []struct {
		name    string
		spec    FieldSpec
		want    *string
		wantErr bool
	}{
		{name: "attribute", spec: FieldSpec{Selector: ".img", Attribute: "alt"}, want: strPtr("Organic Rice, 2kg")},
		{name: "missing attribute", spec: FieldSpec{Selector: ".img", Attribute: "src"}},
		{name: "trimmed text", spec: FieldSpec{Selector: ".price"}, want: strPtr("4.99")},
		{name: "whitespace only text", spec: FieldSpec{Selector: ".blank"}, want: strPtr("")},
		{name: "absent node", spec: FieldSpec{Selector: ".weight"}},
		{name: "empty selector", spec: FieldSpec{}},
		{name: "text read failure", spec: FieldSpec{Selector: ".broken"}, wantErr: true},
		{name: "query failure", spec: FieldSpec{Selector: ".boom", Attribute: "alt"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveField(context.Background(), parent, tt.spec)
			if tt.wantErr {
				require.ErrorIs(t, err, readErr)
				require.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractRecordAttemptsEveryField(t *testing.T) {
	t.Parallel()

	fields := DefaultSelectors().Fields
	item := &fakeNode{
		children: map[string]*fakeNode{
			fields.Price.Selector:      {textErr: errors.New("price gone")},
			fields.About.Selector:      {textErr: errors.New("about gone")},
			fields.Vegetarian.Selector: {attrs: map[string]string{"aria-label": "Vegetarian"}},
			fields.Weight.Selector:     {text: " 500 g "},
		},
	}

	rec, err := ExtractRecord(context.Background(), item, fields)
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.Contains(t, err.Error(), "price")
	require.Contains(t, err.Error(), "about")
	require.Equal(t, strPtr("500 g"), rec.Weight)
	require.Equal(t, strPtr("Vegetarian"), rec.Vegetarian)
	require.Nil(t, rec.Name)
}

func TestExtractRecordAllAbsentIsNotAnError(t *testing.T) {
	t.Parallel()

	rec, err := ExtractRecord(context.Background(), &fakeNode{}, DefaultSelectors().Fields)
	require.NoError(t, err)
	require.Equal(t, ProductRecord{}, rec)
}

func TestFieldSpecReadsText(t *testing.T) {
	t.Parallel()

	require.True(t, FieldSpec{Selector: ".a"}.ReadsText())
	require.True(t, FieldSpec{Selector: ".a", Attribute: "  "}.ReadsText())
	require.False(t, FieldSpec{Selector: ".a", Attribute: "src"}.ReadsText())
}
