package scrape

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ResolveField reads one field below parent. A missing sub-node or attribute
// resolves to nil without error; only failed reads are reported.
func ResolveField(ctx context.Context, parent Node, spec FieldSpec) (*string, error) {
	if strings.TrimSpace(spec.Selector) == "" {
		return nil, nil
	}
	node, ok, err := parent.Query(ctx, spec.Selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", spec.Selector, err)
	}
	if !ok || node == nil {
		return nil, nil
	}
	if spec.ReadsText() {
		text, err := node.Text(ctx)
		if err != nil {
			return nil, fmt.Errorf("read text of %q: %w", spec.Selector, err)
		}
		trimmed := strings.TrimSpace(text)
		return &trimmed, nil
	}
	value, ok, err := node.Attribute(ctx, spec.Attribute)
	if err != nil {
		return nil, fmt.Errorf("read attribute %q of %q: %w", spec.Attribute, spec.Selector, err)
	}
	if !ok {
		return nil, nil
	}
	return &value, nil
}

// ExtractRecord resolves all eight fields of item. Every field is attempted
// even when an earlier one fails; the returned error combines all failures.
func ExtractRecord(ctx context.Context, item Node, fields FieldSelectors) (ProductRecord, error) {
	var (
		rec  ProductRecord
		errs error
	)
	targets := []struct {
		name string
		spec FieldSpec
		dst  **string
	}{
		{"name", fields.Name, &rec.Name},
		{"weight", fields.Weight, &rec.Weight},
		{"price", fields.Price, &rec.Price},
		{"ingredients", fields.Ingredients, &rec.Ingredients},
		{"nutrition", fields.Nutrition, &rec.Nutrition},
		{"about", fields.About, &rec.About},
		{"image", fields.Image, &rec.Image},
		{"vegetarian", fields.Vegetarian, &rec.Vegetarian},
	}
	for _, target := range targets {
		value, err := ResolveField(ctx, item, target.spec)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", target.name, err))
			continue
		}
		*target.dst = value
	}
	return rec, errs
}
