// Package extract reads fielded records from detail pages and item links
// from listing pages.
package extract

import (
	"context"
	"errors"

	"github.com/aluiziolira/ri-harvester/browser"
	"github.com/aluiziolira/ri-harvester/parser"
	"github.com/aluiziolira/ri-harvester/retry"
)

// Field reads one column of T from the current page. Attr selects an
// attribute instead of the element text. Multi joins every match with
// parser.ValueSeparator.
type Field[T any] struct {
	Column string
	XPath  string
	Attr   string
	Multi  bool
	Clean  func(string) string
	Set    func(rec *T, value string)
}

// Fields is an ordered list of fields applied to one record.
type Fields[T any] []Field[T]

// Apply sets every field of rec. A missing element or a failed read leaves
// the field empty; only cancellation and session loss are returned.
func (fs Fields[T]) Apply(ctx context.Context, s browser.Session, rec *T) error {
	for _, f := range fs {
		value, err := f.read(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if retry.IsFatal(err) {
				return err
			}
			value = ""
		}
		f.Set(rec, value)
	}
	return nil
}

func (f Field[T]) read(ctx context.Context, s browser.Session) (string, error) {
	if !f.Multi {
		el, err := s.Find(ctx, f.XPath)
		if errors.Is(err, browser.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		raw, err := f.value(ctx, el)
		if err != nil {
			return "", err
		}
		return f.clean(raw), nil
	}

	elems, err := s.FindAll(ctx, f.XPath)
	if err != nil {
		return "", err
	}
	values := make([]string, 0, len(elems))
	for _, el := range elems {
		raw, err := f.value(ctx, el)
		if err != nil {
			if retry.IsFatal(err) || ctx.Err() != nil {
				return "", err
			}
			continue
		}
		if f.Clean != nil {
			raw = f.Clean(raw)
		}
		values = append(values, raw)
	}
	return parser.JoinValues(values), nil
}

func (f Field[T]) value(ctx context.Context, el browser.Element) (string, error) {
	if f.Attr != "" {
		return el.Attr(ctx, f.Attr)
	}
	return el.Text(ctx)
}

func (f Field[T]) clean(raw string) string {
	if f.Clean != nil {
		return f.Clean(raw)
	}
	return parser.EscapeText(raw)
}
