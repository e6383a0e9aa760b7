package grid

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/andy/billgrid/internal/domain"
)

// DefaultCacheSize bounds the description cache when no size is configured
const DefaultCacheSize = 512

const noDescription = "No description available"

// Describer resolves a single code to its catalogue entry. A nil match with
// a nil error means the code is unknown.
type Describer interface {
	Describe(ctx context.Context, code string, codeTypes []string) (*domain.CodeMatch, error)
}

type cacheKey struct {
	namespace string
	code      string
}

type cacheEntry struct {
	description string
	found       bool
}

// DescriptionCache memoizes code descriptions per (namespace, code).
// Unknown codes are cached too, and concurrent lookups for one key share a
// single remote call.
type DescriptionCache struct {
	lookup  Describer
	entries *lru.Cache[cacheKey, cacheEntry]
	group   singleflight.Group
}

// NewDescriptionCache creates a cache holding at most size keys
func NewDescriptionCache(lookup Describer, size int) (*DescriptionCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[cacheKey, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create description cache: %w", err)
	}
	return &DescriptionCache{lookup: lookup, entries: entries}, nil
}

// Describe returns the description for code in the field's namespace. The
// boolean is false when the catalogue has no entry.
func (c *DescriptionCache) Describe(ctx context.Context, field domain.Field, code string) (string, bool, error) {
	spec := field.Spec()
	code = strings.TrimSpace(code)
	if code == "" || spec.Namespace == "" {
		return "", false, nil
	}
	key := cacheKey{namespace: spec.Namespace, code: code}
	if e, ok := c.entries.Get(key); ok {
		return e.description, e.found, nil
	}
	if c.lookup == nil {
		return "", false, nil
	}

	v, err, _ := c.group.Do(spec.Namespace+"\x00"+code, func() (any, error) {
		if e, ok := c.entries.Get(key); ok {
			return e, nil
		}
		m, err := c.lookup.Describe(ctx, code, spec.CodeTypes)
		if err != nil {
			return nil, err
		}
		e := cacheEntry{}
		if m != nil {
			e = cacheEntry{description: m.Description, found: true}
		}
		c.entries.Add(key, e)
		return e, nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to describe %s %q: %w", spec.Label, code, err)
	}
	e := v.(cacheEntry)
	return e.description, e.found, nil
}

// Peek returns a cached description without calling the lookup or
// touching recency
func (c *DescriptionCache) Peek(field domain.Field, code string) (string, bool, bool) {
	e, ok := c.entries.Peek(cacheKey{namespace: field.Spec().Namespace, code: strings.TrimSpace(code)})
	return e.description, e.found, ok
}

// Put records a description learned elsewhere, such as a search result the
// user picked
func (c *DescriptionCache) Put(field domain.Field, code, description string) {
	code = strings.TrimSpace(code)
	if code == "" {
		return
	}
	c.entries.Add(cacheKey{namespace: field.Spec().Namespace, code: code}, cacheEntry{description: description, found: true})
}

// Len returns the number of cached keys
func (c *DescriptionCache) Len() int {
	return c.entries.Len()
}

// Warm resolves every distinct code referenced by rows with at most workers
// lookups in flight. Lookup failures are collected but do not stop the
// remaining lookups.
func (c *DescriptionCache) Warm(ctx context.Context, rows []domain.LineItem, workers int) []error {
	type job struct {
		field domain.Field
		code  string
	}
	seen := make(map[cacheKey]struct{})
	jobs := make([]job, 0)
	for _, r := range rows {
		for _, f := range domain.CodeFields {
			code := strings.TrimSpace(f.Spec().Format(&r.Fields))
			if code == "" {
				continue
			}
			k := cacheKey{namespace: f.Spec().Namespace, code: code}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			if _, _, cached := c.Peek(f, code); cached {
				continue
			}
			jobs = append(jobs, job{field: f, code: code})
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	if workers <= 0 {
		workers = 1
	}
	errs := make([]error, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, j := range jobs {
		g.Go(func() error {
			if gctx.Err() != nil {
				errs[i] = gctx.Err()
				return nil
			}
			_, _, errs[i] = c.Describe(gctx, j.field, j.code)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]error, 0)
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// Tooltip renders one line per populated code field. peek answers from
// whatever has already been resolved; unresolved codes read as having no
// description.
func Tooltip(fields domain.LineFields, peek func(domain.Field, string) (string, bool)) string {
	lines := make([]string, 0, len(domain.CodeFields))
	for _, f := range domain.CodeFields {
		spec := f.Spec()
		code := strings.TrimSpace(spec.Format(&fields))
		if code == "" {
			continue
		}
		desc := ""
		if peek != nil {
			if d, ok := peek(f, code); ok {
				desc = d
			}
		}
		if strings.TrimSpace(desc) == "" {
			desc = noDescription
		}
		lines = append(lines, fmt.Sprintf("%s: %s - %s", spec.Label, code, desc))
	}
	if len(lines) == 0 {
		return "No code information available"
	}
	return strings.Join(lines, "\n")
}
