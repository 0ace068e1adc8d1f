package invalidation

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/l0p7/purgectl/internal/invalidation/cdn"
	"github.com/l0p7/purgectl/internal/templates"
)

// Builder turns entities, or the "everything" request, into CDN batches.
type Builder struct {
	renderer *templates.Renderer
	related  atomic.Pointer[[]*templates.Template]
	logger   *slog.Logger
	now      func() time.Time
}

// NewBuilder compiles the related-path templates. Each template renders one
// extra path for an entity with .entity and .path in scope.
func NewBuilder(renderer *templates.Renderer, relatedPaths []string, logger *slog.Logger) (*Builder, error) {
	if renderer == nil {
		renderer = templates.NewRenderer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		renderer: renderer,
		logger:   logger.With(slog.String("agent", "batch_builder")),
		now:      time.Now,
	}
	if err := b.SetRelatedPaths(relatedPaths); err != nil {
		return nil, err
	}
	return b, nil
}

// SetRelatedPaths swaps the related-path templates. On error the previous set stays active.
func (b *Builder) SetRelatedPaths(relatedPaths []string) error {
	compiled, err := b.renderer.CompileAll("relatedPaths", relatedPaths)
	if err != nil {
		return fmt.Errorf("invalidation: related paths: %w", err)
	}
	b.related.Store(&compiled)
	return nil
}

// BuildForEntity builds the batch covering one entity: its canonical path plus
// any configured related paths.
func (b *Builder) BuildForEntity(baseURL, distributionID string, entity Entity) (cdn.Batch, error) {
	if distributionID == "" {
		return cdn.Batch{}, ErrNoDistribution
	}
	canonical, err := CanonicalPath(baseURL, entity.Permalink)
	if err != nil {
		return cdn.Batch{}, err
	}

	paths := []string{canonical}
	if related := b.related.Load(); related != nil && len(*related) > 0 {
		data := map[string]any{
			"entity": map[string]any{
				"id":        entity.ID,
				"type":      entity.Type,
				"permalink": entity.Permalink,
			},
			"path": canonical,
		}
		for _, tmpl := range *related {
			rendered, err := tmpl.Render(data)
			if err != nil {
				b.logger.Warn("related path render failed",
					slog.String("template", tmpl.Name()),
					slog.String("entity", entity.ID),
					slog.String("error", err.Error()))
				continue
			}
			rendered = strings.TrimSpace(rendered)
			if rendered == "" || rendered == "<no value>" {
				continue
			}
			if !strings.HasPrefix(rendered, "/") {
				rendered = "/" + rendered
			}
			paths = append(paths, rendered)
		}
	}

	prefix := entity.ID
	if prefix == "" {
		prefix = "entity"
	}
	return cdn.Batch{
		CallerReference: cdn.NewCallerReference(prefix, b.now()),
		Paths:           cdn.UnionPaths(paths),
		Distribution:    distributionID,
	}, nil
}

// BuildForAll builds the batch invalidating every cached object.
func (b *Builder) BuildForAll(distributionID string) cdn.Batch {
	return cdn.Wildcard(distributionID, b.now())
}

// CanonicalPath resolves permalink against baseURL and returns its path
// component. A trailing slash is dropped except for the root path. Permalinks
// that only differ from the root by their query are rejected.
func CanonicalPath(baseURL, permalink string) (string, error) {
	permalink = strings.TrimSpace(permalink)
	if permalink == "" {
		return "", fmt.Errorf("%w: entity permalink required", ErrInvalidPermalink)
	}
	link, err := url.Parse(permalink)
	if err != nil {
		return "", fmt.Errorf("invalidation: parse permalink %q: %w", permalink, err)
	}
	if baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return "", fmt.Errorf("invalidation: parse base url %q: %w", baseURL, err)
		}
		link = base.ResolveReference(link)
	}
	path := link.EscapedPath()
	if path == "" || path == "/" {
		if link.RawQuery != "" {
			return "", fmt.Errorf("%w: %q identifies content by query only", ErrInvalidPermalink, permalink)
		}
		return "/", nil
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(path, "/"), nil
}
