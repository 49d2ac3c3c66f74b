// Package templates mirrors the remote comment template list.
package templates

import (
	"context"
	"sync"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
)

// Registry is a local copy of the remote templates. It changes only after
// the matching remote call succeeded.
type Registry struct {
	gw gateway.Gateway

	mu    sync.Mutex
	items []domain.CommentTemplate
}

func NewRegistry(gw gateway.Gateway) *Registry {
	return &Registry{gw: gw}
}

// Fetch replaces the local list with the remote one.
func (r *Registry) Fetch(ctx context.Context) ([]domain.CommentTemplate, error) {
	list, err := r.gw.GetTemplates(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append([]domain.CommentTemplate(nil), list...)
	return r.listLocked(), nil
}

func (r *Registry) Create(ctx context.Context, name, content string) (*domain.CommentTemplate, error) {
	tpl, err := r.gw.CreateTemplate(ctx, name, content)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *tpl)
	return tpl, nil
}

func (r *Registry) Update(ctx context.Context, id, name, content string) (*domain.CommentTemplate, error) {
	tpl, err := r.gw.UpdateTemplate(ctx, id, name, content)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i] = *tpl
			break
		}
	}
	return tpl, nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.gw.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			break
		}
	}
	return nil
}

// List returns a copy of the local list.
func (r *Registry) List() []domain.CommentTemplate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

// Get looks a template up by id in the local list.
func (r *Registry) Get(id string) (domain.CommentTemplate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.items {
		if t.ID == id {
			return t, true
		}
	}
	return domain.CommentTemplate{}, false
}

func (r *Registry) listLocked() []domain.CommentTemplate {
	return append([]domain.CommentTemplate(nil), r.items...)
}
