package provider

import (
	"errors"
	"strings"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	providers map[int32]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	items := make(map[int32]Provider, len(providers))
	for _, p := range providers {
		items[p.Code()] = p
	}
	return &Registry{providers: items}
}

func (r *Registry) Get(code int32) (Provider, error) {
	p, ok := r.providers[code]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return p, nil
}

func (r *Registry) GetByName(name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range r.providers {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, ErrProviderNotSupported
}
