package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/protocolguide/go-billing/core"
	"github.com/protocolguide/go-billing/webhooks"
)

// EventHookPack is a named set of post-synchronizer side effects. Hooks run
// after the core handler has applied the event, only for the listed types;
// an empty type list matches every event.
type EventHookPack struct {
	Name    string
	Types   []core.EventType
	Handler webhooks.Handler
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	eventHooks map[string]EventHookPack
	bundles    map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		eventHooks: map[string]EventHookPack{},
		bundles:    map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterEventHookPack(pack EventHookPack) error {
	if h == nil {
		return fmt.Errorf("billing: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("billing: event hook pack name is required")
	}
	if pack.Handler == nil {
		return fmt.Errorf("billing: event hook pack %q has no handler", name)
	}

	normalized := EventHookPack{
		Name:    name,
		Types:   append([]core.EventType(nil), pack.Types...),
		Handler: pack.Handler,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.eventHooks[name]; exists {
		return fmt.Errorf("billing: event hook pack %q already registered", name)
	}
	h.eventHooks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("billing: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("billing: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("billing: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("billing: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ComposeHandler wraps the base event handler so registered hooks run after
// it, in pack-name order. A hook failure fails the dispatch, which keeps the
// provider redelivering; the idempotency claim is already consumed by then,
// so hooks must tolerate losing a redelivery.
func (h *ExtensionHooks) ComposeHandler(base webhooks.Handler) webhooks.Handler {
	if base == nil {
		return nil
	}
	if h == nil {
		return base
	}
	return webhooks.HandlerFunc(func(ctx context.Context, event core.BillingEvent) error {
		if err := base.ApplyBillingEvent(ctx, event); err != nil {
			return err
		}
		for _, pack := range h.EventHookPacks() {
			if !pack.matches(event.Type) {
				continue
			}
			if err := pack.Handler.ApplyBillingEvent(ctx, event); err != nil {
				return fmt.Errorf("billing: event hook %q: %w", pack.Name, err)
			}
		}
		return nil
	})
}

func (p EventHookPack) matches(eventType core.EventType) bool {
	if len(p.Types) == 0 {
		return true
	}
	for _, candidate := range p.Types {
		if candidate == eventType {
			return true
		}
	}
	return false
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("billing: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) EventHookPacks() []EventHookPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.eventHooks))
	for name := range h.eventHooks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]EventHookPack, 0, len(names))
	for _, name := range names {
		pack := h.eventHooks[name]
		out = append(out, EventHookPack{
			Name:    pack.Name,
			Types:   append([]core.EventType(nil), pack.Types...),
			Handler: pack.Handler,
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
