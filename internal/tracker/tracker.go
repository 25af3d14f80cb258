// Package tracker maintains live availability and model catalogs for every
// registered provider. Availability comes from two sources: active health
// checks run by the background loop, and passive success/failure feedback
// recorded by the gateway on real completions. The model catalog carries a
// monotonic version so routing tables can rebuild only when something
// actually changed.
package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	// StaleThreshold is how old a status may get before the background loop
	// re-checks the provider.
	StaleThreshold = time.Hour

	// CheckInterval is the background loop tick.
	CheckInterval = 5 * time.Minute

	// ModelRefreshInterval is how often each provider's model catalog is
	// re-fetched from the vendor.
	ModelRefreshInterval = time.Hour
)

// Event types published on availability transitions.
const (
	EventProviderAvailable   = "provider.available"
	EventProviderUnavailable = "provider.unavailable"
)

// ProviderStatus is a point-in-time snapshot of one provider.
type ProviderStatus struct {
	Name             string    `json:"name"`
	Available        bool      `json:"available"`
	LastCheck        time.Time `json:"last_check"`
	LastSuccess      time.Time `json:"last_success"`
	LastModelRefresh time.Time `json:"last_model_refresh"`
	LastError        string    `json:"last_error,omitempty"`
	Models           []string  `json:"models"`
}

// providerState is the mutable record behind each snapshot.
type providerState struct {
	available   bool
	checked     bool
	lastCheck   time.Time
	lastSuccess time.Time
	lastError   string
	models      []string
	lastRefresh time.Time
}

// Tracker tracks provider availability and model catalogs.
type Tracker struct {
	events domain.EventPublisher
	now    func() time.Time

	mu        sync.RWMutex
	providers map[string]domain.Provider
	states    map[string]*providerState
	order     []string
	version   uint64

	loopOnce sync.Once
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a tracker. The event publisher may be nil, in which case
// availability transitions are not published.
func New(events domain.EventPublisher) *Tracker {
	return &Tracker{
		events:    events,
		now:       time.Now,
		providers: make(map[string]domain.Provider),
		states:    make(map[string]*providerState),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Register adds a provider and seeds its catalog from SupportedModels, so
// routing works before the first live fetch. Registering the same name twice
// is a no-op.
func (t *Tracker) Register(p domain.Provider) {
	if p == nil {
		return
	}
	name := p.Name()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.providers[name]; exists {
		return
	}

	t.providers[name] = p
	t.states[name] = &providerState{
		models: p.SupportedModels(),
	}
	t.order = append(t.order, name)
	t.version++
}

// Provider returns the registered adapter by name.
func (t *Tracker) Provider(name string) (domain.Provider, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.providers[name]
	return p, ok
}

// ProviderNames returns the registered provider names in registration order.
func (t *Tracker) ProviderNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, len(t.order))
	copy(names, t.order)
	return names
}

// CheckProvider health-checks one provider and records the result.
func (t *Tracker) CheckProvider(ctx context.Context, name string) error {
	t.mu.RLock()
	p, ok := t.providers[name]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("provider %s is not registered", name)
	}

	err := p.HealthCheck(ctx)
	if err != nil {
		t.RecordFailure(name, err.Error())
		return err
	}
	t.RecordSuccess(name)
	return nil
}

// CheckAll health-checks every registered provider concurrently. One
// provider failing never affects the others; errors are recorded in the
// provider's own status.
func (t *Tracker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, name := range t.ProviderNames() {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_ = t.CheckProvider(ctx, name)
		}(name)
	}
	wg.Wait()
}

// RecordSuccess marks the provider available. Called by the gateway after a
// completed stream and by health checks; never touches the network.
func (t *Tracker) RecordSuccess(name string) {
	t.setAvailability(name, true, "")
}

// RecordFailure marks the provider unavailable with the given error message.
func (t *Tracker) RecordFailure(name string, errMsg string) {
	t.setAvailability(name, false, errMsg)
}

func (t *Tracker) setAvailability(name string, available bool, errMsg string) {
	t.mu.Lock()
	state, ok := t.states[name]
	if !ok {
		t.mu.Unlock()
		return
	}

	transitioned := !state.checked || state.available != available
	state.available = available
	state.checked = true
	state.lastCheck = t.now()
	if available {
		state.lastSuccess = state.lastCheck
	}
	state.lastError = errMsg
	t.mu.Unlock()

	if transitioned && t.events != nil {
		eventType := EventProviderAvailable
		data := map[string]interface{}{"provider": name}
		if !available {
			eventType = EventProviderUnavailable
			data["error"] = errMsg
		}
		t.events.Publish(context.Background(), eventType, data)
	}
}

// RefreshModelsFor re-fetches one provider's catalog and reports whether it
// changed. The caller is responsible for bumping the version.
func (t *Tracker) RefreshModelsFor(ctx context.Context, name string) bool {
	t.mu.RLock()
	p, ok := t.providers[name]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	models := p.FetchModels(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.states[name]
	state.lastRefresh = t.now()
	if equalModels(state.models, models) {
		return false
	}
	state.models = models
	return true
}

// RefreshAllModels re-fetches every provider's catalog concurrently and bumps
// the catalog version once if any list changed.
func (t *Tracker) RefreshAllModels(ctx context.Context) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed bool
	)
	for _, name := range t.ProviderNames() {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if t.RefreshModelsFor(ctx, name) {
				mu.Lock()
				changed = true
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()

	if changed {
		t.mu.Lock()
		t.version++
		t.mu.Unlock()
	}
}

// ModelsVersion returns the monotonic catalog version. It advances whenever
// a provider is registered or a refresh changed some provider's model list.
func (t *Tracker) ModelsVersion() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Catalog returns a consistent snapshot of every provider's model list along
// with the version it corresponds to.
func (t *Tracker) Catalog() (map[string][]string, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	catalog := make(map[string][]string, len(t.states))
	for name, state := range t.states {
		models := make([]string, len(state.models))
		copy(models, state.models)
		catalog[name] = models
	}
	return catalog, t.version
}

// IsAvailable reports whether the provider's last check succeeded.
func (t *Tracker) IsAvailable(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[name]
	return ok && state.available
}

// Snapshot returns the status of every registered provider, sorted by name.
func (t *Tracker) Snapshot() []ProviderStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	statuses := make([]ProviderStatus, 0, len(t.states))
	for name, state := range t.states {
		models := make([]string, len(state.models))
		copy(models, state.models)
		statuses = append(statuses, ProviderStatus{
			Name:             name,
			Available:        state.available,
			LastCheck:        state.lastCheck,
			LastSuccess:      state.lastSuccess,
			LastModelRefresh: state.lastRefresh,
			LastError:        state.lastError,
			Models:           models,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// Start launches the background maintenance loop. Safe to call once; Stop
// shuts it down and waits for the current cycle to finish.
func (t *Tracker) Start() {
	t.loopOnce.Do(func() {
		go t.loop()
	})
}

// Stop terminates the background loop.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		<-t.done
	})
}

func (t *Tracker) loop() {
	defer close(t.done)

	ticker := time.NewTicker(CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.runCycle()
		}
	}
}

// runCycle re-checks stale providers and refreshes due model catalogs. A
// panic in one cycle is logged and must not kill the loop.
func (t *Tracker) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			observability.FromContext(context.Background()).Error("tracker cycle panicked",
				observability.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), CheckInterval)
	defer cancel()

	now := t.now()
	var checkDue, refreshDue []string

	t.mu.RLock()
	for _, name := range t.order {
		state := t.states[name]
		if now.Sub(state.lastSuccess) >= StaleThreshold {
			checkDue = append(checkDue, name)
		}
		if now.Sub(state.lastRefresh) >= ModelRefreshInterval {
			refreshDue = append(refreshDue, name)
		}
	}
	t.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range checkDue {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_ = t.CheckProvider(ctx, name)
		}(name)
	}
	wg.Wait()

	changed := false
	for _, name := range refreshDue {
		if t.RefreshModelsFor(ctx, name) {
			changed = true
		}
	}
	if changed {
		t.mu.Lock()
		t.version++
		t.mu.Unlock()
	}
}

func equalModels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
