// Package subscription keeps the connected clients of the bridge and the
// ports each one listens to.
package subscription

import (
	"sort"

	"github.com/codefionn/wsserial/internal/protocol"
)

// Route delivers responses to one client. Send fails once the client is gone
// or cannot keep up.
type Route interface {
	Send(protocol.Response) error
}

// RouteFunc adapts a function to Route.
type RouteFunc func(protocol.Response) error

func (f RouteFunc) Send(msg protocol.Response) error {
	return f(msg)
}

type subscription struct {
	route     Route
	interests map[string]struct{}
}

// Registry owns all subscriptions. It is confined to the arbiter goroutine.
type Registry struct {
	subs map[string]*subscription
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*subscription)}
}

// Register adds id with an empty interest set. Registering a known id keeps
// the existing subscription.
func (r *Registry) Register(id string, route Route) {
	if _, ok := r.subs[id]; ok {
		return
	}
	r.subs[id] = &subscription{route: route, interests: make(map[string]struct{})}
}

func (r *Registry) AddPortInterest(id, port string) error {
	sub, ok := r.subs[id]
	if !ok {
		return protocol.SubscriptionNotFound(id)
	}
	sub.interests[port] = struct{}{}
	return nil
}

// RemovePortInterest drops port from id's interests. Removing an interest that
// is not there is a no-op.
func (r *Registry) RemovePortInterest(id, port string) error {
	sub, ok := r.subs[id]
	if !ok {
		return protocol.SubscriptionNotFound(id)
	}
	delete(sub.interests, port)
	return nil
}

func (r *Registry) RemovePortFromAll(port string) {
	for _, sub := range r.subs {
		delete(sub.interests, port)
	}
}

// ClearInterests empties the interest set of id, or of every subscription
// when id is empty.
func (r *Registry) ClearInterests(id string) {
	if id == "" {
		for _, sub := range r.subs {
			clear(sub.interests)
		}
		return
	}
	if sub, ok := r.subs[id]; ok {
		clear(sub.interests)
	}
}

// Interests returns the sorted ports id listens to.
func (r *Registry) Interests(id string) []string {
	sub, ok := r.subs[id]
	if !ok {
		return nil
	}
	return sortedKeys(sub.interests)
}

// AllInterests maps every subscription to its sorted interests.
func (r *Registry) AllInterests() map[string][]string {
	all := make(map[string][]string, len(r.subs))
	for _, id := range r.ids() {
		all[id] = r.Interests(id)
	}
	return all
}

func (r *Registry) Exists(id string) error {
	if _, ok := r.subs[id]; !ok {
		return protocol.SubscriptionNotFound(id)
	}
	return nil
}

func (r *Registry) End(id string) {
	delete(r.subs, id)
}

// Unicast sends msg to id.
func (r *Registry) Unicast(id string, msg protocol.Response) error {
	sub, ok := r.subs[id]
	if !ok {
		return protocol.SubscriptionNotFound(id)
	}
	if err := sub.route.Send(msg); err != nil {
		return protocol.SubscriberSendError(id, err)
	}
	return nil
}

// Broadcast sends msg to every subscription. Failed subscriptions are
// reported, not removed.
func (r *Registry) Broadcast(msg protocol.Response) []error {
	var errs []error
	for _, id := range r.ids() {
		if err := r.subs[id].route.Send(msg); err != nil {
			errs = append(errs, protocol.SubscriberSendError(id, err))
		}
	}
	return errs
}

// BroadcastForPort sends msg to the subscriptions interested in port.
func (r *Registry) BroadcastForPort(port string, msg protocol.Response) []error {
	var errs []error
	for _, id := range r.ids() {
		sub := r.subs[id]
		if _, ok := sub.interests[port]; !ok {
			continue
		}
		if err := sub.route.Send(msg); err != nil {
			errs = append(errs, protocol.SubscriberSendError(id, err))
		}
	}
	return errs
}

// PortsWithInterest returns the union of all interest sets.
func (r *Registry) PortsWithInterest() map[string]struct{} {
	out := make(map[string]struct{})
	for _, sub := range r.subs {
		for port := range sub.interests {
			out[port] = struct{}{}
		}
	}
	return out
}

// HasInterest reports whether any subscription listens to port.
func (r *Registry) HasInterest(port string) bool {
	for _, sub := range r.subs {
		if _, ok := sub.interests[port]; ok {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	return len(r.subs)
}

// ids returns subscription ids in a stable order so deliveries are
// deterministic within one cycle.
func (r *Registry) ids() []string {
	ids := make([]string, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
