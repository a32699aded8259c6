package routing

import (
	"container/list"

	"trafficsim/element"
)

// routeCache is a bounded LRU over planned routes keyed by
// (origin, destination, vehicle class).
type routeCache struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	key   string
	route *element.Route
}

func newRouteCache(capacity int) *routeCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &routeCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func (c *routeCache) get(key string) (*element.Route, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).route, true
}

func (c *routeCache) put(key string, route *element.Route) {
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*cacheEntry).route = route
		return
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, route: route})
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// invalidateSegment drops every cached route traversing the given segment.
func (c *routeCache) invalidateSegment(segmentID string) int {
	dropped := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*cacheEntry)
		if entry.route.Contains(segmentID) {
			c.ll.Remove(el)
			delete(c.items, entry.key)
			dropped++
		}
		el = next
	}
	return dropped
}

func (c *routeCache) len() int { return c.ll.Len() }
