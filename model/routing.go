package model

// RouteEntry is a single row of a policy routing table.
type RouteEntry struct {
	Prefix    string `json:"prefix"`
	PrefixLen int    `json:"prefix-len"`
	NextHop   string `json:"next-hop"`
	Interface string `json:"interface"`
}

// RoutingTable maps a policy name to its ordered list of entries.
type RoutingTable map[string][]RouteEntry

// Lookup returns the first entry of policy tos matching prefix.
// The boolean reports whether tos has a table at all.
func (rt RoutingTable) Lookup(tos, prefix string) (RouteEntry, bool, bool) {
	table, ok := rt[tos]
	if !ok {
		return RouteEntry{}, false, false
	}
	for _, e := range table {
		if e.Prefix == prefix {
			return e, true, true
		}
	}
	return RouteEntry{}, true, false
}
