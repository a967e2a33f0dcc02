// Package pollcache keeps a client session's notification counts, user profile and
// verification status fresh without hammering the backend.
//
// Every cache serves the last known value while it is younger than CacheDuration,
// refuses to fetch more often than MinUpdateInterval, and routes concurrent refreshes
// of the same key to a single in-flight request. Subscribers are called with every
// value that lands, and immediately with the cached value when they subscribe.
//
// Background failures never surface to callers: the previous value is returned, the
// error is logged and recorded for LastError and the Observer.
//
// Example: wire the session caches
//
//	ctx := context.Background()
//	profiles := pollcache.NewProfileStore(pollcache.NewMemoryStore(ctx))
//	svc := pollcache.NewServices(backend.New("https://forum.example"), profiles)
//	_, _ = svc.Users.Load(ctx)
//	unsubscribe := svc.Counts.Subscribe(func(c *pollcache.Counts) {
//		fmt.Println(c.Notifications, c.Messages)
//	})
//	defer unsubscribe()
package pollcache
