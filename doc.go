// Package sessionguard is a session security subsystem for authenticated
// web backends: server-side session lifecycle with sliding expiration and
// per-user caps, exact sliding-window rate limiting with temporary blocks,
// a TTL cache with an in-process LRU backend and an optional Redis backend,
// and a policy facade that sequences them behind a uniform error taxonomy.
//
// The top-level Service assembles every component from one Config:
//
//	creds := guard.NewMemoryCredentialStore()
//	svc, err := sessionguard.New(sessionguard.FromEnv(), creds)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Shutdown(context.Background())
//
//	result, err := svc.Guard.Login(ctx, guard.LoginRequest{
//		Username: "alice",
//		Password: password,
//		ClientIP: "203.0.113.7",
//	})
//
// Components are also usable on their own; see the session, security,
// cache, and guard packages.
package sessionguard
