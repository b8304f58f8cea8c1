// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package session maps opaque session identifiers to the tokens and claims of
an authenticated user.

The browser only ever holds the identifier, in a signed cookie written by
Cookies.  Tokens stay server side in a Store.  A Manager creates sessions
after a successful callback, loads them on every protected request and
destroys them on logout.  A session never outlives the tokens it was created
from; when a Refresher is configured an expired session is renewed once with
its refresh_token before it's given up.

Example:

	store := session.NewMemoryStore()
	mgr, _ := session.NewManager(store, session.WithMaxLifetime(8*time.Hour))
	s, _ := mgr.Create(ctx, claims, tokens, nil)
	_ = cookies.Write(w, s)
*/
package session
