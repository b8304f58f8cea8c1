// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package attempt keeps the in-flight login attempts of the authorization code
flow between the redirect to the provider and its callback.

A Manager creates attempts with fresh state, nonce and PKCE verifier and
stores them keyed by state.  Consume removes an attempt and returns it in one
step, so a replayed callback can never complete a second login.  Unknown,
already consumed and expired states all result in
oidc.ErrInvalidOrExpiredState.

MemoryStore is only suitable for a single instance.  Deployments with more
than one instance must use a shared Store, see the storage/valkey package.
*/
package attempt
